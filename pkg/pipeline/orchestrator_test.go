package pipeline

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/extract"
	"github.com/quillworks/quill/pkg/llm"
	"github.com/quillworks/quill/pkg/match"
	"github.com/quillworks/quill/pkg/memory"
	"github.com/quillworks/quill/pkg/research"
	"github.com/quillworks/quill/pkg/search"
	"github.com/quillworks/quill/pkg/store"
	"github.com/quillworks/quill/pkg/store/inmemory"
	"github.com/quillworks/quill/pkg/tokens"
	testutils "github.com/quillworks/quill/pkg/utils/test"
)

const requestText = `Acme Corp, a manufacturing company based in Ohio, requests a proposal
for a supply chain audit. Contact: jane.doe@acme.example. Due 2027-03-01.`

const extractResponse = `{
	"entity_name": {"value": "Acme Corp", "confidence": 0.95, "source": "header"},
	"industry": {"value": "Manufacturing", "confidence": 0.9, "source": "overview"},
	"contacts": {"value": "jane.doe@acme.example", "confidence": 0.9, "source": "footer"},
	"service_types": {"value": "supply chain audit", "confidence": 0.85, "source": "body"}
}`

const gapResponse = `{
	"gaps": ["pricing benchmarks", "team qualifications"],
	"search_queries": ["manufacturing audit pricing benchmarks", "supply chain audit team structure"],
	"reasoning": "the fees and team sections have no supporting facts"
}`

const scoreResponse = `{
	"results": [{"url": "https://a.example", "relevance_score": 0.9, "extracted_info": "typical audit fees range 50-80k"}],
	"summary": "found pricing data"
}`

const synthesisResponse = `{
	"sections": [
		{"title": "Executive Summary", "content": "Acme Corp needs a supply chain audit."},
		{"title": "Fees", "content": "Benchmarked at 50-80k."}
	],
	"summary": "two sections drafted"
}`

var testRates = tokens.Rates{InputPerMTok: 3, OutputPerMTok: 15}

// newTestOrchestrator wires the orchestrator over an in-memory store with no
// memory tiers and no worker pool.
func newTestOrchestrator(gen *testutils.MockGenerator, searcher *testutils.MockSearcher) (*Orchestrator, *inmemory.Driver) {
	logger := zap.NewNop()
	records := inmemory.NewDriver()

	extractor := extract.NewEngine(gen, nil, extract.Config{Rates: testRates}, logger)
	researcher := research.NewEngine(gen, searcher, nil, research.Config{
		SearchDelay: time.Nanosecond,
		Rates:       testRates,
	}, logger)

	return New(records, extractor, researcher, gen, nil, nil, nil, Config{Rates: testRates}, logger), records
}

// stubEpisodicTier serves a fixed set of scored episodes.
type stubEpisodicTier struct {
	episodes []memory.ScoredItem
}

func (s *stubEpisodicTier) Store(context.Context, memory.Item) error { return nil }
func (s *stubEpisodicTier) Retrieve(context.Context, string) (*memory.Item, error) {
	return nil, memory.ErrNotFound
}
func (s *stubEpisodicTier) Update(context.Context, string, map[string]any, map[string]string) error {
	return nil
}
func (s *stubEpisodicTier) Delete(context.Context, string) error         { return nil }
func (s *stubEpisodicTier) Exists(context.Context, string) (bool, error) { return false, nil }
func (s *stubEpisodicTier) Close() error                                 { return nil }

func (s *stubEpisodicTier) SearchSimilar(_ context.Context, _ string, n int, filter map[string]string) ([]memory.ScoredItem, error) {
	var out []memory.ScoredItem
	for _, ep := range s.episodes {
		if memory.MatchesMetadata(ep.Item, filter) {
			out = append(out, ep)
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *stubEpisodicTier) GetByMetadata(_ context.Context, filter map[string]string, limit int) ([]memory.Item, error) {
	var out []memory.Item
	for _, ep := range s.episodes {
		if memory.MatchesMetadata(ep.Item, filter) {
			out = append(out, ep.Item)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func synthesisEpisode(session, summary, industry string, score float64, age time.Duration) memory.ScoredItem {
	return memory.ScoredItem{
		Item: memory.Item{
			Key:   "synthesis:" + session,
			Value: map[string]any{"summary": summary},
			Metadata: map[string]string{
				"stage":    string(StageSynthesis),
				"session":  session,
				"industry": industry,
			},
			CreatedAt: time.Now().Add(-age),
		},
		Score: score,
	}
}

func seedProposal(records *inmemory.Driver, id, sourceText string) {
	err := records.Put(context.Background(), &store.Proposal{ID: id, SourceText: sourceText})
	Expect(err).NotTo(HaveOccurred())
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx      context.Context
		gen      *testutils.MockGenerator
		searcher *testutils.MockSearcher
		orch     *Orchestrator
		records  *inmemory.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		gen = testutils.NewMockGenerator()
		gen.Usage = llm.Usage{InputTokens: 1000, OutputTokens: 200}

		searcher = testutils.NewMockSearcher()
		searcher.ResultsByQuery["manufacturing audit pricing benchmarks"] = []search.Result{
			{Title: "Audit pricing report", URL: "https://a.example", Snippet: "fee data"},
		}
		searcher.ResultsByQuery["supply chain audit team structure"] = []search.Result{
			{Title: "Team structures", URL: "https://b.example", Snippet: "staffing"},
		}

		orch, records = newTestOrchestrator(gen, searcher)
		seedProposal(records, "prop-1", requestText)
	})

	Describe("RunExtraction", func() {
		It("extracts fields, prices the call, and persists the stage output", func() {
			gen.Responses = []string{extractResponse}

			result, err := orch.RunExtraction(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Fields.StringValue(extract.FieldEntityName)).To(Equal("Acme Corp"))
			Expect(result.Usage.EstimatedCostUSD).To(BeNumerically("~", 0.006, 1e-9))

			p, err := records.Get(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())
			raw, ok := p.Output(string(StageMetadataExtraction))
			Expect(ok).To(BeTrue())

			var stored extract.Result
			Expect(json.Unmarshal(raw, &stored)).To(Succeed())
			Expect(stored.Fields).To(HaveKey(extract.FieldIndustry))

			next, ok := NextStage(p)
			Expect(ok).To(BeTrue())
			Expect(next).To(Equal(StageGapAnalysis))
		})

		It("returns an agent error for an unknown proposal", func() {
			_, err := orch.RunExtraction(ctx, "nope")

			var ae *AgentError
			Expect(err).To(BeAssignableToTypeOf(ae))
			Expect(err.Error()).To(ContainSubstring("proposal nope not found"))
		})

		It("classifies empty source text as a validation error", func() {
			seedProposal(records, "empty", "")

			_, err := orch.RunExtraction(ctx, "empty")

			var ve *ValidationError
			Expect(err).To(BeAssignableToTypeOf(ve))
		})

		It("classifies an unparseable response as a validation error", func() {
			gen.Responses = []string{"I could not produce JSON, sorry."}

			_, err := orch.RunExtraction(ctx, "prop-1")

			var ve *ValidationError
			Expect(err).To(BeAssignableToTypeOf(ve))
		})

		It("classifies exhausted retries as an extraction error", func() {
			gen.FailWith = llm.ErrRetryExhausted

			_, err := orch.RunExtraction(ctx, "prop-1")

			var ee *ExtractionError
			Expect(err).To(BeAssignableToTypeOf(ee))
		})
	})

	Describe("stage ordering", func() {
		It("refuses gap analysis before extraction completes", func() {
			_, err := orch.RunGapAnalysis(ctx, "prop-1", nil)

			var ae *AgentError
			Expect(err).To(BeAssignableToTypeOf(ae))
			Expect(err.Error()).To(ContainSubstring("metadata_extraction must be completed first"))
		})

		It("refuses research when gap analysis produced no queries", func() {
			gen.Responses = []string{extractResponse}
			_, err := orch.RunExtraction(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())

			empty, _ := json.Marshal(&research.GapAnalysisResult{Reasoning: "nothing missing"})
			Expect(records.SetStageOutput(ctx, "prop-1", string(StageGapAnalysis), empty)).To(Succeed())

			_, err = orch.RunResearch(ctx, "prop-1")

			var ae *AgentError
			Expect(err).To(BeAssignableToTypeOf(ae))
			Expect(err.Error()).To(ContainSubstring("no search queries found in gap analysis"))
		})

		It("refuses directive regeneration before the gap list is confirmed", func() {
			gen.Responses = []string{extractResponse, gapResponse}
			_, err := orch.RunExtraction(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())
			_, err = orch.RunGapAnalysis(ctx, "prop-1", nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = orch.RegenerateDirective(ctx, "prop-1", "make it shorter")

			var ae *AgentError
			Expect(err).To(BeAssignableToTypeOf(ae))
			Expect(err.Error()).To(ContainSubstring("confirm the gap list first"))
		})
	})

	Describe("gap confirmation", func() {
		BeforeEach(func() {
			gen.Responses = []string{extractResponse, gapResponse}
			_, err := orch.RunExtraction(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())
			_, err = orch.RunGapAnalysis(ctx, "prop-1", nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("leaves the research directive empty until confirmation", func() {
			p, err := records.Get(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())

			var gaps research.GapAnalysisResult
			raw, _ := p.Output(string(StageGapAnalysis))
			Expect(json.Unmarshal(raw, &gaps)).To(Succeed())
			Expect(gaps.DeepResearchPrompt).To(BeEmpty())
			Expect(gaps.SearchQueries).To(HaveLen(2))
		})

		It("records the confirmed gaps and generated directive", func() {
			gen.Responses = append(gen.Responses, "Investigate audit pricing for the client.")

			directive, err := orch.ConfirmGaps(ctx, "prop-1", []string{"pricing benchmarks"})
			Expect(err).NotTo(HaveOccurred())
			Expect(directive.Status).To(Equal(research.DirectiveGenerated))
			Expect(directive.Text).NotTo(BeEmpty())

			p, _ := records.Get(ctx, "prop-1")
			var gaps research.GapAnalysisResult
			raw, _ := p.Output(string(StageGapAnalysis))
			Expect(json.Unmarshal(raw, &gaps)).To(Succeed())
			Expect(gaps.Gaps).To(Equal([]string{"pricing benchmarks"}))
			Expect(gaps.DeepResearchPrompt).To(Equal(directive.Text))
		})

		It("replaces the directive on regeneration", func() {
			gen.Responses = append(gen.Responses,
				"Investigate audit pricing for the client.",
				"Focus only on Midwest manufacturing audit pricing.")

			_, err := orch.ConfirmGaps(ctx, "prop-1", []string{"pricing benchmarks"})
			Expect(err).NotTo(HaveOccurred())

			revised, err := orch.RegenerateDirective(ctx, "prop-1", "narrow the geography")
			Expect(err).NotTo(HaveOccurred())
			Expect(revised.Status).To(Equal(research.DirectiveRegenerated))

			p, _ := records.Get(ctx, "prop-1")
			var gaps research.GapAnalysisResult
			raw, _ := p.Output(string(StageGapAnalysis))
			Expect(json.Unmarshal(raw, &gaps)).To(Succeed())
			Expect(gaps.DeepResearchPrompt).To(Equal(revised.Text))
		})
	})

	Describe("full pipeline run", func() {
		It("carries a proposal from raw text to the final document", func() {
			gen.Responses = []string{
				extractResponse,
				gapResponse,
				"Investigate audit pricing for the client.",
				scoreResponse, // first query
				scoreResponse, // second query
				"Benchmarks and staffing patterns located.",
				synthesisResponse,
				"PROPOSAL OUTLINE\n\n1. Executive Summary\n2. Fees",
			}

			_, err := orch.RunExtraction(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())

			gaps, err := orch.RunGapAnalysis(ctx, "prop-1", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(gaps.Gaps).To(HaveLen(2))

			_, err = orch.ConfirmGaps(ctx, "prop-1", gaps.Gaps)
			Expect(err).NotTo(HaveOccurred())

			res, err := orch.RunResearch(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ResearchResults).To(HaveLen(2))
			Expect(res.OverallSummary).To(Equal("Benchmarks and staffing patterns located."))
			Expect(searcher.Queries).To(HaveLen(2))

			synthesis, err := orch.RunSynthesis(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(synthesis.Sections).To(HaveLen(2))
			Expect(synthesis.Summary).To(Equal("two sections drafted"))

			doc, err := orch.RunDocumentGeneration(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Document).To(HavePrefix("PROPOSAL OUTLINE"))

			p, err := records.Get(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(Completed(p)).To(HaveLen(5))
			_, more := NextStage(p)
			Expect(more).To(BeFalse())
		})

		It("re-runs a stage idempotently without touching downstream output", func() {
			gen.Responses = []string{
				extractResponse,
				gapResponse,
				"Investigate audit pricing for the client.",
				scoreResponse,
				scoreResponse,
				"Benchmarks located.",
			}

			_, err := orch.RunExtraction(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())
			gaps, err := orch.RunGapAnalysis(ctx, "prop-1", nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = orch.ConfirmGaps(ctx, "prop-1", gaps.Gaps)
			Expect(err).NotTo(HaveOccurred())
			_, err = orch.RunResearch(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())

			// Re-enter gap analysis with a revised gap list.
			gen.Responses = append(gen.Responses, `{
				"gaps": ["team qualifications"],
				"search_queries": ["supply chain audit team structure"],
				"reasoning": "pricing is now covered"
			}`)
			regapped, err := orch.RunGapAnalysis(ctx, "prop-1", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(regapped.Gaps).To(Equal([]string{"team qualifications"}))

			p, err := records.Get(ctx, "prop-1")
			Expect(err).NotTo(HaveOccurred())

			var stored research.GapAnalysisResult
			raw, _ := p.Output(string(StageGapAnalysis))
			Expect(json.Unmarshal(raw, &stored)).To(Succeed())
			Expect(stored.SearchQueries).To(Equal([]string{"supply chain audit team structure"}))

			// The prior research output survives the re-run untouched.
			var res research.Result
			raw, ok := p.Output(string(StageResearch))
			Expect(ok).To(BeTrue())
			Expect(json.Unmarshal(raw, &res)).To(Succeed())
			Expect(res.OverallSummary).To(Equal("Benchmarks located."))
		})
	})

	Describe("prior outline retrieval", func() {
		var fields extract.FieldSet

		BeforeEach(func() {
			fields = extract.FieldSet{
				extract.FieldEntityName:   {Value: "Acme Corp", Confidence: 0.95},
				extract.FieldIndustry:     {Value: "Manufacturing", Confidence: 0.9},
				extract.FieldServiceTypes: {Value: "supply chain audit", Confidence: 0.85},
			}
		})

		newOrchestratorWithPriors := func(episodes ...memory.ScoredItem) *Orchestrator {
			logger := zap.NewNop()
			facade := memory.NewFacade(nil, nil, &stubEpisodicTier{episodes: episodes}, logger)
			matcher, err := match.NewEngine(match.Config{})
			Expect(err).NotTo(HaveOccurred())
			return New(inmemory.NewDriver(), nil, nil, gen, nil, facade, matcher, Config{Rates: testRates}, logger)
		}

		It("ranks industry-matching outlines above others at equal similarity", func() {
			o := newOrchestratorWithPriors(
				synthesisEpisode("past-1", "retail outline", "retail", 0.8, 30*24*time.Hour),
				synthesisEpisode("past-2", "manufacturing outline", "manufacturing", 0.8, 30*24*time.Hour),
			)

			priors := o.priorOutlines(ctx, "prop-1", fields)
			Expect(priors).To(HaveLen(2))
			Expect(priors[0].Identity).To(Equal("manufacturing outline"))
			Expect(priors[0].CombinedScore).To(BeNumerically(">", priors[1].CombinedScore))
		})

		It("excludes the proposal's own synthesis episode", func() {
			o := newOrchestratorWithPriors(
				synthesisEpisode("prop-1", "own outline", "manufacturing", 0.99, 0),
				synthesisEpisode("past-2", "other outline", "manufacturing", 0.7, 24*time.Hour),
			)

			priors := o.priorOutlines(ctx, "prop-1", fields)
			Expect(priors).To(HaveLen(1))
			Expect(priors[0].Identity).To(Equal("other outline"))
		})

		It("returns nothing without a memory facade or matcher", func() {
			o, _ := newTestOrchestrator(gen, searcher)
			Expect(o.priorOutlines(ctx, "prop-1", fields)).To(BeNil())
		})
	})

	Describe("RecordReview", func() {
		It("requires a completed extraction", func() {
			err := orch.RecordReview(ctx, "prop-1", 0.9)

			var ae *AgentError
			Expect(err).To(BeAssignableToTypeOf(ae))
			Expect(err.Error()).To(ContainSubstring("metadata_extraction must be completed first"))
		})
	})

	Describe("RunDocumentGeneration", func() {
		It("refuses to render an empty synthesis", func() {
			empty, _ := json.Marshal(&SynthesisResult{Summary: "nothing"})
			Expect(records.SetStageOutput(ctx, "prop-1", string(StageSynthesis), empty)).To(Succeed())

			_, err := orch.RunDocumentGeneration(ctx, "prop-1")

			var ae *AgentError
			Expect(err).To(BeAssignableToTypeOf(ae))
			Expect(err.Error()).To(ContainSubstring("synthesis must be completed first"))
		})
	})
})
