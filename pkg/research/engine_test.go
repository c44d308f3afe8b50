package research

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/extract"
	"github.com/quillworks/quill/pkg/llm"
	"github.com/quillworks/quill/pkg/search"
	"github.com/quillworks/quill/pkg/tokens"
	testutils "github.com/quillworks/quill/pkg/utils/test"
)

func confidentFields() extract.FieldSet {
	return extract.FieldSet{
		extract.FieldEntityName: {Value: "Acme Corp", Confidence: 0.95},
		extract.FieldIndustry:   {Value: "Manufacturing", Confidence: 0.9},
	}
}

var _ = Describe("AnalyzeGaps", func() {
	var (
		ctx       context.Context
		generator *testutils.MockGenerator
		engine    *Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		generator = testutils.NewMockGenerator(
			`{"gaps": ["competitor landscape"], "search_queries": ["manufacturing consulting trends"], "reasoning": "outline needs market context", "deep_research_prompt": "should be ignored"}`,
		)
		engine = NewEngine(generator, nil, nil, Config{}, zap.NewNop())
	})

	It("returns gaps and queries with an empty deep research prompt", func() {
		result, err := engine.AnalyzeGaps(ctx, "sess-1", nil, confidentFields())
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Gaps).To(ConsistOf("competitor landscape"))
		Expect(result.SearchQueries).To(ConsistOf("manufacturing consulting trends"))
		Expect(result.DeepResearchPrompt).To(BeEmpty())
	})

	It("embeds the outline and extracted facts in the prompt", func() {
		_, err := engine.AnalyzeGaps(ctx, "sess-1", []string{"custom section"}, confidentFields())
		Expect(err).NotTo(HaveOccurred())

		prompt := generator.Requests[0].Prompt
		Expect(prompt).To(ContainSubstring("custom section"))
		Expect(prompt).To(ContainSubstring("entity_name: Acme Corp"))
	})

	It("fails with a parse error on an unrecoverable response", func() {
		generator.Responses = []string{"not json at all"}

		_, err := engine.AnalyzeGaps(ctx, "sess-1", nil, confidentFields())
		Expect(err).To(MatchError(extract.ErrUnparseable))
	})
})

var _ = Describe("directives", func() {
	var (
		ctx       context.Context
		generator *testutils.MockGenerator
		engine    *Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		// The generator leaks the client name back into the directive.
		generator = testutils.NewMockGenerator(
			"1. Role: market researcher\n2. Context: Acme Corp expansion\n3. Already addressed: none\n4. Gaps: competitor landscape\n5. Objectives: compile findings",
		)
		engine = NewEngine(generator, nil, nil, Config{}, zap.NewNop())
	})

	Describe("ConfirmGaps", func() {
		It("requires confirmed gaps", func() {
			_, err := engine.ConfirmGaps(ctx, confidentFields(), nil, nil)
			Expect(err).To(MatchError(ErrNoConfirmedGaps))
		})

		It("sanitizes the prompt and the generated directive", func() {
			directive, err := engine.ConfirmGaps(ctx, confidentFields(),
				[]string{"competitor landscape for Acme Corp"}, []string{"timeline"})
			Expect(err).NotTo(HaveOccurred())

			Expect(directive.Status).To(Equal(DirectiveGenerated))
			Expect(strings.ToLower(directive.Text)).NotTo(ContainSubstring("acme"))
			Expect(directive.Text).To(ContainSubstring(PlaceholderClient))

			prompt := generator.Requests[0].Prompt
			Expect(strings.ToLower(prompt)).NotTo(ContainSubstring("acme"))
		})

		It("produces sanitized text on repeated confirmation", func() {
			gaps := []string{"competitor landscape for Acme Corp"}

			first, err := engine.ConfirmGaps(ctx, confidentFields(), gaps, nil)
			Expect(err).NotTo(HaveOccurred())
			second, err := engine.ConfirmGaps(ctx, confidentFields(), gaps, nil)
			Expect(err).NotTo(HaveOccurred())

			for _, d := range []*Directive{first, second} {
				Expect(strings.ToLower(d.Text)).NotTo(ContainSubstring("acme"))
			}
		})
	})

	Describe("RegenerateDirective", func() {
		It("requires a prior directive", func() {
			_, err := engine.RegenerateDirective(ctx, confidentFields(), nil, "feedback")
			Expect(err).To(HaveOccurred())
		})

		It("sanitizes feedback and tags the result regenerated", func() {
			prior := &Directive{Text: "1. Role: researcher", Status: DirectiveGenerated}

			directive, err := engine.RegenerateDirective(ctx, confidentFields(), prior,
				"Focus on Acme Corp's regional competitors, contact john@acme.com for context")
			Expect(err).NotTo(HaveOccurred())

			Expect(directive.Status).To(Equal(DirectiveRegenerated))
			Expect(strings.ToLower(directive.Text)).NotTo(ContainSubstring("acme"))

			prompt := generator.Requests[0].Prompt
			Expect(strings.ToLower(prompt)).NotTo(ContainSubstring("acme"))
			Expect(prompt).To(ContainSubstring(PlaceholderEmail))
		})
	})
})

var _ = Describe("Research", func() {
	var (
		ctx       context.Context
		generator *testutils.MockGenerator
		searcher  *testutils.MockSearcher
		engine    *Engine
		delays    []time.Duration
	)

	scoringResponse := `{"results": [
		{"url": "https://a.example", "relevance_score": 0.8, "extracted_info": "market is growing"},
		{"url": "https://b.example", "relevance_score": 0.2, "extracted_info": "barely related"}
	], "summary": "strong growth signals"}`

	BeforeEach(func() {
		ctx = context.Background()
		generator = testutils.NewMockGenerator(scoringResponse, "overall: growth across queries")
		generator.Usage = llm.Usage{InputTokens: 100, OutputTokens: 50}

		searcher = testutils.NewMockSearcher()
		searcher.ResultsByQuery["trends"] = []search.Result{
			{Title: "A", URL: "https://a.example", Snippet: "alpha"},
			{Title: "B", URL: "https://b.example", Snippet: "beta"},
		}

		engine = NewEngine(generator, searcher, nil, Config{
			Rates: tokens.Rates{InputPerMTok: 3.0, OutputPerMTok: 15.0},
		}, zap.NewNop())

		delays = nil
		engine.sleep = func(_ context.Context, d time.Duration) {
			delays = append(delays, d)
		}
	})

	It("requires at least one query", func() {
		_, err := engine.Research(ctx, nil)
		Expect(err).To(MatchError(ErrNoSearchQueries))
	})

	It("filters findings below the relevance floor", func() {
		result, err := engine.Research(ctx, []string{"trends"})
		Expect(err).NotTo(HaveOccurred())

		Expect(result.ResearchResults).To(HaveLen(1))
		qr := result.ResearchResults[0]
		Expect(qr.Summary).To(Equal("strong growth signals"))
		Expect(qr.Results).To(HaveLen(1))
		Expect(qr.Results[0].URL).To(Equal("https://a.example"))
		Expect(qr.Results[0].Title).To(Equal("A"))
		Expect(qr.Results[0].ExtractedInfo).To(Equal("market is growing"))
	})

	It("records an explicit entry for a query with no results", func() {
		generator.Responses = []string{"overall: nothing found"}

		result, err := engine.Research(ctx, []string{"obscure query"})
		Expect(err).NotTo(HaveOccurred())

		Expect(result.ResearchResults).To(HaveLen(1))
		Expect(result.ResearchResults[0].Query).To(Equal("obscure query"))
		Expect(result.ResearchResults[0].Results).To(BeEmpty())
		Expect(result.ResearchResults[0].Summary).To(Equal(NoInformationFound))
	})

	It("pauses between successive searches but not before the first", func() {
		searcher.ResultsByQuery["second"] = nil
		searcher.ResultsByQuery["third"] = nil

		_, err := engine.Research(ctx, []string{"trends", "second", "third"})
		Expect(err).NotTo(HaveOccurred())

		Expect(searcher.Queries).To(Equal([]string{"trends", "second", "third"}))
		Expect(delays).To(Equal([]time.Duration{DefaultSearchDelay, DefaultSearchDelay}))
	})

	It("produces an overall summary and aggregated usage", func() {
		result, err := engine.Research(ctx, []string{"trends"})
		Expect(err).NotTo(HaveOccurred())

		Expect(result.OverallSummary).To(Equal("overall: growth across queries"))
		Expect(result.Usage.TotalInputTokens).To(Equal(int64(200)))
		Expect(result.Usage.TotalOutputTokens).To(Equal(int64(100)))
	})

	It("surfaces search failures", func() {
		searcher.FailOn = "trends"

		_, err := engine.Research(ctx, []string{"trends"})
		Expect(err).To(HaveOccurred())
	})
})
