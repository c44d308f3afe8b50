package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/eventstream"
	"github.com/quillworks/quill/pkg/extract"
	"github.com/quillworks/quill/pkg/llm"
	"github.com/quillworks/quill/pkg/match"
	"github.com/quillworks/quill/pkg/memory"
	"github.com/quillworks/quill/pkg/pipeline/worker"
	"github.com/quillworks/quill/pkg/research"
	"github.com/quillworks/quill/pkg/store"
	"github.com/quillworks/quill/pkg/tokens"
)

// Config holds configuration for the orchestrator's own generation calls.
type Config struct {
	// MaxTokens bounds the synthesis and document generation responses.
	MaxTokens int

	// Rates price the generation calls.
	Rates tokens.Rates
}

// Orchestrator sequences the engines over a proposal record. Every stage
// entry point is independently invocable; the orchestrator never retries a
// failed stage on its own, it surfaces the typed error to the caller.
type Orchestrator struct {
	records    store.Driver
	extractor  *extract.Engine
	researcher *research.Engine
	generator  llm.Generator
	pool       *worker.Pool
	mem        *memory.Facade
	matcher    *match.Engine
	config     Config
	logger     *zap.Logger

	// now is swappable so tests can control stage timing.
	now func() time.Time
}

// New creates an orchestrator. The worker pool, memory facade, and matcher
// may each be nil: a nil pool runs stage side effects nowhere, and a nil
// facade or matcher skips prior-proposal retrieval during synthesis.
func New(records store.Driver, extractor *extract.Engine, researcher *research.Engine, generator llm.Generator, pool *worker.Pool, mem *memory.Facade, matcher *match.Engine, config Config, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		records:    records,
		extractor:  extractor,
		researcher: researcher,
		generator:  generator,
		pool:       pool,
		mem:        mem,
		matcher:    matcher,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// SynthesisResult is the structured outline produced by the synthesis stage.
type SynthesisResult struct {
	Sections []OutlineSection `json:"sections"`
	Summary  string           `json:"summary"`
	Usage    tokens.Usage     `json:"usage"`
}

// OutlineSection is one section of the synthesized outline.
type OutlineSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// DocumentResult is the terminal artifact of the pipeline: the outline text
// handed to an external renderer.
type DocumentResult struct {
	Document string       `json:"document"`
	Usage    tokens.Usage `json:"usage"`
}

// Completed returns the stages whose output exists on the proposal, in
// pipeline order up to the first missing one.
func Completed(p *store.Proposal) []Stage {
	var done []Stage
	for _, stage := range stageOrder {
		if _, ok := p.Output(string(stage)); !ok {
			break
		}
		done = append(done, stage)
	}
	return done
}

// NextStage returns the first stage without output, or false when the
// pipeline is complete.
func NextStage(p *store.Proposal) (Stage, bool) {
	done := Completed(p)
	if len(done) == len(stageOrder) {
		return "", false
	}
	return stageOrder[len(done)], true
}

// RunExtraction runs the metadata extraction stage against the proposal's
// source text.
func (o *Orchestrator) RunExtraction(ctx context.Context, proposalID string) (*extract.Result, error) {
	started := o.now()

	p, err := o.loadProposal(ctx, StageMetadataExtraction, proposalID)
	if err != nil {
		return nil, err
	}

	result, err := o.extractor.Extract(ctx, proposalID, p.SourceText)
	if err != nil {
		return nil, o.classify(StageMetadataExtraction, err)
	}

	if err := o.saveOutput(ctx, proposalID, StageMetadataExtraction, result); err != nil {
		return nil, err
	}

	// The extraction engine stores its own episode; only the event remains.
	o.completeStage(proposalID, StageMetadataExtraction, started, &result.Usage, "", nil, nil)

	return result, nil
}

// RunGapAnalysis compares the extracted fields against the target outline.
// Requires a completed extraction.
func (o *Orchestrator) RunGapAnalysis(ctx context.Context, proposalID string, outline []string) (*research.GapAnalysisResult, error) {
	started := o.now()

	fields, err := o.loadFields(ctx, StageGapAnalysis, proposalID)
	if err != nil {
		return nil, err
	}

	result, err := o.researcher.AnalyzeGaps(ctx, proposalID, outline, fields)
	if err != nil {
		return nil, o.classify(StageGapAnalysis, err)
	}

	if err := o.saveOutput(ctx, proposalID, StageGapAnalysis, result); err != nil {
		return nil, err
	}

	o.completeStage(proposalID, StageGapAnalysis, started, nil,
		episodeKey(StageGapAnalysis, proposalID),
		map[string]any{
			"summary": fmt.Sprintf("gap analysis found %d gaps: %s",
				len(result.Gaps), strings.Join(result.Gaps, "; ")),
			"gaps":    toAny(result.Gaps),
			"queries": toAny(result.SearchQueries),
		},
		map[string]string{"stage": string(StageGapAnalysis), "session": proposalID})

	return result, nil
}

// ConfirmGaps turns the human-confirmed gap list into a deep research
// directive and records it on the stored gap analysis.
func (o *Orchestrator) ConfirmGaps(ctx context.Context, proposalID string, confirmedGaps []string) (*research.Directive, error) {
	fields, err := o.loadFields(ctx, StageGapAnalysis, proposalID)
	if err != nil {
		return nil, err
	}

	var gaps research.GapAnalysisResult
	if err := o.loadOutput(ctx, StageGapAnalysis, proposalID, StageGapAnalysis, &gaps); err != nil {
		return nil, err
	}

	directive, err := o.researcher.ConfirmGaps(ctx, fields, confirmedGaps, addressedRequirements(fields))
	if err != nil {
		return nil, o.classify(StageGapAnalysis, err)
	}

	gaps.Gaps = confirmedGaps
	gaps.DeepResearchPrompt = directive.Text
	if err := o.saveOutput(ctx, proposalID, StageGapAnalysis, &gaps); err != nil {
		return nil, err
	}

	return directive, nil
}

// RegenerateDirective revises the stored directive from reviewer feedback.
func (o *Orchestrator) RegenerateDirective(ctx context.Context, proposalID, feedback string) (*research.Directive, error) {
	fields, err := o.loadFields(ctx, StageGapAnalysis, proposalID)
	if err != nil {
		return nil, err
	}

	var gaps research.GapAnalysisResult
	if err := o.loadOutput(ctx, StageGapAnalysis, proposalID, StageGapAnalysis, &gaps); err != nil {
		return nil, err
	}
	if gaps.DeepResearchPrompt == "" {
		return nil, &AgentError{
			Stage:   StageGapAnalysis,
			Message: "no research directive to regenerate: confirm the gap list first",
		}
	}

	prior := &research.Directive{Text: gaps.DeepResearchPrompt, Status: research.DirectiveGenerated}
	directive, err := o.researcher.RegenerateDirective(ctx, fields, prior, feedback)
	if err != nil {
		return nil, o.classify(StageGapAnalysis, err)
	}

	gaps.DeepResearchPrompt = directive.Text
	if err := o.saveOutput(ctx, proposalID, StageGapAnalysis, &gaps); err != nil {
		return nil, err
	}

	return directive, nil
}

// RunResearch executes the search queries produced by gap analysis.
// Requires a completed gap analysis with at least one query.
func (o *Orchestrator) RunResearch(ctx context.Context, proposalID string) (*research.Result, error) {
	started := o.now()

	var gaps research.GapAnalysisResult
	if err := o.loadOutput(ctx, StageResearch, proposalID, StageGapAnalysis, &gaps); err != nil {
		return nil, err
	}
	if len(gaps.SearchQueries) == 0 {
		return nil, &AgentError{
			Stage:   StageResearch,
			Message: "no search queries found in gap analysis: gap analysis must be completed first",
		}
	}

	result, err := o.researcher.Research(ctx, gaps.SearchQueries)
	if err != nil {
		return nil, o.classify(StageResearch, err)
	}

	if err := o.saveOutput(ctx, proposalID, StageResearch, result); err != nil {
		return nil, err
	}

	usage := tokens.Usage{
		InputTokens:      result.Usage.TotalInputTokens,
		OutputTokens:     result.Usage.TotalOutputTokens,
		EstimatedCostUSD: result.Usage.TotalCostUSD,
	}
	o.completeStage(proposalID, StageResearch, started, &usage,
		episodeKey(StageResearch, proposalID),
		map[string]any{
			"summary": result.OverallSummary,
			"queries": toAny(gaps.SearchQueries),
		},
		map[string]string{"stage": string(StageResearch), "session": proposalID})

	return result, nil
}

const synthesisSystemPrompt = `You synthesize proposal outlines from extracted facts and research findings. Respond with a single JSON object and nothing else.`

// RunSynthesis merges extraction, gap, and research output into a
// structured outline. Requires completed research.
func (o *Orchestrator) RunSynthesis(ctx context.Context, proposalID string) (*SynthesisResult, error) {
	started := o.now()

	fields, err := o.loadFields(ctx, StageSynthesis, proposalID)
	if err != nil {
		return nil, err
	}

	var gaps research.GapAnalysisResult
	if err := o.loadOutput(ctx, StageSynthesis, proposalID, StageGapAnalysis, &gaps); err != nil {
		return nil, err
	}

	var res research.Result
	if err := o.loadOutput(ctx, StageSynthesis, proposalID, StageResearch, &res); err != nil {
		return nil, err
	}

	priors := o.priorOutlines(ctx, proposalID, fields)

	prompt := synthesisPrompt(fields, &gaps, &res, priors)

	resp, err := o.generator.Generate(ctx, &llm.Request{
		System:    synthesisSystemPrompt,
		Prompt:    prompt,
		MaxTokens: o.config.MaxTokens,
	})
	if err != nil {
		return nil, o.classify(StageSynthesis, fmt.Errorf("synthesis generation failed: %w", err))
	}

	var result SynthesisResult
	if err := extract.DecodeJSON(resp.Text, &result); err != nil {
		return nil, o.classify(StageSynthesis, fmt.Errorf("parsing synthesis response: %w", err))
	}
	if resp.Usage != nil {
		result.Usage = tokens.NewUsage(o.config.Rates, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	if err := o.saveOutput(ctx, proposalID, StageSynthesis, &result); err != nil {
		return nil, err
	}

	o.completeStage(proposalID, StageSynthesis, started, &result.Usage,
		episodeKey(StageSynthesis, proposalID),
		map[string]any{
			"summary":  result.Summary,
			"sections": len(result.Sections),
		},
		map[string]string{
			"stage":    string(StageSynthesis),
			"session":  proposalID,
			"industry": strings.ToLower(fields.StringValue(extract.FieldIndustry)),
		})

	return &result, nil
}

const documentSystemPrompt = `You write proposal outline documents. Respond with the document text only, no preamble.`

// RunDocumentGeneration renders the synthesized outline into the final
// document text. Terminal stage; the text goes to an external renderer.
func (o *Orchestrator) RunDocumentGeneration(ctx context.Context, proposalID string) (*DocumentResult, error) {
	started := o.now()

	var synthesis SynthesisResult
	if err := o.loadOutput(ctx, StageDocumentGeneration, proposalID, StageSynthesis, &synthesis); err != nil {
		return nil, err
	}
	if len(synthesis.Sections) == 0 {
		return nil, &AgentError{
			Stage:   StageDocumentGeneration,
			Message: "no outline sections found in synthesis: synthesis must be completed first",
		}
	}

	var buf strings.Builder
	buf.WriteString("Write the full proposal outline document from these sections:\n\n")
	for i, s := range synthesis.Sections {
		fmt.Fprintf(&buf, "%d. %s\n%s\n\n", i+1, s.Title, s.Content)
	}

	resp, err := o.generator.Generate(ctx, &llm.Request{
		System:    documentSystemPrompt,
		Prompt:    buf.String(),
		MaxTokens: o.config.MaxTokens,
	})
	if err != nil {
		return nil, o.classify(StageDocumentGeneration, fmt.Errorf("document generation failed: %w", err))
	}

	result := &DocumentResult{Document: strings.TrimSpace(resp.Text)}
	if resp.Usage != nil {
		result.Usage = tokens.NewUsage(o.config.Rates, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	if err := o.saveOutput(ctx, proposalID, StageDocumentGeneration, result); err != nil {
		return nil, err
	}

	o.completeStage(proposalID, StageDocumentGeneration, started, &result.Usage,
		episodeKey(StageDocumentGeneration, proposalID),
		map[string]any{
			"summary": fmt.Sprintf("generated outline document with %d sections", len(synthesis.Sections)),
		},
		map[string]string{"stage": string(StageDocumentGeneration), "session": proposalID})

	return result, nil
}

// priorOutlines retrieves synthesis episodes from past proposals and ranks
// them so the most relevant outlines inform the current one. The episodic
// tier's similarity score feeds the semantic component; an industry match
// feeds the metadata component. Absent tiers or matcher yield no priors.
func (o *Orchestrator) priorOutlines(ctx context.Context, proposalID string, fields extract.FieldSet) []match.ScoredCandidate {
	if o.mem == nil || o.matcher == nil {
		return nil
	}

	query := strings.TrimSpace(fmt.Sprintf("%s %s %s",
		fields.StringValue(extract.FieldEntityName),
		fields.StringValue(extract.FieldIndustry),
		fields.StringValue(extract.FieldServiceTypes)))
	if query == "" {
		return nil
	}

	episodes := o.mem.SimilarEpisodes(ctx, query, 2*match.MaxResults,
		map[string]string{"stage": string(StageSynthesis)})

	industry := strings.ToLower(fields.StringValue(extract.FieldIndustry))

	candidates := make([]match.Candidate, 0, len(episodes))
	for _, ep := range episodes {
		if ep.Metadata["session"] == proposalID {
			continue
		}

		summary, _ := ep.Value["summary"].(string)
		if summary == "" {
			continue
		}

		metadataScore := 0.0
		if industry != "" && ep.Metadata["industry"] == industry {
			metadataScore = 1.0
		}

		candidates = append(candidates, match.Candidate{
			Identity:      summary,
			SemanticScore: ep.Score,
			MetadataScore: metadataScore,
			CreatedAt:     ep.CreatedAt,
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	ranked := o.matcher.Rank(candidates)

	o.logger.Debug("ranked prior outlines",
		zap.String("proposal_id", proposalID),
		zap.Int("candidates", len(candidates)),
		zap.Int("ranked", len(ranked)),
	)

	return ranked
}

// RecordCorrection forwards a human correction to the extraction engine's
// memory feedback path.
func (o *Orchestrator) RecordCorrection(ctx context.Context, proposalID string, c memory.Correction) {
	o.extractor.RecordCorrection(ctx, proposalID, c)
}

// RecordReview back-fills the reviewed accuracy score on the proposal's
// stored extraction episode, making it usable as a quality signal for later
// metadata queries.
func (o *Orchestrator) RecordReview(ctx context.Context, proposalID string, accuracy float64) error {
	var result extract.Result
	if err := o.loadOutput(ctx, StageMetadataExtraction, proposalID, StageMetadataExtraction, &result); err != nil {
		return err
	}

	o.extractor.BackfillAccuracy(ctx, result.EpisodeKey, accuracy)
	return nil
}

// loadProposal fetches the record, mapping absence to an actionable error.
func (o *Orchestrator) loadProposal(ctx context.Context, stage Stage, proposalID string) (*store.Proposal, error) {
	p, err := o.records.Get(ctx, proposalID)
	if err != nil {
		var nf store.NotFoundError
		if errors.As(err, &nf) {
			return nil, &AgentError{
				Stage:   stage,
				Message: fmt.Sprintf("proposal %s not found", proposalID),
				Err:     err,
			}
		}
		return nil, fmt.Errorf("loading proposal %s: %w", proposalID, err)
	}
	return p, nil
}

// loadOutput decodes a prior stage's stored output, mapping absence to the
// actionable predecessor error.
func (o *Orchestrator) loadOutput(ctx context.Context, stage Stage, proposalID string, from Stage, v any) error {
	p, err := o.loadProposal(ctx, stage, proposalID)
	if err != nil {
		return err
	}

	raw, ok := p.Output(string(from))
	if !ok {
		return &AgentError{
			Stage:   stage,
			Message: fmt.Sprintf("no %s output found: %s must be completed first", from, from),
		}
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %s output of %s: %w", from, proposalID, err)
	}
	return nil
}

// loadFields decodes the extraction stage's field set.
func (o *Orchestrator) loadFields(ctx context.Context, stage Stage, proposalID string) (extract.FieldSet, error) {
	var result extract.Result
	if err := o.loadOutput(ctx, stage, proposalID, StageMetadataExtraction, &result); err != nil {
		return nil, err
	}
	if len(result.Fields) == 0 {
		return nil, &AgentError{
			Stage:   stage,
			Message: "no extracted fields found: metadata extraction must be completed first",
		}
	}
	return result.Fields, nil
}

func (o *Orchestrator) saveOutput(ctx context.Context, proposalID string, stage Stage, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s output: %w", stage, err)
	}
	if err := o.records.SetStageOutput(ctx, proposalID, string(stage), raw); err != nil {
		return fmt.Errorf("persisting %s output: %w", stage, err)
	}
	return nil
}

// completeStage hands the stage's side effects to the worker pool.
func (o *Orchestrator) completeStage(proposalID string, stage Stage, started time.Time, usage *tokens.Usage, episodeKey string, episodeValue map[string]any, episodeMetadata map[string]string) {
	o.logger.Info("stage complete",
		zap.String("proposal_id", proposalID),
		zap.String("stage", string(stage)),
		zap.Duration("duration", o.now().Sub(started)),
	)

	if o.pool == nil {
		return
	}

	o.pool.Enqueue(worker.Job{
		Stage:           string(stage),
		EpisodeKey:      episodeKey,
		EpisodeValue:    episodeValue,
		EpisodeMetadata: episodeMetadata,
		Event: eventstream.NewStageCompletedEvent(
			proposalID, proposalID, string(stage), o.now().Sub(started), usage),
	})
}

// classify maps an engine error to the caller-facing taxonomy.
func (o *Orchestrator) classify(stage Stage, err error) error {
	switch {
	case errors.Is(err, extract.ErrUnparseable),
		errors.Is(err, extract.ErrEmptySource),
		errors.Is(err, llm.ErrEmptyPrompt):
		return &ValidationError{Stage: stage, Message: err.Error(), Err: err}
	case errors.Is(err, llm.ErrRetryExhausted):
		return &ExtractionError{Stage: stage, Message: err.Error(), Err: err}
	default:
		return &AgentError{Stage: stage, Message: err.Error(), Err: err}
	}
}

func episodeKey(stage Stage, proposalID string) string {
	return fmt.Sprintf("%s:%s", stage, proposalID)
}

// addressedRequirements summarizes what the extraction already covers, for
// the directive's "already addressed" section.
func addressedRequirements(fields extract.FieldSet) []string {
	var out []string
	for _, name := range []string{extract.FieldObjectives, extract.FieldRequirements} {
		fr, ok := fields[name]
		if !ok || fr.Value == nil {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %v", name, fr.Value))
	}
	return out
}

func synthesisPrompt(fields extract.FieldSet, gaps *research.GapAnalysisResult, res *research.Result, priors []match.ScoredCandidate) string {
	var buf strings.Builder

	buf.WriteString("Synthesize a proposal outline from the following.\n\nExtracted facts:\n")
	for name, fr := range fields {
		if fr.Value == nil {
			continue
		}
		fmt.Fprintf(&buf, "- %s: %v\n", name, fr.Value)
	}

	buf.WriteString("\nIdentified gaps:\n")
	for _, g := range gaps.Gaps {
		fmt.Fprintf(&buf, "- %s\n", g)
	}

	buf.WriteString("\nResearch findings:\n")
	for _, qr := range res.ResearchResults {
		fmt.Fprintf(&buf, "- %s: %s\n", qr.Query, qr.Summary)
	}
	fmt.Fprintf(&buf, "\nOverall: %s\n", res.OverallSummary)

	if len(priors) > 0 {
		buf.WriteString("\nOutlines from similar past proposals, most relevant first:\n")
		for _, p := range priors {
			fmt.Fprintf(&buf, "- %s\n", p.Identity)
		}
	}

	buf.WriteString(`
Respond with a JSON object: {"sections": [{"title": "...", "content": "..."}], "summary": "..."}.`)

	return buf.String()
}

func toAny(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}
