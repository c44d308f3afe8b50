package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/extract"
	"github.com/quillworks/quill/pkg/llm"
	"github.com/quillworks/quill/pkg/search"
	"github.com/quillworks/quill/pkg/tokens"
)

// ErrNoSearchQueries is returned when a research run has no queries to
// execute, typically because gap analysis has not been completed.
var ErrNoSearchQueries = errors.New("no search queries found in gap analysis")

// NoInformationFound is the summary recorded for a query with zero results.
const NoInformationFound = "no information found for this query"

// SearchFinding is one scored search result.
type SearchFinding struct {
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	Snippet        string  `json:"snippet"`
	ExtractedInfo  string  `json:"extracted_info"`
	RelevanceScore float64 `json:"relevance_score"`
}

// QueryResearch is the outcome of researching one query.
type QueryResearch struct {
	Query   string          `json:"query"`
	Results []SearchFinding `json:"results"`
	Summary string          `json:"summary"`
}

// Result is the outcome of one research run.
type Result struct {
	ResearchResults []QueryResearch `json:"research_results"`
	OverallSummary  string          `json:"overall_summary"`

	// Usage aggregates the scoring and summary generation calls.
	Usage tokens.Summary `json:"usage"`
}

const scoreSystemPrompt = `You assess web search results for a proposal research task. Respond with a single JSON object and nothing else.`

var scorePromptTemplate = template.Must(template.New("score").Parse(`Search query: {{.Query}}

Results:
{{range $i, $r := .Results}}{{$i}}. {{$r.Title}}
   url: {{$r.URL}}
   snippet: {{$r.Snippet}}
{{end}}
For each result, rate its relevance to the query from 0 to 1 and extract the
key information in one or two sentences. Then summarize the useful findings.

Respond with a JSON object:
{"results": [{"url": "...", "relevance_score": 0.0, "extracted_info": "..."}], "summary": "..."}`))

const overallSystemPrompt = `You write executive summaries of research findings. Respond with the summary text only.`

// Research executes one search per query with a courtesy delay between
// calls, scores and filters the results, and produces per-query and overall
// summaries. A query with zero search results still yields an entry with an
// explicit "no information found" summary.
func (e *Engine) Research(ctx context.Context, queries []string) (*Result, error) {
	if len(queries) == 0 {
		return nil, ErrNoSearchQueries
	}
	if e.searcher == nil {
		return nil, fmt.Errorf("no searcher configured")
	}

	var (
		result Result
		usages []tokens.Usage
	)

	for i, query := range queries {
		if i > 0 {
			e.sleep(ctx, e.config.SearchDelay)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hits, err := e.searcher.Search(ctx, query, e.config.ResultsPerQuery)
		if err != nil {
			return nil, fmt.Errorf("searching %q: %w", query, err)
		}

		if len(hits) == 0 {
			e.logger.Debug("query returned no results", zap.String("query", query))
			result.ResearchResults = append(result.ResearchResults, QueryResearch{
				Query:   query,
				Summary: NoInformationFound,
			})
			continue
		}

		qr, usage, err := e.scoreQuery(ctx, query, hits)
		if err != nil {
			return nil, err
		}
		if usage != nil {
			usages = append(usages, *usage)
		}

		result.ResearchResults = append(result.ResearchResults, *qr)
	}

	overall, usage, err := e.summarizeOverall(ctx, result.ResearchResults)
	if err != nil {
		return nil, err
	}
	if usage != nil {
		usages = append(usages, *usage)
	}

	result.OverallSummary = overall
	result.Usage = tokens.Summarize(e.config.Rates, usages)

	return &result, nil
}

// scoreQuery runs the scoring generation call for one query's search hits,
// filters to findings above the relevance floor, and keeps the per-query
// summary.
func (e *Engine) scoreQuery(ctx context.Context, query string, hits []search.Result) (*QueryResearch, *tokens.Usage, error) {
	data := struct {
		Query   string
		Results []search.Result
	}{Query: query, Results: hits}

	var buf strings.Builder
	if err := scorePromptTemplate.Execute(&buf, data); err != nil {
		return nil, nil, fmt.Errorf("rendering scoring prompt: %w", err)
	}

	resp, err := e.generator.Generate(ctx, &llm.Request{
		System:    scoreSystemPrompt,
		Prompt:    buf.String(),
		MaxTokens: e.config.MaxTokens,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scoring generation failed for %q: %w", query, err)
	}

	var scored struct {
		Results []struct {
			URL            string  `json:"url"`
			RelevanceScore float64 `json:"relevance_score"`
			ExtractedInfo  string  `json:"extracted_info"`
		} `json:"results"`
		Summary string `json:"summary"`
	}
	if err := extract.DecodeJSON(resp.Text, &scored); err != nil {
		return nil, nil, fmt.Errorf("parsing scoring response for %q: %w", query, err)
	}

	byURL := make(map[string]search.Result, len(hits))
	for _, h := range hits {
		byURL[h.URL] = h
	}

	qr := &QueryResearch{Query: query, Summary: scored.Summary}
	for _, s := range scored.Results {
		if s.RelevanceScore <= e.config.RelevanceFloor {
			continue
		}
		hit := byURL[s.URL]
		qr.Results = append(qr.Results, SearchFinding{
			URL:            s.URL,
			Title:          hit.Title,
			Snippet:        hit.Snippet,
			ExtractedInfo:  s.ExtractedInfo,
			RelevanceScore: s.RelevanceScore,
		})
	}

	if qr.Summary == "" {
		qr.Summary = NoInformationFound
	}

	var usage *tokens.Usage
	if resp.Usage != nil {
		u := tokens.NewUsage(e.config.Rates, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		usage = &u
	}

	return qr, usage, nil
}

// summarizeOverall produces the executive summary across all queries.
func (e *Engine) summarizeOverall(ctx context.Context, perQuery []QueryResearch) (string, *tokens.Usage, error) {
	var buf strings.Builder
	buf.WriteString("Write one executive summary of these research findings:\n\n")
	for _, qr := range perQuery {
		fmt.Fprintf(&buf, "Query: %s\nFindings: %s\n\n", qr.Query, qr.Summary)
	}

	resp, err := e.generator.Generate(ctx, &llm.Request{
		System:    overallSystemPrompt,
		Prompt:    buf.String(),
		MaxTokens: e.config.MaxTokens,
	})
	if err != nil {
		return "", nil, fmt.Errorf("overall summary generation failed: %w", err)
	}

	var usage *tokens.Usage
	if resp.Usage != nil {
		u := tokens.NewUsage(e.config.Rates, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		usage = &u
	}

	return strings.TrimSpace(resp.Text), usage, nil
}
