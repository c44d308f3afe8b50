// Package match ranks candidate historical items or people against a query
// using a fixed weighted-score blend.
package match

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Result-set bounds. Fewer than MinResults qualifying candidates are
// backfilled with the next-highest scores rather than returning a short list.
const (
	MinResults = 5
	MaxResults = 10
)

// DefaultRelevanceFloor is the combined-score floor a candidate must clear
// to qualify without backfill.
const DefaultRelevanceFloor = 0.3

// recencyHalfLife is the age at which the recency score halves.
const recencyHalfLife = 365 * 24 * time.Hour

// ErrInvalidWeights is returned when a weight set does not sum to 1.0.
var ErrInvalidWeights = errors.New("score weights must sum to 1.0")

// Weights is the linear blend applied to a candidate's component scores.
// The default distribution is a design invariant, not a tunable default.
type Weights struct {
	Semantic  float64
	Metadata  float64
	Component float64
	Quality   float64
	WinStatus float64
	Recency   float64
}

// DefaultWeights is the fixed score distribution.
var DefaultWeights = Weights{
	Semantic:  0.60,
	Metadata:  0.12,
	Component: 0.10,
	Quality:   0.08,
	WinStatus: 0.05,
	Recency:   0.05,
}

// Validate checks that the six weights sum to exactly 1.0 within floating
// tolerance.
func (w Weights) Validate() error {
	sum := w.Semantic + w.Metadata + w.Component + w.Quality + w.WinStatus + w.Recency
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("%w: got %.9f", ErrInvalidWeights, sum)
	}
	return nil
}

// Candidate is one item to rank. Identity is opaque to the engine; every
// score is expected in [0,1].
type Candidate struct {
	// Identity names the candidate for the caller.
	Identity string `json:"identity"`

	SemanticScore  float64 `json:"semantic_score"`
	MetadataScore  float64 `json:"metadata_score"`
	ComponentScore float64 `json:"component_score"`
	QualityScore   float64 `json:"quality_score"`
	WinStatusScore float64 `json:"win_status_score"`

	// CreatedAt feeds the recency score.
	CreatedAt time.Time `json:"created_at"`
}

// ScoredCandidate is a candidate with its recency and combined scores
// filled in.
type ScoredCandidate struct {
	Candidate

	RecencyScore  float64 `json:"recency_score"`
	CombinedScore float64 `json:"combined_score"`
}

// Engine ranks candidates with a fixed weight set.
type Engine struct {
	weights Weights
	floor   float64

	// now is swappable so tests can control the clock.
	now func() time.Time
}

// Config holds configuration for the matching engine.
type Config struct {
	// Weights defaults to DefaultWeights if zero.
	Weights Weights

	// RelevanceFloor defaults to DefaultRelevanceFloor if zero.
	RelevanceFloor float64
}

// NewEngine creates a matching engine, validating the weight distribution.
func NewEngine(config Config) (*Engine, error) {
	weights := config.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	floor := config.RelevanceFloor
	if floor == 0 {
		floor = DefaultRelevanceFloor
	}

	return &Engine{
		weights: weights,
		floor:   floor,
		now:     time.Now,
	}, nil
}

// Score computes a candidate's recency and combined scores.
func (e *Engine) Score(c Candidate) ScoredCandidate {
	recency := e.recencyScore(c.CreatedAt)

	combined := e.weights.Semantic*c.SemanticScore +
		e.weights.Metadata*c.MetadataScore +
		e.weights.Component*c.ComponentScore +
		e.weights.Quality*c.QualityScore +
		e.weights.WinStatus*c.WinStatusScore +
		e.weights.Recency*recency

	return ScoredCandidate{
		Candidate:     c,
		RecencyScore:  recency,
		CombinedScore: combined,
	}
}

// Rank scores all candidates and returns between MinResults and MaxResults
// of them, best first. Candidates below the relevance floor only appear as
// backfill when fewer than MinResults qualify.
func (e *Engine) Rank(candidates []Candidate) []ScoredCandidate {
	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, e.Score(c))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].CombinedScore > scored[j].CombinedScore
	})

	qualified := 0
	for _, s := range scored {
		if s.CombinedScore > e.floor {
			qualified++
		}
	}

	n := qualified
	if n < MinResults {
		n = MinResults
	}
	if n > MaxResults {
		n = MaxResults
	}
	if n > len(scored) {
		n = len(scored)
	}

	return scored[:n]
}

// recencyScore decays exponentially with age, halving every year. The curve
// is monotonically non-increasing with age and bounded in [0,1].
func (e *Engine) recencyScore(createdAt time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}

	age := e.now().Sub(createdAt)
	if age <= 0 {
		return 1
	}

	return math.Pow(0.5, float64(age)/float64(recencyHalfLife))
}
