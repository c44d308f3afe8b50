// Package memory provides the tiered memory layer for the quill pipeline.
//
// Three tiers share one CRUD contract with different durability and retrieval
// semantics: the ephemeral tier is time-boxed and session-scoped, the
// persistent tier holds organizational knowledge for unbounded lifetimes, and
// the episodic tier supports semantic similarity search over embedded text.
//
// Tiers are pluggable via configuration and independently optional: the
// [Facade] degrades to "no context available" when a tier is absent or its
// backend is unreachable. Tier unavailability is never a pipeline failure.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist in a tier.
	ErrNotFound = errors.New("memory item not found")

	// ErrUnavailable is returned when a tier's backend is unreachable.
	ErrUnavailable = errors.New("memory tier unavailable")
)

// Item is one stored memory entry. Items are exclusively owned by the tier
// backend that stores them; callers receive copies and never shared state.
type Item struct {
	// Key uniquely identifies the item within a tier.
	Key string `json:"key"`

	// Value is the structured payload.
	Value map[string]any `json:"value"`

	// Metadata is a flat string map used for exact-match filtering.
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// TTL bounds the item lifetime. Only the ephemeral tier honors it;
	// durable tiers ignore a non-zero TTL.
	TTL time.Duration `json:"ttl,omitempty"`
}

// Tier is the uniform contract implemented by every memory backend.
type Tier interface {
	// Store persists an item, replacing any existing item under the same key.
	Store(ctx context.Context, item Item) error

	// Retrieve returns the item under key, or ErrNotFound.
	Retrieve(ctx context.Context, key string) (*Item, error)

	// Update replaces the value and metadata of an existing item.
	// Returns ErrNotFound if the key is absent.
	Update(ctx context.Context, key string, value map[string]any, metadata map[string]string) error

	// Delete removes the item under key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases backend resources.
	Close() error
}

// Mutator is implemented by tiers that can apply an atomic read-modify-write
// to a single key. The callback receives the current value (nil when the key
// is absent) and returns the replacement value. Implementations must
// serialize concurrent mutations per key so accumulation patterns (appending
// a correction to a growing list) never lose updates.
type Mutator interface {
	Mutate(ctx context.Context, key string, fn func(value map[string]any) map[string]any) error
}

// PersistentTier is the contract of the organizational-knowledge tier.
type PersistentTier interface {
	Tier
	Mutator
}

// ScoredItem is an item with a semantic similarity score (higher = closer).
type ScoredItem struct {
	Item

	Score float64 `json:"score"`
}

// EpisodicTier extends the CRUD contract with semantic retrieval.
type EpisodicTier interface {
	Tier

	// SearchSimilar returns up to n items ranked by semantic similarity to
	// the query text. A non-nil filter restricts results to items whose
	// metadata exactly matches every filter entry.
	SearchSimilar(ctx context.Context, queryText string, n int, filter map[string]string) ([]ScoredItem, error)

	// GetByMetadata returns up to limit items whose metadata exactly matches
	// every filter entry.
	GetByMetadata(ctx context.Context, filter map[string]string, limit int) ([]Item, error)
}

// EmbedText returns the text an episodic backend embeds for an item. A
// string "summary" or "text" field wins; otherwise the compact JSON of the
// whole value is used.
func EmbedText(item Item) string {
	if s, ok := item.Value["summary"].(string); ok && s != "" {
		return s
	}
	if s, ok := item.Value["text"].(string); ok && s != "" {
		return s
	}

	raw, err := json.Marshal(item.Value)
	if err != nil || len(raw) == 0 {
		return ""
	}
	return string(raw)
}

// MatchesMetadata reports whether the item's metadata satisfies every entry
// of the filter. An empty filter matches everything.
func MatchesMetadata(item Item, filter map[string]string) bool {
	for k, want := range filter {
		if got, ok := item.Metadata[k]; !ok || got != want {
			return false
		}
	}
	return true
}
