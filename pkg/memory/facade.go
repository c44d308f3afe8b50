package memory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Persistent-tier keys for organizational knowledge.
const (
	KeyNamingConventions = "naming_conventions"
	KeyClientPatterns    = "client_patterns"
)

// Correction records one human correction of an extracted field.
type Correction struct {
	Field     string    `json:"field"`
	Original  string    `json:"original"`
	Corrected string    `json:"corrected"`
	At        time.Time `json:"at"`
}

// Facade unifies the three tiers behind domain-specific helper operations.
// Any tier may be nil (not configured) or unavailable; every helper degrades
// to an empty result with a logged warning. The facade never caches items
// beyond a call.
type Facade struct {
	ephemeral  Tier
	persistent PersistentTier
	episodic   EpisodicTier
	logger     *zap.Logger
}

// NewFacade builds a facade over the given tiers. Nil tiers are allowed.
func NewFacade(ephemeral Tier, persistent PersistentTier, episodic EpisodicTier, logger *zap.Logger) *Facade {
	return &Facade{
		ephemeral:  ephemeral,
		persistent: persistent,
		episodic:   episodic,
		logger:     logger,
	}
}

// Close closes every configured tier, returning the first error.
func (f *Facade) Close() error {
	var firstErr error
	for _, t := range []Tier{f.ephemeral, f.persistent, f.episodic} {
		if t == nil {
			continue
		}
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NamingConventions returns the organization's preferred phrasings keyed by
// field name. Absent tier or key yields an empty map.
func (f *Facade) NamingConventions(ctx context.Context) map[string]string {
	value := f.persistentValue(ctx, KeyNamingConventions)

	conventions := make(map[string]string, len(value))
	for k, v := range value {
		if s, ok := v.(string); ok {
			conventions[k] = s
		}
	}
	return conventions
}

// RecordNamingConvention stores a corrected phrasing for a field as an atomic
// update so concurrent stage runs cannot overwrite each other.
func (f *Facade) RecordNamingConvention(ctx context.Context, field, corrected string) {
	if f.persistent == nil {
		return
	}

	err := f.persistent.Mutate(ctx, KeyNamingConventions, func(value map[string]any) map[string]any {
		if value == nil {
			value = make(map[string]any)
		}
		value[field] = corrected
		return value
	})
	if err != nil {
		f.logger.Warn("persistent tier unavailable, naming convention not recorded",
			zap.String("field", field),
			zap.Error(err),
		)
	}
}

// ClientPatterns returns stored client patterns. Absent tier or key yields
// an empty map.
func (f *Facade) ClientPatterns(ctx context.Context) map[string]any {
	return f.persistentValue(ctx, KeyClientPatterns)
}

// SessionCorrections returns the corrections recorded during a working
// session, oldest first.
func (f *Facade) SessionCorrections(ctx context.Context, sessionID string) []Correction {
	if f.ephemeral == nil {
		return nil
	}

	item, err := f.ephemeral.Retrieve(ctx, correctionsKey(sessionID))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			f.logger.Warn("ephemeral tier unavailable, session corrections skipped",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
		return nil
	}

	raw, err := json.Marshal(item.Value["corrections"])
	if err != nil {
		return nil
	}

	var corrections []Correction
	if err := json.Unmarshal(raw, &corrections); err != nil {
		return nil
	}
	return corrections
}

// AppendSessionCorrection appends a correction to the session's ephemeral
// correction list, creating it with the given TTL when absent.
func (f *Facade) AppendSessionCorrection(ctx context.Context, sessionID string, c Correction, ttl time.Duration) {
	if f.ephemeral == nil {
		return
	}

	key := correctionsKey(sessionID)
	corrections := f.SessionCorrections(ctx, sessionID)
	corrections = append(corrections, c)

	err := f.ephemeral.Store(ctx, Item{
		Key:   key,
		Value: map[string]any{"corrections": toAnySlice(corrections)},
		TTL:   ttl,
	})
	if err != nil {
		f.logger.Warn("ephemeral tier unavailable, correction not recorded",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// CacheSourceText caches a run's source text in the ephemeral tier.
func (f *Facade) CacheSourceText(ctx context.Context, sessionID, text string, ttl time.Duration) {
	if f.ephemeral == nil {
		return
	}

	err := f.ephemeral.Store(ctx, Item{
		Key:   sourceTextKey(sessionID),
		Value: map[string]any{"text": text},
		TTL:   ttl,
	})
	if err != nil {
		f.logger.Warn("ephemeral tier unavailable, source text not cached",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// CachedSourceText returns the cached source text for a session, or "".
func (f *Facade) CachedSourceText(ctx context.Context, sessionID string) string {
	if f.ephemeral == nil {
		return ""
	}

	item, err := f.ephemeral.Retrieve(ctx, sourceTextKey(sessionID))
	if err != nil {
		return ""
	}

	text, _ := item.Value["text"].(string)
	return text
}

// StoreEpisode persists a stage episode for later semantic retrieval.
func (f *Facade) StoreEpisode(ctx context.Context, key string, value map[string]any, metadata map[string]string) {
	if f.episodic == nil {
		return
	}

	err := f.episodic.Store(ctx, Item{
		Key:      key,
		Value:    value,
		Metadata: metadata,
	})
	if err != nil {
		f.logger.Warn("episodic tier unavailable, episode not stored",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// Episode returns the stored episode under key, or nil when the key is
// absent or the tier is unavailable.
func (f *Facade) Episode(ctx context.Context, key string) *Item {
	if f.episodic == nil {
		return nil
	}

	item, err := f.episodic.Retrieve(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			f.logger.Warn("episodic tier unavailable, episode lookup skipped",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return nil
	}
	return item
}

// SimilarEpisodes returns up to n episodes semantically similar to the query
// text, optionally restricted by an exact metadata filter.
func (f *Facade) SimilarEpisodes(ctx context.Context, query string, n int, filter map[string]string) []ScoredItem {
	if f.episodic == nil {
		return nil
	}

	items, err := f.episodic.SearchSimilar(ctx, query, n, filter)
	if err != nil {
		f.logger.Warn("episodic tier unavailable, similar episodes skipped",
			zap.Error(err),
		)
		return nil
	}
	return items
}

// EpisodesByMetadata returns episodes whose metadata exactly matches filter.
func (f *Facade) EpisodesByMetadata(ctx context.Context, filter map[string]string, limit int) []Item {
	if f.episodic == nil {
		return nil
	}

	items, err := f.episodic.GetByMetadata(ctx, filter, limit)
	if err != nil {
		f.logger.Warn("episodic tier unavailable, metadata query skipped",
			zap.Error(err),
		)
		return nil
	}
	return items
}

// persistentValue retrieves one persistent key's value, tolerating absence.
func (f *Facade) persistentValue(ctx context.Context, key string) map[string]any {
	if f.persistent == nil {
		return map[string]any{}
	}

	item, err := f.persistent.Retrieve(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			f.logger.Warn("persistent tier unavailable, organizational knowledge skipped",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return map[string]any{}
	}
	return item.Value
}

func correctionsKey(sessionID string) string {
	return "corrections:" + sessionID
}

func sourceTextKey(sessionID string) string {
	return "source_text:" + sessionID
}

// toAnySlice converts corrections to the generic shape tiers round-trip
// through JSON, so reads after process restarts see the same structure.
func toAnySlice(corrections []Correction) []any {
	out := make([]any, 0, len(corrections))
	for _, c := range corrections {
		out = append(out, map[string]any{
			"field":     c.Field,
			"original":  c.Original,
			"corrected": c.Corrected,
			"at":        c.At.Format(time.RFC3339Nano),
		})
	}
	return out
}
