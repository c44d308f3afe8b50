// Package ephemeral provides the in-process, time-boxed memory tier.
//
// Items expire after their TTL (default one hour, per-item override capped
// at MaxTTL). Expiry is enforced by the backend itself: a background janitor
// evicts expired entries, and reads treat an expired entry as absent even
// before the janitor reaches it.
package ephemeral

import (
	"context"
	"sync"
	"time"

	"github.com/quillworks/quill/pkg/memory"
)

const (
	// DefaultTTL applies when an item carries no TTL.
	DefaultTTL = time.Hour

	// MaxTTL caps per-item TTL overrides.
	MaxTTL = 6 * time.Hour

	// defaultSweepInterval is how often the janitor scans for expired items.
	defaultSweepInterval = 5 * time.Minute
)

// Config holds configuration for the ephemeral tier.
type Config struct {
	// DefaultTTL applies to items stored without a TTL.
	// Defaults to DefaultTTL if zero.
	DefaultTTL time.Duration

	// SweepInterval is the janitor's scan period.
	// Defaults to defaultSweepInterval if zero.
	SweepInterval time.Duration
}

type entry struct {
	item      memory.Item
	expiresAt time.Time
}

// Store implements memory.Tier using an in-process map with TTL eviction.
type Store struct {
	config Config

	mu    sync.RWMutex
	items map[string]entry

	stop chan struct{}
	done chan struct{}

	// now is swappable so tests can control the clock.
	now func() time.Time
}

// New creates an ephemeral store and starts its eviction janitor.
func New(config Config) *Store {
	if config.DefaultTTL == 0 {
		config.DefaultTTL = DefaultTTL
	}
	if config.SweepInterval == 0 {
		config.SweepInterval = defaultSweepInterval
	}

	s := &Store{
		config: config,
		items:  make(map[string]entry),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		now:    time.Now,
	}

	go s.janitor()

	return s
}

// Store persists an item with TTL enforcement.
func (s *Store) Store(_ context.Context, item memory.Item) error {
	ttl := item.TTL
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := s.now()
	item.TTL = ttl
	item.CreatedAt = now
	item.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[item.Key]; ok {
		item.CreatedAt = existing.item.CreatedAt
	}

	s.items[item.Key] = entry{
		item:      item,
		expiresAt: now.Add(ttl),
	}

	return nil
}

// Retrieve returns a copy of the item, treating expired entries as absent.
func (s *Store) Retrieve(_ context.Context, key string) (*memory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[key]
	if !ok || s.now().After(e.expiresAt) {
		return nil, memory.ErrNotFound
	}

	item := copyItem(e.item)
	return &item, nil
}

// Update replaces the value and metadata of a live item, preserving its
// expiry deadline.
func (s *Store) Update(_ context.Context, key string, value map[string]any, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok || s.now().After(e.expiresAt) {
		return memory.ErrNotFound
	}

	e.item.Value = value
	e.item.Metadata = metadata
	e.item.UpdatedAt = s.now()
	s.items[key] = e

	return nil
}

// Delete removes an item. Deleting an absent key is a no-op.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// Exists reports whether a live item is present under key.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[key]
	return ok && !s.now().After(e.expiresAt), nil
}

// Close stops the janitor and drops all items.
func (s *Store) Close() error {
	close(s.stop)
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]entry)

	return nil
}

// janitor periodically evicts expired entries.
func (s *Store) janitor() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.items {
		if now.After(e.expiresAt) {
			delete(s.items, key)
		}
	}
}

// copyItem returns a deep-enough copy so callers cannot mutate stored state.
func copyItem(item memory.Item) memory.Item {
	out := item
	if item.Value != nil {
		out.Value = make(map[string]any, len(item.Value))
		for k, v := range item.Value {
			out.Value[k] = v
		}
	}
	if item.Metadata != nil {
		out.Metadata = make(map[string]string, len(item.Metadata))
		for k, v := range item.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Ensure Store implements memory.Tier
var _ memory.Tier = (*Store)(nil)
