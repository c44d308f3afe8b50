// Package qdrant provides a Qdrant-backed episodic tier over gRPC.
package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/embeddings"
	"github.com/quillworks/quill/pkg/memory"
)

const (
	// DefaultCollectionName is the default collection for episodes.
	DefaultCollectionName = "quill_episodes"

	// metaPrefix namespaces metadata entries inside the point payload so
	// they cannot collide with the fixed payload fields.
	metaPrefix = "meta_"
)

// Store implements memory.EpisodicTier using a Qdrant collection.
type Store struct {
	client     *qdrant.Client
	collection string
	embedder   embeddings.Embedder
	logger     *zap.Logger
}

// Config holds configuration for the Qdrant episodic tier.
type Config struct {
	// Host is the Qdrant gRPC host (e.g., "localhost").
	Host string

	// Port is the Qdrant gRPC port (typically 6334).
	Port int

	// CollectionName defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint64
}

// New creates a Qdrant-backed episodic store, creating the collection when
// it does not exist yet.
func New(ctx context.Context, c Config, embedder embeddings.Embedder, logger *zap.Logger) (*Store, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	collection := c.CollectionName
	if collection == "" {
		collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: c.Host,
		Port: c.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("checking collection %q: %w", collection, err)
	}

	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     c.Dimensions,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %q: %w", collection, err)
		}
	}

	logger.Info("connected to qdrant",
		zap.String("host", c.Host),
		zap.String("collection", collection),
	)

	return &Store{
		client:     client,
		collection: collection,
		embedder:   embedder,
		logger:     logger,
	}, nil
}

// pointID derives a deterministic UUID from an episode key so repeated
// stores of the same key update the same point.
func pointID(key string) *qdrant.PointId {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("quill:episode:"+key))
	return qdrant.NewIDUUID(id.String())
}

// Store persists an episode and its embedding, replacing any existing
// episode under the same key.
func (s *Store) Store(ctx context.Context, item memory.Item) error {
	text := memory.EmbedText(item)
	if text == "" {
		return fmt.Errorf("episode %s has no embeddable text", item.Key)
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding episode %s: %w", item.Key, err)
	}

	valueJSON, err := json.Marshal(item.Value)
	if err != nil {
		return fmt.Errorf("encoding value of %s: %w", item.Key, err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	payload := map[string]any{
		"key":        item.Key,
		"value":      string(valueJSON),
		"created_at": now,
		"updated_at": now,
	}
	for k, v := range item.Metadata {
		payload[metaPrefix+k] = v
	}

	// Preserve the original creation time on re-store.
	if existing, err := s.Retrieve(ctx, item.Key); err == nil {
		payload["created_at"] = existing.CreatedAt.Format(time.RFC3339Nano)
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      pointID(item.Key),
				Vectors: qdrant.NewVectors(embedding...),
				Payload: qdrant.NewValueMap(payload),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upserting episode %s: %w", item.Key, err)
	}

	return nil
}

// Retrieve returns the episode under key, or memory.ErrNotFound.
func (s *Store) Retrieve(ctx context.Context, key string) (*memory.Item, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{pointID(key)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting episode %s: %w", key, err)
	}
	if len(points) == 0 {
		return nil, memory.ErrNotFound
	}

	return itemFromPayload(points[0].Payload)
}

// Update replaces the value and metadata of an existing episode and
// re-embeds it.
func (s *Store) Update(ctx context.Context, key string, value map[string]any, metadata map[string]string) error {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return memory.ErrNotFound
	}

	return s.Store(ctx, memory.Item{Key: key, Value: value, Metadata: metadata})
}

// Delete removes an episode. Absent keys are a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(pointID(key)),
	})
	if err != nil {
		return fmt.Errorf("deleting episode %s: %w", key, err)
	}
	return nil
}

// Exists reports whether an episode is present under key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Retrieve(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, memory.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// SearchSimilar embeds the query text and runs a vector query with the
// metadata filter pushed down to Qdrant.
func (s *Store) SearchSimilar(ctx context.Context, queryText string, n int, filter map[string]string) ([]memory.ScoredItem, error) {
	if n <= 0 {
		n = 10
	}

	embedding, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(n)),
		Filter:         metadataFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying episodes: %w", err)
	}

	results := make([]memory.ScoredItem, 0, len(points))
	for _, p := range points {
		item, err := itemFromPayload(p.Payload)
		if err != nil {
			return nil, err
		}
		results = append(results, memory.ScoredItem{
			Item:  *item,
			Score: float64(p.Score),
		})
	}

	s.logger.Debug("searched episodic tier",
		zap.Int("results", len(results)),
	)

	return results, nil
}

// GetByMetadata scrolls episodes matching the filter exactly.
func (s *Store) GetByMetadata(ctx context.Context, filter map[string]string, limit int) ([]memory.Item, error) {
	if limit <= 0 {
		limit = 100
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         metadataFilter(filter),
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scrolling episodes: %w", err)
	}

	items := make([]memory.Item, 0, len(points))
	for _, p := range points {
		item, err := itemFromPayload(p.Payload)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	return items, nil
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func metadataFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}

	conditions := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, qdrant.NewMatch(metaPrefix+k, v))
	}
	return &qdrant.Filter{Must: conditions}
}

func itemFromPayload(payload map[string]*qdrant.Value) (*memory.Item, error) {
	item := &memory.Item{
		Metadata: map[string]string{},
	}

	for k, v := range payload {
		switch {
		case k == "key":
			item.Key = v.GetStringValue()
		case k == "value":
			if err := json.Unmarshal([]byte(v.GetStringValue()), &item.Value); err != nil {
				return nil, fmt.Errorf("decoding episode value: %w", err)
			}
		case k == "created_at":
			item.CreatedAt, _ = time.Parse(time.RFC3339Nano, v.GetStringValue())
		case k == "updated_at":
			item.UpdatedAt, _ = time.Parse(time.RFC3339Nano, v.GetStringValue())
		case len(k) > len(metaPrefix) && k[:len(metaPrefix)] == metaPrefix:
			item.Metadata[k[len(metaPrefix):]] = v.GetStringValue()
		}
	}

	return item, nil
}

// Ensure Store implements memory.EpisodicTier
var _ memory.EpisodicTier = (*Store)(nil)
