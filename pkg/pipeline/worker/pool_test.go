package worker

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/eventstream"
	"github.com/quillworks/quill/pkg/memory"
)

// recordingTier is an episodic tier that captures stored items.
type recordingTier struct {
	mu    sync.Mutex
	items []memory.Item
}

func (t *recordingTier) Store(_ context.Context, item memory.Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, item)
	return nil
}

func (t *recordingTier) Retrieve(context.Context, string) (*memory.Item, error) {
	return nil, memory.ErrNotFound
}

func (t *recordingTier) Update(context.Context, string, map[string]any, map[string]string) error {
	return memory.ErrNotFound
}

func (t *recordingTier) Delete(context.Context, string) error { return nil }

func (t *recordingTier) Exists(context.Context, string) (bool, error) { return false, nil }

func (t *recordingTier) Close() error { return nil }

func (t *recordingTier) SearchSimilar(context.Context, string, int, map[string]string) ([]memory.ScoredItem, error) {
	return nil, nil
}

func (t *recordingTier) GetByMetadata(context.Context, map[string]string, int) ([]memory.Item, error) {
	return nil, nil
}

func (t *recordingTier) stored() []memory.Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]memory.Item(nil), t.items...)
}

// blockingTier parks Store until release closes, signalling started first.
type blockingTier struct {
	recordingTier

	release chan struct{}
	started chan struct{}
}

func (t *blockingTier) Store(ctx context.Context, item memory.Item) error {
	t.started <- struct{}{}
	<-t.release
	return t.recordingTier.Store(ctx, item)
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.StageCompletedEvent
	err    error
}

func (p *recordingPublisher) PublishStageCompleted(_ context.Context, e *eventstream.StageCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []*eventstream.StageCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.StageCompletedEvent(nil), p.events...)
}

// newTestPool creates a worker pool over a recording tier and publisher.
// Callers should "wp.Close()" to drain enqueued jobs before asserting state.
func newTestPool() (*Pool, *recordingTier, *recordingPublisher) {
	logger, _ := zap.NewDevelopment()
	tier := &recordingTier{}
	pub := &recordingPublisher{}

	wp, err := NewPool(&Config{
		Memory:    memory.NewFacade(nil, nil, tier, logger),
		Publisher: pub,
		Logger:    logger,
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, tier, pub
}

var _ = Describe("Worker Pool", func() {
	var (
		wp   *Pool
		tier *recordingTier
		pub  *recordingPublisher
	)

	BeforeEach(func() {
		wp, tier, pub = newTestPool()
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			ok := wp.Enqueue(Job{Stage: "research"})
			Expect(ok).To(BeTrue())
			wp.Close()
		})

		It("returns false and drops the job when the queue is full", func() {
			logger, _ := zap.NewDevelopment()
			blocking := &blockingTier{release: make(chan struct{}), started: make(chan struct{}, 8)}
			full, err := NewPool(&Config{
				Memory:     memory.NewFacade(nil, nil, blocking, logger),
				NumWorkers: 1,
				QueueSize:  1,
				Logger:     logger,
			})
			Expect(err).NotTo(HaveOccurred())

			// The first job parks the only worker inside Store; the second
			// fills the one-slot queue; the third has nowhere to go.
			Expect(full.Enqueue(Job{Stage: "research", EpisodeKey: "a", EpisodeValue: map[string]any{}})).To(BeTrue())
			<-blocking.started
			Expect(full.Enqueue(Job{Stage: "research", EpisodeKey: "b", EpisodeValue: map[string]any{}})).To(BeTrue())
			Expect(full.Enqueue(Job{Stage: "research", EpisodeKey: "c", EpisodeValue: map[string]any{}})).To(BeFalse())

			close(blocking.release)
			full.Close()
		})
	})

	Describe("stage side work", func() {
		It("stores the episode and publishes the event", func() {
			event := eventstream.NewStageCompletedEvent(
				"prop-1", "prop-1", "research", 2*time.Second, nil)

			wp.Enqueue(Job{
				Stage:           "research",
				EpisodeKey:      "research:prop-1",
				EpisodeValue:    map[string]any{"summary": "found pricing benchmarks"},
				EpisodeMetadata: map[string]string{"stage": "research"},
				Event:           event,
			})
			wp.Close()

			items := tier.stored()
			Expect(items).To(HaveLen(1))
			Expect(items[0].Key).To(Equal("research:prop-1"))
			Expect(items[0].Value).To(HaveKeyWithValue("summary", "found pricing benchmarks"))

			events := pub.published()
			Expect(events).To(HaveLen(1))
			Expect(events[0].ProposalID).To(Equal("prop-1"))
			Expect(events[0].Stage).To(Equal("research"))
		})

		It("skips episode storage when the key is empty", func() {
			wp.Enqueue(Job{
				Stage: "metadata_extraction",
				Event: eventstream.NewStageCompletedEvent(
					"prop-2", "prop-2", "metadata_extraction", time.Second, nil),
			})
			wp.Close()

			Expect(tier.stored()).To(BeEmpty())
			Expect(pub.published()).To(HaveLen(1))
		})

		It("skips publication when the job carries no event", func() {
			wp.Enqueue(Job{
				Stage:        "synthesis",
				EpisodeKey:   "synthesis:prop-3",
				EpisodeValue: map[string]any{"summary": "outline"},
			})
			wp.Close()

			Expect(tier.stored()).To(HaveLen(1))
			Expect(pub.published()).To(BeEmpty())
		})

		It("drains all enqueued jobs on Close", func() {
			for i := range 50 {
				wp.Enqueue(Job{
					Stage:        "research",
					EpisodeKey:   "research:prop",
					EpisodeValue: map[string]any{"summary": "entry", "n": i},
				})
			}
			wp.Close()

			Expect(tier.stored()).To(HaveLen(50))
		})

		It("swallows publisher failures", func() {
			pub.err = context.DeadlineExceeded

			wp.Enqueue(Job{
				Stage: "research",
				Event: eventstream.NewStageCompletedEvent(
					"prop-4", "prop-4", "research", time.Second, nil),
			})
			wp.Close()

			Expect(pub.published()).To(BeEmpty())
		})
	})
})
