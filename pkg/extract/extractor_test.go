package extract_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/extract"
	"github.com/quillworks/quill/pkg/llm"
	"github.com/quillworks/quill/pkg/memory"
	"github.com/quillworks/quill/pkg/memory/ephemeral"
	"github.com/quillworks/quill/pkg/memory/persistent"
	"github.com/quillworks/quill/pkg/tokens"
	testutils "github.com/quillworks/quill/pkg/utils/test"
)

const extractionResponse = `{
	"entity_name": {"value": "Acme Corp", "confidence": 0.95, "source": "header"},
	"industry": {"value": "Manufacturing", "confidence": 0.9, "source": "overview"}
}`

var _ = Describe("Engine", func() {
	var (
		ctx       context.Context
		generator *testutils.MockGenerator
		mem       *memory.Facade
		engine    *extract.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		generator = testutils.NewMockGenerator(extractionResponse)
		generator.Usage = llm.Usage{InputTokens: 1000, OutputTokens: 200}

		eph := ephemeral.New(ephemeral.Config{})
		per, err := persistent.New(persistent.Config{DBPath: ":memory:"})
		Expect(err).NotTo(HaveOccurred())

		mem = memory.NewFacade(eph, per, nil, zap.NewNop())

		engine = extract.NewEngine(generator, mem, extract.Config{
			Rates: tokens.Rates{InputPerMTok: 3.0, OutputPerMTok: 15.0},
		}, zap.NewNop())
	})

	AfterEach(func() {
		Expect(mem.Close()).To(Succeed())
	})

	Describe("Extract", func() {
		It("rejects empty source text", func() {
			_, err := engine.Extract(ctx, "sess-1", "")
			Expect(err).To(MatchError(extract.ErrEmptySource))
		})

		It("extracts fields and validates them", func() {
			result, err := engine.Extract(ctx, "sess-1", "Acme Corp requests manufacturing consulting.")
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Fields.StringValue(extract.FieldEntityName)).To(Equal("Acme Corp"))
			Expect(result.Validation.Status).To(Equal(extract.StatusValid))
			Expect(result.EpisodeKey).To(HavePrefix("extraction:"))
			Expect(result.Usage.InputTokens).To(Equal(int64(1000)))
			Expect(result.Usage.EstimatedCostUSD).To(BeNumerically(">", 0))
		})

		It("caches the source text for the session", func() {
			_, err := engine.Extract(ctx, "sess-1", "Acme Corp requests manufacturing consulting.")
			Expect(err).NotTo(HaveOccurred())

			Expect(mem.CachedSourceText(ctx, "sess-1")).To(Equal("Acme Corp requests manufacturing consulting."))
		})

		It("embeds recorded naming conventions in the prompt", func() {
			engine.RecordCorrection(ctx, "sess-1", memory.Correction{
				Field:     extract.FieldEntityName,
				Original:  "Acme",
				Corrected: "Acme Corporation",
			})

			_, err := engine.Extract(ctx, "sess-1", "Acme Corp requests manufacturing consulting.")
			Expect(err).NotTo(HaveOccurred())

			Expect(generator.Requests).To(HaveLen(1))
			Expect(generator.Requests[0].Prompt).To(ContainSubstring("naming conventions"))
			Expect(generator.Requests[0].Prompt).To(ContainSubstring("Acme Corporation"))
		})

		It("fails with a parse error on an unrecoverable response", func() {
			generator.Responses = []string{`{"entity_name": {"value":`}

			_, err := engine.Extract(ctx, "sess-1", "Acme Corp requests manufacturing consulting.")
			Expect(err).To(MatchError(extract.ErrUnparseable))
		})

		It("derives the same episode key for the same document prefix", func() {
			text := "Acme Corp requests manufacturing consulting."
			Expect(extract.EpisodeKey(text)).To(Equal(extract.EpisodeKey(text)))
			Expect(extract.EpisodeKey(text)).NotTo(Equal(extract.EpisodeKey("different document")))
		})
	})

	Describe("RecordCorrection", func() {
		It("appends to the session correction list", func() {
			engine.RecordCorrection(ctx, "sess-1", memory.Correction{
				Field:     extract.FieldDueDate,
				Original:  "Q2",
				Corrected: "2026-06-30",
			})

			corrections := mem.SessionCorrections(ctx, "sess-1")
			Expect(corrections).To(HaveLen(1))
			Expect(corrections[0].Field).To(Equal(extract.FieldDueDate))
			Expect(corrections[0].At).NotTo(BeZero())
		})

		It("updates naming conventions only for allow-listed fields", func() {
			engine.RecordCorrection(ctx, "sess-1", memory.Correction{
				Field:     extract.FieldIndustry,
				Original:  "tech",
				Corrected: "Software",
			})
			engine.RecordCorrection(ctx, "sess-1", memory.Correction{
				Field:     extract.FieldDueDate,
				Original:  "Q2",
				Corrected: "2026-06-30",
			})

			conventions := mem.NamingConventions(ctx)
			Expect(conventions).To(HaveKeyWithValue(extract.FieldIndustry, "Software"))
			Expect(conventions).NotTo(HaveKey(extract.FieldDueDate))
		})
	})
})

var _ = Describe("BackfillAccuracy", func() {
	var (
		ctx      context.Context
		episodic *testutils.MockEpisodicTier
		mem      *memory.Facade
		engine   *extract.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		episodic = testutils.NewMockEpisodicTier()
		mem = memory.NewFacade(nil, nil, episodic, zap.NewNop())
		engine = extract.NewEngine(testutils.NewMockGenerator(), mem, extract.Config{}, zap.NewNop())
	})

	It("updates the episode under its key with the reviewed score", func() {
		mem.StoreEpisode(ctx, "extraction:abc123", map[string]any{
			"summary":  "extraction of Acme Corp",
			"accuracy": nil,
		}, map[string]string{"stage": "metadata_extraction"})

		engine.BackfillAccuracy(ctx, "extraction:abc123", 0.92)

		item := mem.Episode(ctx, "extraction:abc123")
		Expect(item).NotTo(BeNil())
		Expect(item.Value).To(HaveKeyWithValue("accuracy", 0.92))
		Expect(item.Metadata).To(HaveKeyWithValue("reviewed", "true"))
	})

	It("finds the episode regardless of how many others are stored", func() {
		for i := 0; i < 600; i++ {
			mem.StoreEpisode(ctx, fmt.Sprintf("extraction:%04d", i), map[string]any{
				"summary": "other extraction",
			}, map[string]string{"stage": "metadata_extraction"})
		}
		mem.StoreEpisode(ctx, "extraction:target", map[string]any{
			"summary": "extraction of Acme Corp",
		}, map[string]string{"stage": "metadata_extraction"})

		engine.BackfillAccuracy(ctx, "extraction:target", 0.75)

		item := mem.Episode(ctx, "extraction:target")
		Expect(item).NotTo(BeNil())
		Expect(item.Value).To(HaveKeyWithValue("accuracy", 0.75))
	})

	It("leaves the store untouched for an unknown key", func() {
		engine.BackfillAccuracy(ctx, "extraction:missing", 0.5)

		Expect(episodic.Items).To(BeEmpty())
	})
})

var _ = Describe("timestamps", func() {
	It("stamps corrections with a recent time", func() {
		eph := ephemeral.New(ephemeral.Config{})
		mem := memory.NewFacade(eph, nil, nil, zap.NewNop())
		engine := extract.NewEngine(testutils.NewMockGenerator(), mem, extract.Config{}, zap.NewNop())

		engine.RecordCorrection(context.Background(), "sess-1", memory.Correction{
			Field: extract.FieldGeography, Original: "EU", Corrected: "European Union",
		})

		corrections := mem.SessionCorrections(context.Background(), "sess-1")
		Expect(corrections).To(HaveLen(1))
		Expect(corrections[0].At).To(BeTemporally("~", time.Now(), time.Minute))
		Expect(mem.Close()).To(Succeed())
	})
})
