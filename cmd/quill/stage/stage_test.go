package stagecmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	stagecmder "github.com/quillworks/quill/cmd/quill/stage"
)

var _ = Describe("Stage commands", func() {
	DescribeTable("command construction",
		func(build func() *cobra.Command, use string) {
			cmd := build()
			Expect(cmd.Use).To(Equal(use))
			Expect(cmd.Short).NotTo(BeEmpty())
			Expect(cmd.Long).NotTo(BeEmpty())
		},
		Entry("extract", stagecmder.NewExtractCmd, "extract <proposal-id>"),
		Entry("gaps", stagecmder.NewGapsCmd, "gaps <proposal-id>"),
		Entry("confirm", stagecmder.NewConfirmCmd, "confirm <proposal-id>"),
		Entry("regenerate", stagecmder.NewRegenerateCmd, "regenerate <proposal-id> <feedback>"),
		Entry("research", stagecmder.NewResearchCmd, "research <proposal-id>"),
		Entry("synthesize", stagecmder.NewSynthesizeCmd, "synthesize <proposal-id>"),
		Entry("generate", stagecmder.NewGenerateCmd, "generate <proposal-id>"),
		Entry("run", stagecmder.NewRunCmd, "run [file]"),
		Entry("correct", stagecmder.NewCorrectCmd, "correct <proposal-id> <field> <corrected-value>"),
		Entry("review", stagecmder.NewReviewCmd, "review <proposal-id> <accuracy>"),
	)

	Describe("NewGapsCmd", func() {
		It("has a repeatable --section flag", func() {
			cmd := stagecmder.NewGapsCmd()
			Expect(cmd.Flags().Lookup("section")).NotTo(BeNil())
		})

		It("requires a proposal ID", func() {
			cmd := stagecmder.NewGapsCmd()
			cmd.SetArgs([]string{})
			Expect(cmd.Execute()).To(HaveOccurred())
		})
	})

	Describe("NewConfirmCmd", func() {
		It("has a repeatable --gap flag", func() {
			cmd := stagecmder.NewConfirmCmd()
			Expect(cmd.Flags().Lookup("gap")).NotTo(BeNil())
		})
	})

	Describe("NewRegenerateCmd", func() {
		It("requires both the proposal ID and feedback", func() {
			cmd := stagecmder.NewRegenerateCmd()
			cmd.SetArgs([]string{"some-id"})
			Expect(cmd.Execute()).To(HaveOccurred())
		})
	})

	Describe("NewGenerateCmd", func() {
		It("has an --output flag", func() {
			cmd := stagecmder.NewGenerateCmd()
			Expect(cmd.Flags().Lookup("output")).NotTo(BeNil())
		})
	})

	Describe("NewRunCmd", func() {
		It("has --proposal, --output, and --section flags", func() {
			cmd := stagecmder.NewRunCmd()
			Expect(cmd.Flags().Lookup("proposal")).NotTo(BeNil())
			Expect(cmd.Flags().Lookup("output")).NotTo(BeNil())
			Expect(cmd.Flags().Lookup("section")).NotTo(BeNil())
		})

		It("rejects invocation without a file or --proposal", func() {
			cmd := stagecmder.NewRunCmd()
			cmd.PersistentFlags().Bool("debug", false, "")
			cmd.PersistentFlags().String("config-dir", "", "")
			cmd.SetArgs([]string{})
			err := cmd.Execute()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("request document or --proposal"))
		})
	})

	Describe("NewReviewCmd", func() {
		It("rejects an out-of-range accuracy before building the runtime", func() {
			cmd := stagecmder.NewReviewCmd()
			cmd.SetArgs([]string{"some-id", "1.5"})
			err := cmd.Execute()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("between 0 and 1"))
		})

		It("rejects a non-numeric accuracy", func() {
			cmd := stagecmder.NewReviewCmd()
			cmd.SetArgs([]string{"some-id", "high"})
			Expect(cmd.Execute()).To(HaveOccurred())
		})
	})

	Describe("NewCorrectCmd", func() {
		It("has an --original flag", func() {
			cmd := stagecmder.NewCorrectCmd()
			Expect(cmd.Flags().Lookup("original")).NotTo(BeNil())
		})

		It("requires three arguments", func() {
			cmd := stagecmder.NewCorrectCmd()
			cmd.SetArgs([]string{"some-id", "entity_name"})
			Expect(cmd.Execute()).To(HaveOccurred())
		})
	})
})
