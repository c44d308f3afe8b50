package quillcmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	quillcmder "github.com/quillworks/quill/cmd/quill"
)

var _ = Describe("NewQuillCmd", func() {
	It("creates the root command", func() {
		cmd := quillcmder.NewQuillCmd()
		Expect(cmd.Use).To(Equal("quill"))
		Expect(cmd.Short).NotTo(BeEmpty())
	})

	It("has the global debug and config-dir flags", func() {
		cmd := quillcmder.NewQuillCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("registers every pipeline and management subcommand", func() {
		cmd := quillcmder.NewQuillCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements(
			"new", "extract", "gaps", "confirm", "regenerate",
			"research", "synthesize", "generate", "run", "correct",
			"review", "status", "list", "config", "auth", "init", "version",
		))
	})
})
