package stagecmder

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/pkg/cliui"
	"github.com/quillworks/quill/pkg/extract"
)

const extractLongDesc string = `Run metadata extraction for a proposal.

Extracts confidence-scored fields (client, industry, contacts, service
types, deadlines, and so on) from the proposal's source document and
validates them. Low-confidence required fields are flagged for review.

Re-running replaces the previous extraction output; later stage outputs
are untouched.

Examples:
  quill extract 4f7c2a9e
  quill extract 4f7c2a9e --debug`

const extractShortDesc string = "Extract structured fields from the request document"

func NewExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <proposal-id>",
		Short: extractShortDesc,
		Long:  extractLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args[0])
		},
	}

	return cmd
}

func runExtract(cmd *cobra.Command, proposalID string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer rt.Logger.Sync()

	result, err := rt.Orchestrator.RunExtraction(cmd.Context(), proposalID)
	if err != nil {
		return err
	}

	printFields(result.Fields)
	printValidation(result.Validation)

	fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render(formatCost(result.Usage)))
	return nil
}

func printFields(fields extract.FieldSet) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\n  %s\n\n", cliui.HeaderStyle.Render("Extracted fields"))
	for _, name := range names {
		f := fields[name]
		fmt.Printf("  %s  %s %s\n",
			cliui.KeyStyle.Render(fmt.Sprintf("%-14s", name)),
			cliui.ValueStyle.Render(fmt.Sprintf("%v", f.Value)),
			cliui.DimStyle.Render(fmt.Sprintf("(%.2f)", f.Confidence)),
		)
	}
}

func printValidation(v extract.ValidationResult) {
	fmt.Printf("\n  %s %s\n", cliui.KeyStyle.Render("Validation:"), cliui.ValueStyle.Render(string(v.Status)))

	for _, issue := range v.Errors {
		fmt.Printf("  %s %s: %s\n", cliui.FailMark, issue.Field, issue.Message)
	}
	for _, warning := range v.Warnings {
		fmt.Printf("  %s %s\n", cliui.WarnStyle.Render("!"), warning)
	}
	if len(v.FieldsRequiringReview) > 0 {
		fmt.Printf("  %s Review: %v\n", cliui.WarnStyle.Render("!"), v.FieldsRequiringReview)
	}
}
