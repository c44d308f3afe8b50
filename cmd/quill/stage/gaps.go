package stagecmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/pkg/cliui"
	"github.com/quillworks/quill/pkg/research"
)

const gapsLongDesc string = `Run gap analysis for a proposal.

Compares the extracted fields against the proposal outline and identifies
what the outline needs that the document does not cover, along with web
search queries that would close each gap.

The research directive stays empty until a human confirms the gap list
with 'quill confirm'.

Examples:
  quill gaps 4f7c2a9e
  quill gaps 4f7c2a9e --section "Executive Summary" --section "Pricing"`

const gapsShortDesc string = "Identify research gaps against the proposal outline"

func NewGapsCmd() *cobra.Command {
	var sections []string

	cmd := &cobra.Command{
		Use:   "gaps <proposal-id>",
		Short: gapsShortDesc,
		Long:  gapsLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outline := sections
			if len(outline) == 0 {
				outline = defaultOutline
			}
			return runGaps(cmd, args[0], outline)
		},
	}

	cmd.Flags().StringArrayVar(&sections, "section", nil, "Outline section to analyze against (repeatable; defaults to the standard outline)")

	return cmd
}

func runGaps(cmd *cobra.Command, proposalID string, outline []string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer rt.Logger.Sync()

	result, err := rt.Orchestrator.RunGapAnalysis(cmd.Context(), proposalID, outline)
	if err != nil {
		return err
	}

	printGapAnalysis(result)

	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Confirm the gap list with 'quill confirm "+proposalID+"' to generate the research directive."))
	return nil
}

func printGapAnalysis(result *research.GapAnalysisResult) {
	fmt.Printf("\n  %s\n\n", cliui.HeaderStyle.Render(fmt.Sprintf("Gaps (%d)", len(result.Gaps))))
	for i, gap := range result.Gaps {
		fmt.Printf("  %s %s\n", cliui.DimStyle.Render(fmt.Sprintf("%d.", i+1)), cliui.ValueStyle.Render(gap))
	}

	fmt.Printf("\n  %s\n\n", cliui.HeaderStyle.Render("Search queries"))
	for _, q := range result.SearchQueries {
		fmt.Printf("  %s %s\n", cliui.DimStyle.Render("●"), cliui.ValueStyle.Render(q))
	}

	if result.Reasoning != "" {
		fmt.Printf("\n  %s %s\n\n", cliui.KeyStyle.Render("Reasoning:"), cliui.DimStyle.Render(result.Reasoning))
	} else {
		fmt.Println()
	}
}
