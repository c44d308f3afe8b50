package stagecmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/pkg/cliui"
	"github.com/quillworks/quill/pkg/research"
)

const researchLongDesc string = `Run web research against the proposal's search queries.

Executes each query from the gap analysis, scores results for relevance,
and summarizes the useful findings. Results below the relevance floor are
dropped; queries with nothing useful report "no information found".

Examples:
  quill research 4f7c2a9e`

const researchShortDesc string = "Research the confirmed gaps on the web"

func NewResearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "research <proposal-id>",
		Short: researchShortDesc,
		Long:  researchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearch(cmd, args[0])
		},
	}

	return cmd
}

func runResearch(cmd *cobra.Command, proposalID string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer rt.Logger.Sync()

	result, err := rt.Orchestrator.RunResearch(cmd.Context(), proposalID)
	if err != nil {
		return err
	}

	printResearch(result)

	fmt.Printf("  %s\n\n", cliui.DimStyle.Render(formatSummaryCost(result.Usage)))
	return nil
}

func printResearch(result *research.Result) {
	for _, qr := range result.ResearchResults {
		fmt.Printf("\n  %s %s\n", cliui.KeyStyle.Render("Query:"), cliui.ValueStyle.Render(qr.Query))
		for _, finding := range qr.Results {
			fmt.Printf("    %s %s %s\n",
				cliui.DimStyle.Render("●"),
				cliui.ValueStyle.Render(finding.URL),
				cliui.DimStyle.Render(fmt.Sprintf("(%.2f)", finding.RelevanceScore)),
			)
		}
		fmt.Printf("    %s\n", cliui.DimStyle.Render(qr.Summary))
	}

	fmt.Printf("\n  %s\n  %s\n\n", cliui.HeaderStyle.Render("Overall summary"), result.OverallSummary)
}
