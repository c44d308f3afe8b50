package stagecmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/pkg/cliui"
	"github.com/quillworks/quill/pkg/pipeline"
)

const synthesizeLongDesc string = `Synthesize the extraction and research into a proposal outline.

Combines the extracted fields, confirmed gaps, and research findings into
titled outline sections plus an executive summary, ready for document
generation.

Examples:
  quill synthesize 4f7c2a9e`

const synthesizeShortDesc string = "Synthesize findings into a proposal outline"

func NewSynthesizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synthesize <proposal-id>",
		Short: synthesizeShortDesc,
		Long:  synthesizeLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynthesize(cmd, args[0])
		},
	}

	return cmd
}

func runSynthesize(cmd *cobra.Command, proposalID string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer rt.Logger.Sync()

	result, err := rt.Orchestrator.RunSynthesis(cmd.Context(), proposalID)
	if err != nil {
		return err
	}

	printSynthesis(result)

	fmt.Printf("  %s\n\n", cliui.DimStyle.Render(formatCost(result.Usage)))
	return nil
}

func printSynthesis(result *pipeline.SynthesisResult) {
	fmt.Printf("\n  %s\n\n", cliui.HeaderStyle.Render(fmt.Sprintf("Outline (%d sections)", len(result.Sections))))
	for i, section := range result.Sections {
		fmt.Printf("  %s %s\n", cliui.DimStyle.Render(fmt.Sprintf("%d.", i+1)), cliui.ValueStyle.Render(section.Title))
	}

	if result.Summary != "" {
		fmt.Printf("\n  %s\n  %s\n\n", cliui.HeaderStyle.Render("Summary"), result.Summary)
	} else {
		fmt.Println()
	}
}
