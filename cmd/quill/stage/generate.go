package stagecmder

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/pkg/cliui"
)

const generateLongDesc string = `Generate the final proposal document.

Expands the synthesized outline into a complete markdown proposal. The
document is rendered to the terminal, or written to a file with --output.

Examples:
  quill generate 4f7c2a9e
  quill generate 4f7c2a9e --output proposal.md`

const generateShortDesc string = "Generate the final proposal document"

func NewGenerateCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "generate <proposal-id>",
		Short: generateShortDesc,
		Long:  generateLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args[0], output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the document to a file instead of the terminal")

	return cmd
}

func runGenerate(cmd *cobra.Command, proposalID, output string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer rt.Logger.Sync()

	result, err := rt.Orchestrator.RunDocumentGeneration(cmd.Context(), proposalID)
	if err != nil {
		return err
	}

	if output != "" {
		if err := os.WriteFile(output, []byte(result.Document), 0o644); err != nil {
			return fmt.Errorf("writing document: %w", err)
		}
		fmt.Printf("\n  %s Wrote %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(output))
	} else {
		rendered, err := cliui.RenderMarkdown(result.Document)
		if err != nil {
			rendered = result.Document
		}
		fmt.Println(rendered)
	}

	fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render(formatCost(result.Usage)))
	return nil
}
