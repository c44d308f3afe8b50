package stagecmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/pkg/cliui"
)

const regenerateLongDesc string = `Regenerate the research directive from reviewer feedback.

Revises the existing directive while preserving its section structure. The
feedback is sanitized before use, so client names or contact details in it
never reach the generated directive. Requires a confirmed gap list.

Examples:
  quill regenerate 4f7c2a9e "focus more on compliance requirements"`

const regenerateShortDesc string = "Regenerate the research directive from feedback"

func NewRegenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regenerate <proposal-id> <feedback>",
		Short: regenerateShortDesc,
		Long:  regenerateLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegenerate(cmd, args[0], args[1])
		},
	}

	return cmd
}

func runRegenerate(cmd *cobra.Command, proposalID, feedback string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer rt.Logger.Sync()

	directive, err := rt.Orchestrator.RegenerateDirective(cmd.Context(), proposalID, feedback)
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s Directive %s.\n", cliui.SuccessMark, directive.Status)
	fmt.Printf("\n  %s\n\n%s\n", cliui.HeaderStyle.Render("Research directive"), directive.Text)
	return nil
}
