// Package statuscmder provides the status command for displaying a
// proposal's pipeline progress.
package statuscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/cmd/quill/wiring"
	"github.com/quillworks/quill/pkg/cliui"
	"github.com/quillworks/quill/pkg/logger"
	"github.com/quillworks/quill/pkg/pipeline"
)

const statusLongDesc string = `Show a proposal's pipeline progress.

Lists the five stages in order with a mark for each completed one, and
names the next stage to run.

Examples:
  quill status 4f7c2a9e`

const statusShortDesc string = "Show a proposal's pipeline progress"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <proposal-id>",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args[0])
		},
	}

	return cmd
}

func runStatus(cmd *cobra.Command, proposalID string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	configDir, _ := cmd.Flags().GetString("config-dir")

	log := logger.NewLogger(debug)
	defer log.Sync()

	driver, err := wiring.NewStoreDriver(cmd.Context(), configDir, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	p, err := driver.Get(cmd.Context(), proposalID)
	if err != nil {
		return fmt.Errorf("loading proposal: %w", err)
	}

	fmt.Printf("\n  %s %s\n", cliui.KeyStyle.Render("Proposal:"), cliui.NameStyle.Render(p.ID))
	fmt.Printf("  %s %s\n\n", cliui.KeyStyle.Render("Created: "), cliui.DimStyle.Render(p.CreatedAt.Format("2006-01-02 15:04")))

	done := make(map[pipeline.Stage]bool)
	for _, stage := range pipeline.Completed(p) {
		done[stage] = true
	}

	for _, stage := range pipeline.Stages() {
		if done[stage] {
			fmt.Printf("  %s %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(string(stage)))
		} else {
			fmt.Printf("  %s %s\n", cliui.DimStyle.Render("○"), cliui.DimStyle.Render(string(stage)))
		}
	}

	if next, ok := pipeline.NextStage(p); ok {
		fmt.Printf("\n  %s %s\n\n", cliui.KeyStyle.Render("Next:"), cliui.ValueStyle.Render(string(next)))
	} else {
		fmt.Printf("\n  %s All stages complete.\n\n", cliui.SuccessMark)
	}

	return nil
}
