// Package listcmder provides the list command for enumerating stored
// proposals.
package listcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/cmd/quill/wiring"
	"github.com/quillworks/quill/pkg/cliui"
	"github.com/quillworks/quill/pkg/logger"
	"github.com/quillworks/quill/pkg/pipeline"
	"github.com/quillworks/quill/pkg/utils"
)

const listLongDesc string = `List stored proposals.

Shows each proposal's ID, creation time, pipeline progress, and a preview
of its source document, oldest first.

Examples:
  quill list`

const listShortDesc string = "List stored proposals"

func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd)
		},
	}

	return cmd
}

func runList(cmd *cobra.Command) error {
	debug, _ := cmd.Flags().GetBool("debug")
	configDir, _ := cmd.Flags().GetString("config-dir")

	log := logger.NewLogger(debug)
	defer log.Sync()

	driver, err := wiring.NewStoreDriver(cmd.Context(), configDir, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	proposals, err := driver.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing proposals: %w", err)
	}

	if len(proposals) == 0 {
		fmt.Printf("\n  %s No proposals. Create one with 'quill new <file>'.\n\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Printf("\n  %s\n\n", cliui.HeaderStyle.Render(fmt.Sprintf("Proposals (%d)", len(proposals))))

	total := len(pipeline.Stages())
	for _, p := range proposals {
		completed := len(pipeline.Completed(p))
		preview := utils.Truncate(p.SourceText, 48)

		fmt.Printf("  %s  %s  %s  %s\n",
			cliui.NameStyle.Render(p.ID),
			cliui.DimStyle.Render(p.CreatedAt.Format("2006-01-02 15:04")),
			cliui.KeyStyle.Render(fmt.Sprintf("%d/%d", completed, total)),
			cliui.DimStyle.Render(preview),
		)
	}

	fmt.Println()
	return nil
}
