// Package newcmder provides the new command for registering a request
// document as a proposal without running any pipeline stage.
package newcmder

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quillworks/quill/cmd/quill/wiring"
	"github.com/quillworks/quill/pkg/cliui"
	"github.com/quillworks/quill/pkg/doctext"
	"github.com/quillworks/quill/pkg/logger"
	"github.com/quillworks/quill/pkg/store"
)

const newLongDesc string = `Create a proposal from a request document.

Reads the document (plain text or PDF), stores it as a new proposal, and
prints the proposal ID. Run the pipeline stages against the ID, starting
with 'quill extract'.

Examples:
  quill new request.pdf
  quill new request.txt`

const newShortDesc string = "Create a proposal from a request document"

func NewNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new <file>",
		Short: newShortDesc,
		Long:  newLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNew(cmd, args[0])
		},
	}

	return cmd
}

func runNew(cmd *cobra.Command, file string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	configDir, _ := cmd.Flags().GetString("config-dir")

	log := logger.NewLogger(debug)
	defer log.Sync()

	driver, err := wiring.NewStoreDriver(cmd.Context(), configDir, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	text, err := doctext.FromFile(file)
	if err != nil {
		return fmt.Errorf("reading request document: %w", err)
	}

	now := time.Now().UTC()
	p := &store.Proposal{
		ID:         uuid.NewString(),
		SourceText: text,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := driver.Put(cmd.Context(), p); err != nil {
		return fmt.Errorf("storing proposal: %w", err)
	}

	fmt.Printf("\n  %s Created proposal %s\n", cliui.SuccessMark, cliui.NameStyle.Render(p.ID))
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Start the pipeline with 'quill extract "+p.ID+"'."))
	return nil
}
