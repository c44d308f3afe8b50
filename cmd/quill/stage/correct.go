package stagecmder

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/pkg/cliui"
	"github.com/quillworks/quill/pkg/memory"
)

const correctLongDesc string = `Record a human correction to an extracted field.

Corrections feed the memory tiers: the session's correction list, and the
persistent naming conventions that steer future extractions. The stored
extraction output itself is immutable; re-run 'quill extract' to apply the
learned conventions.

Examples:
  quill correct 4f7c2a9e entity_name "Acme Corporation"
  quill correct 4f7c2a9e industry "Precision Manufacturing" --original manufacturing`

const correctShortDesc string = "Record a correction to an extracted field"

func NewCorrectCmd() *cobra.Command {
	var original string

	cmd := &cobra.Command{
		Use:   "correct <proposal-id> <field> <corrected-value>",
		Short: correctShortDesc,
		Long:  correctLongDesc,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCorrect(cmd, args[0], args[1], args[2], original)
		},
	}

	cmd.Flags().StringVar(&original, "original", "", "The original extracted value being corrected")

	return cmd
}

func runCorrect(cmd *cobra.Command, proposalID, field, corrected, original string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer rt.Logger.Sync()

	rt.Orchestrator.RecordCorrection(cmd.Context(), proposalID, memory.Correction{
		Field:     field,
		Original:  original,
		Corrected: corrected,
		At:        time.Now().UTC(),
	})

	fmt.Printf("\n  %s Recorded correction: %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(field),
		cliui.ValueStyle.Render(corrected),
	)
	return nil
}
