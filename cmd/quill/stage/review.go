package stagecmder

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/pkg/cliui"
)

const reviewLongDesc string = `Record the reviewed accuracy of an extraction.

Extractions are stored as episodes with a null accuracy until a human scores
them. The score back-fills the stored episode, so later similar-extraction
lookups can filter on reviewed quality.

Accuracy is a value between 0 and 1.

Examples:
  quill review 4f7c2a9e 0.92`

const reviewShortDesc string = "Record the reviewed accuracy of an extraction"

func NewReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <proposal-id> <accuracy>",
		Short: reviewShortDesc,
		Long:  reviewLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd, args[0], args[1])
		},
	}

	return cmd
}

func runReview(cmd *cobra.Command, proposalID, rawAccuracy string) error {
	accuracy, err := strconv.ParseFloat(rawAccuracy, 64)
	if err != nil || accuracy < 0 || accuracy > 1 {
		return fmt.Errorf("accuracy must be a number between 0 and 1, got %q", rawAccuracy)
	}

	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer rt.Logger.Sync()

	if err := rt.Orchestrator.RecordReview(cmd.Context(), proposalID, accuracy); err != nil {
		return err
	}

	fmt.Printf("\n  %s Recorded extraction accuracy %s for %s\n\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(rawAccuracy),
		cliui.NameStyle.Render(proposalID),
	)
	return nil
}
