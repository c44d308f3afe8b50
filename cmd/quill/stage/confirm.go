package stagecmder

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/cmd/quill/wiring"
	"github.com/quillworks/quill/pkg/cliui"
	"github.com/quillworks/quill/pkg/pipeline"
	"github.com/quillworks/quill/pkg/research"
)

const confirmLongDesc string = `Confirm the gap list and generate the research directive.

By default confirms every gap from the stored gap analysis. Pass --gap to
confirm a trimmed or edited list instead. The confirmed list replaces the
stored gaps, and the generated directive (with client identifiers redacted)
fills the deep research prompt.

Examples:
  quill confirm 4f7c2a9e
  quill confirm 4f7c2a9e --gap "current market rates" --gap "regulatory requirements"`

const confirmShortDesc string = "Confirm gaps and generate the research directive"

func NewConfirmCmd() *cobra.Command {
	var gaps []string

	cmd := &cobra.Command{
		Use:   "confirm <proposal-id>",
		Short: confirmShortDesc,
		Long:  confirmLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfirm(cmd, args[0], gaps)
		},
	}

	cmd.Flags().StringArrayVar(&gaps, "gap", nil, "Gap to confirm (repeatable; defaults to all gaps from the analysis)")

	return cmd
}

func runConfirm(cmd *cobra.Command, proposalID string, gaps []string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer rt.Logger.Sync()

	ctx := cmd.Context()

	if len(gaps) == 0 {
		gaps, err = storedGaps(cmd, rt, proposalID)
		if err != nil {
			return err
		}
	}

	directive, err := rt.Orchestrator.ConfirmGaps(ctx, proposalID, gaps)
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s Confirmed %d gaps.\n", cliui.SuccessMark, len(gaps))
	fmt.Printf("\n  %s\n\n%s\n", cliui.HeaderStyle.Render("Research directive"), directive.Text)
	return nil
}

// storedGaps reads the gap list from the stored gap analysis output.
func storedGaps(cmd *cobra.Command, rt *wiring.Runtime, proposalID string) ([]string, error) {
	p, err := rt.Store.Get(cmd.Context(), proposalID)
	if err != nil {
		return nil, fmt.Errorf("loading proposal: %w", err)
	}

	raw, ok := p.Output(string(pipeline.StageGapAnalysis))
	if !ok {
		return nil, fmt.Errorf("no gap analysis output found: run 'quill gaps %s' first", proposalID)
	}

	var result research.GapAnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding gap analysis output: %w", err)
	}

	return result.Gaps, nil
}
