// Package stagecmder provides the per-stage pipeline commands: extract,
// gaps, confirm, regenerate, research, synthesize, generate, run, and
// correct. Each stage command is independently invocable against a stored
// proposal so a human can review and re-enter the pipeline at any point.
package stagecmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/cmd/quill/wiring"
	"github.com/quillworks/quill/pkg/logger"
	"github.com/quillworks/quill/pkg/tokens"
)

// defaultOutline is the proposal outline gap analysis works against when the
// caller does not supply sections.
var defaultOutline = []string{
	"Executive Summary",
	"Understanding of Needs",
	"Proposed Approach",
	"Timeline",
	"Team and Experience",
	"Pricing",
}

// buildRuntime assembles the full pipeline from the command's global flags.
// The caller owns the returned runtime and must Close it.
func buildRuntime(cmd *cobra.Command) (*wiring.Runtime, error) {
	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return nil, fmt.Errorf("could not get debug flag: %w", err)
	}
	configDir, _ := cmd.Flags().GetString("config-dir")

	log := logger.NewLogger(debug)

	rt, err := wiring.Build(cmd.Context(), configDir, debug, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	return rt, nil
}

func formatCost(usage tokens.Usage) string {
	return fmt.Sprintf("%d in / %d out tokens, $%.6f", usage.InputTokens, usage.OutputTokens, usage.EstimatedCostUSD)
}

func formatSummaryCost(summary tokens.Summary) string {
	return fmt.Sprintf("%d in / %d out tokens, $%.6f",
		summary.TotalInputTokens, summary.TotalOutputTokens, summary.TotalCostUSD)
}
