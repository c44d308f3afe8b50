package stagecmder

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quillworks/quill/cmd/quill/wiring"
	"github.com/quillworks/quill/pkg/cliui"
	"github.com/quillworks/quill/pkg/doctext"
	"github.com/quillworks/quill/pkg/pipeline"
	"github.com/quillworks/quill/pkg/store"
	"github.com/quillworks/quill/pkg/tokens"
)

const runLongDesc string = `Run the full proposal pipeline.

Creates a proposal from a request document and runs every stage in order:
extraction, gap analysis, research, synthesis, and document generation.
Gaps are auto-confirmed; use the per-stage commands when a human should
review the gap list first.

With --proposal, resumes an existing proposal at its first incomplete
stage instead of creating a new one.

Examples:
  quill run request.pdf
  quill run request.txt --output proposal.md
  quill run --proposal 4f7c2a9e`

const runShortDesc string = "Run the full pipeline over a request document"

func NewRunCmd() *cobra.Command {
	var (
		proposalID string
		output     string
		sections   []string
	)

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: runShortDesc,
		Long:  runLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) > 0 {
				file = args[0]
			}
			if file == "" && proposalID == "" {
				return fmt.Errorf("a request document or --proposal is required")
			}

			outline := sections
			if len(outline) == 0 {
				outline = defaultOutline
			}

			return runRun(cmd, file, proposalID, output, outline)
		},
	}

	cmd.Flags().StringVarP(&proposalID, "proposal", "p", "", "Resume an existing proposal instead of creating one")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the final document to a file")
	cmd.Flags().StringArrayVar(&sections, "section", nil, "Outline section for gap analysis (repeatable)")

	return cmd
}

func runRun(cmd *cobra.Command, file, proposalID, output string, outline []string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer rt.Logger.Sync()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if proposalID == "" {
		proposalID, err = createProposal(cmd, rt, file)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n  %s Created proposal %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(proposalID))
	}

	p, err := rt.Store.Get(ctx, proposalID)
	if err != nil {
		return fmt.Errorf("loading proposal: %w", err)
	}

	next, ok := pipeline.NextStage(p)
	if !ok {
		fmt.Fprintf(out, "  %s All stages already complete. Use the per-stage commands to re-run one.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	rates := tokens.Rates{
		InputPerMTok:  rt.Config.LLM.InputPerMTok,
		OutputPerMTok: rt.Config.LLM.OutputPerMTok,
	}

	var total tokens.Summary
	add := func(usage tokens.Usage) {
		total.Add(usage)
	}

	var document string

	started := false
	for _, stage := range pipeline.Stages() {
		if stage == next {
			started = true
		}
		if !started {
			continue
		}

		switch stage {
		case pipeline.StageMetadataExtraction:
			err = cliui.Step(out, "extracting metadata", func() error {
				result, err := rt.Orchestrator.RunExtraction(ctx, proposalID)
				if err != nil {
					return err
				}
				add(result.Usage)
				return nil
			})

		case pipeline.StageGapAnalysis:
			var gaps []string
			err = cliui.Step(out, "analyzing gaps", func() error {
				result, err := rt.Orchestrator.RunGapAnalysis(ctx, proposalID, outline)
				if err != nil {
					return err
				}
				gaps = result.Gaps
				return nil
			})
			if err != nil {
				return err
			}
			err = cliui.Step(out, fmt.Sprintf("confirming %d gaps", len(gaps)), func() error {
				_, err := rt.Orchestrator.ConfirmGaps(ctx, proposalID, gaps)
				return err
			})

		case pipeline.StageResearch:
			err = cliui.Step(out, "researching gaps", func() error {
				result, err := rt.Orchestrator.RunResearch(ctx, proposalID)
				if err != nil {
					return err
				}
				total.Merge(result.Usage)
				return nil
			})

		case pipeline.StageSynthesis:
			err = cliui.Step(out, "synthesizing outline", func() error {
				result, err := rt.Orchestrator.RunSynthesis(ctx, proposalID)
				if err != nil {
					return err
				}
				add(result.Usage)
				return nil
			})

		case pipeline.StageDocumentGeneration:
			err = cliui.Step(out, "generating document", func() error {
				result, err := rt.Orchestrator.RunDocumentGeneration(ctx, proposalID)
				if err != nil {
					return err
				}
				add(result.Usage)
				document = result.Document
				return nil
			})
		}
		if err != nil {
			return err
		}
	}

	if output != "" {
		if err := os.WriteFile(output, []byte(document), 0o644); err != nil {
			return fmt.Errorf("writing document: %w", err)
		}
		fmt.Fprintf(out, "\n  %s Wrote %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(output))
	} else if document != "" {
		rendered, err := cliui.RenderMarkdown(document)
		if err != nil {
			rendered = document
		}
		fmt.Fprintln(out, rendered)
	}

	total.FinalizeCost(rates)

	fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf(
		"%d calls, %d in / %d out tokens, $%.6f",
		total.Calls, total.TotalInputTokens, total.TotalOutputTokens, total.TotalCostUSD)))

	return nil
}

// createProposal reads the request document and stores a fresh proposal.
func createProposal(cmd *cobra.Command, rt *wiring.Runtime, file string) (string, error) {
	text, err := doctext.FromFile(file)
	if err != nil {
		return "", fmt.Errorf("reading request document: %w", err)
	}

	now := time.Now().UTC()
	p := &store.Proposal{
		ID:         uuid.NewString(),
		SourceText: text,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := rt.Store.Put(cmd.Context(), p); err != nil {
		return "", fmt.Errorf("storing proposal: %w", err)
	}

	return p.ID, nil
}
