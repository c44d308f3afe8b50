// Package quillcmder assembles the quill root command.
package quillcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/quillworks/quill/cmd/quill/auth"
	configcmder "github.com/quillworks/quill/cmd/quill/config"
	initcmder "github.com/quillworks/quill/cmd/quill/init"
	listcmder "github.com/quillworks/quill/cmd/quill/list"
	newcmder "github.com/quillworks/quill/cmd/quill/new"
	stagecmder "github.com/quillworks/quill/cmd/quill/stage"
	statuscmder "github.com/quillworks/quill/cmd/quill/status"
	versioncmder "github.com/quillworks/quill/cmd/version"
)

const quillLongDesc string = `Quill turns client request documents into researched proposal drafts.

A proposal moves through five stages, each resumable on its own:
  quill extract     Pull structured fields out of the request document
  quill gaps        Find what the proposal outline still needs
  quill research    Run web research against the confirmed gaps
  quill synthesize  Combine extraction and research into an outline
  quill generate    Produce the final proposal document

Or run the whole pipeline at once:
  quill run <file>`

const quillShortDesc string = "Quill - Proposal Drafting Pipeline"

func NewQuillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quill",
		Short: quillShortDesc,
		Long:  quillLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .quill/ config directory")

	// Add subcommands
	cmd.AddCommand(newcmder.NewNewCmd())
	cmd.AddCommand(stagecmder.NewExtractCmd())
	cmd.AddCommand(stagecmder.NewGapsCmd())
	cmd.AddCommand(stagecmder.NewConfirmCmd())
	cmd.AddCommand(stagecmder.NewRegenerateCmd())
	cmd.AddCommand(stagecmder.NewResearchCmd())
	cmd.AddCommand(stagecmder.NewSynthesizeCmd())
	cmd.AddCommand(stagecmder.NewGenerateCmd())
	cmd.AddCommand(stagecmder.NewRunCmd())
	cmd.AddCommand(stagecmder.NewCorrectCmd())
	cmd.AddCommand(stagecmder.NewReviewCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(listcmder.NewListCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
