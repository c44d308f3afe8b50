// Package initcmder provides the init command for initializing a local
// .quill directory in the current working directory.
package initcmder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/pkg/config"
)

const (
	dirName = ".quill"
)

const initLongDesc string = `Initialize a new .quill/ directory in the current working directory.

Creates a local .quill/ directory that takes precedence over the default
~/.quill/ directory for configuration, the proposal store, credentials,
and memory databases. Useful for keeping separate quill state per project.

With --preset, also writes a config.toml preconfigured for a provider.

Examples:
  quill init
  quill init --preset ollama
  quill init --preset anthropic`

const initShortDesc string = "Initialize a local .quill/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit(preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Write a config.toml for a provider preset (ollama, anthropic)")

	return cmd
}

func runInit(preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Printf("Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .quill directory: %w", err)
		}
		fmt.Printf("Initialized .quill directory: %s\n", dir)
	}

	if preset == "" {
		return nil
	}

	cfg, err := config.PresetConfig(preset)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Printf("Wrote %s preset config: %s\n", preset, cfger.GetTarget())
	return nil
}
