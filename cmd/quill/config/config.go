// Package configcmder provides the config command for managing persistent
// quill configuration stored in the .quill/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent quill configuration.

Configuration is stored as config.toml in the .quill/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  store.driver, store.sqlite_path, store.postgres_dsn,
  llm.provider, llm.target, llm.model, llm.max_tokens,
  llm.input_per_mtok, llm.output_per_mtok,
  search.target, extraction.confidence_threshold,
  research.relevance_floor, research.search_delay_ms, research.results_per_query,
  memory.enabled, memory.sqlite_path, memory.episodic_provider,
  memory.qdrant_host, memory.qdrant_port,
  embedding.target, embedding.model, embedding.dimensions,
  events.provider, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  quill config set <key> <value>    Set a configuration value
  quill config get <key>            Get a configuration value
  quill config list                 List all configuration values

Examples:
  quill config set llm.provider anthropic
  quill config set research.relevance_floor 0.3
  quill config get llm.model
  quill config list`

const configShortDesc string = "Manage persistent quill configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
