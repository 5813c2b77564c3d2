// Package configcmder provides the config command for managing persistent
// cohort configuration stored in the .cohort/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent cohort configuration.

Configuration is stored as config.toml in the .cohort/ directory and provides
default values for command flags. Environment variables (COHORT_*) and CLI
flags take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example:
  storage.provider, gateway.listen, llm.model,
  vector_store.provider, embedding.model, summary.every_turns

Use subcommands to get, set, or list configuration values:
  cohort config set <key> <value>    Set a configuration value
  cohort config get <key>            Get a configuration value
  cohort config list                 List all configuration values

Examples:
  cohort config set llm.provider anthropic
  cohort config set vector_store.provider qdrant
  cohort config get gateway.listen
  cohort config list`

const configShortDesc string = "Manage persistent cohort configuration"

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
