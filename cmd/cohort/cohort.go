// Package cohortcmder
package cohortcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/cohort/cmd/cohort/chat"
	configcmder "github.com/papercomputeco/cohort/cmd/cohort/config"
	searchcmder "github.com/papercomputeco/cohort/cmd/cohort/search"
	seedcmder "github.com/papercomputeco/cohort/cmd/cohort/seed"
	servecmder "github.com/papercomputeco/cohort/cmd/cohort/serve"
	versioncmder "github.com/papercomputeco/cohort/cmd/version"
)

const cohortLongDesc string = `Cohort is a conversational assistant for accelerator application prep.

It answers questions about past companies and applications, grounded in a
vector store of reference records, and remembers each conversation thread.

Commands:
  cohort serve         Run the chat gateway
  cohort chat          Chat with a running gateway from the terminal
  cohort search        Search reference records through a gateway
  cohort seed          Load reference records into the vector store
  cohort config        Manage persistent configuration`

const cohortShortDesc string = "Cohort - accelerator application assistant"

func NewCohortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cohort",
		Short: cohortShortDesc,
		Long:  cohortLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .cohort/ config directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(seedcmder.NewSeedCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
