package stats

import (
	"github.com/ValentinKolb/dStats/cmd/util"
	"github.com/ValentinKolb/dStats/lib/values"
	"github.com/ValentinKolb/dStats/rpc/client"
	"github.com/spf13/cobra"
)

var (
	remote *client.RPCRemote

	// StatsCommands represents the stats command group
	StatsCommands = &cobra.Command{
		Use:                "stats",
		Short:              "Read and write stats on a dStats master",
		PersistentPreRunE:  setupStatsClient,
		PersistentPostRunE: closeStatsClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the stats command
	util.SetupRPCClientFlags(StatsCommands)

	// Add subcommands
	StatsCommands.AddCommand(getCmd)
	StatsCommands.AddCommand(childrenCmd)
	StatsCommands.AddCommand(addCmd)
	StatsCommands.AddCommand(perfTestCmd)
}

// setupStatsClient connects to the master of the configured shard
func setupStatsClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}
	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	remote, err = client.NewRPCRemote(util.GetShardID(), *config, t, s, values.NewCodec())
	return err
}

func closeStatsClient(*cobra.Command, []string) error {
	if remote == nil {
		return nil
	}
	return remote.Close()
}
