package kv

import (
	"github.com/ValentinKolb/wbKV/cmd/util"
	"github.com/ValentinKolb/wbKV/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.RPCLoaderWriter

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value operations on a shard",
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	util.SetupRPCClientFlags(KeyValueCommands)

	KeyValueCommands.AddCommand(loadCmd)
	KeyValueCommands.AddCommand(loadAllCmd)
	KeyValueCommands.AddCommand(writeCmd)
	KeyValueCommands.AddCommand(writeAllCmd)
	KeyValueCommands.AddCommand(deleteCmd)
	KeyValueCommands.AddCommand(deleteAllCmd)
	KeyValueCommands.AddCommand(flushCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient initializes the RPC client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}
	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	rpcClient, err = client.NewRPCLoaderWriter(
		util.GetShardID(),
		*util.GetClientConfig(),
		t,
		s,
	)
	return err
}

func closeKVClient(_ *cobra.Command, _ []string) error {
	return rpcClient.Close()
}
