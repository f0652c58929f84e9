package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/wbKV/cmd/kv"
	"github.com/ValentinKolb/wbKV/cmd/serve"
	"github.com/ValentinKolb/wbKV/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "wbkv",
		Short: "write-behind key-value store",
		Long: fmt.Sprintf(`wbKV (v%s)

A key-value server that puts a write-behind queue in front of a slow
store (memory, bolt, redis or a raft replicated shard). Writes are
acknowledged once they are queued and applied to the store in batches.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of wbKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wbKV v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))

	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
