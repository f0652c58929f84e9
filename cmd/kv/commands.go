package kv

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/ValentinKolb/wbKV/lib/util"
	"github.com/spf13/cobra"
)

var (
	loadCmd = &cobra.Command{
		Use:   "load [key]",
		Short: "Reads the value for a key (pending writes included)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if value, ok, err := rpcClient.Load(key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%v, value=%s\n", key, ok, value)
			}
			return nil
		},
	}
	loadAllCmd = &cobra.Command{
		Use:   "load-all [key...]",
		Short: "Reads the values for several keys, missing keys are omitted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := rpcClient.LoadAll(args)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("key=%s, value=%s\n", k, values[k])
			}
			fmt.Printf("found %d of %d keys\n", len(values), len(args))
			return nil
		},
	}
	writeCmd = &cobra.Command{
		Use:   "write [key] [value]",
		Short: "Queues a write of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Write(args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("write queued")
			return nil
		},
	}
	writeAllCmd = &cobra.Command{
		Use:   "write-all [key=value...]",
		Short: "Queues the writes of several keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := make([]loaderwriter.Entry[string, []byte], len(args))
			for i, arg := range args {
				key, value, ok := util.ParseKeyValue(arg)
				if !ok {
					return fmt.Errorf("invalid entry %q (expected key=value)", arg)
				}
				entries[i] = loaderwriter.Entry[string, []byte]{Key: key, Value: []byte(value)}
			}
			if err := rpcClient.WriteAll(entries); err != nil {
				return err
			}
			fmt.Printf("%d writes queued\n", len(entries))
			return nil
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [key]",
		Short: "Queues the deletion of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Delete(args[0]); err != nil {
				return err
			}
			fmt.Println("delete queued")
			return nil
		},
	}
	deleteAllCmd = &cobra.Command{
		Use:   "delete-all [key...]",
		Short: "Queues the deletion of several keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.DeleteAll(args); err != nil {
				return err
			}
			fmt.Printf("%d deletes queued\n", len(args))
			return nil
		},
	}
	flushCmd = &cobra.Command{
		Use:   "flush",
		Short: "Waits until all queued operations of the shard reached its backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Flush(); err != nil {
				return err
			}
			fmt.Println("flushed")
			return nil
		},
	}
)
