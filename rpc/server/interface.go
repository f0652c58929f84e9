package server

import (
	"context"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/ValentinKolb/wbKV/rpc/common"
)

// IShardStore is the store behind a shard: a loader-writer that can be
// flushed. writebehind.Decorator implements it.
type IShardStore interface {
	loaderwriter.ILoaderWriter[string, []byte]
	Flush(ctx context.Context) error
}

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// It takes a Message and a store as parameters.
	// It returns a Message as a response
	// If an error occurs, it should be set in the response
	Handle(req *common.Message, store IShardStore) (resp *common.Message)
}
