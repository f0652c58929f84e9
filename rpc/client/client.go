package client

import (
	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/ValentinKolb/wbKV/rpc/serializer"
	"github.com/ValentinKolb/wbKV/rpc/transport"
)

// NewRPCLoaderWriter creates a loader-writer for one shard of a wbKV server.
// The transport is connected before the client is returned.
func NewRPCLoaderWriter(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCLoaderWriter, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &RPCLoaderWriter{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

// RPCLoaderWriter forwards all operations to a remote shard. Writes return
// once the server enqueued them; call Flush to wait until they reached the
// server's backend.
type RPCLoaderWriter struct {
	rpcClientAdapter
}

// compile time check
var _ loaderwriter.ILoaderWriter[string, []byte] = (*RPCLoaderWriter)(nil)

// --------------------------------------------------------------------------
// Interface Methods (docu see loaderwriter.ILoaderWriter)
// --------------------------------------------------------------------------

func (c *RPCLoaderWriter) Load(key string) ([]byte, bool, error) {
	resp, err := c.invoke(common.NewLoadRequest(key))
	if err != nil {
		return nil, false, err
	}
	if !resp.Ok {
		return nil, false, nil
	}
	return value(resp.Value), true, nil
}

func (c *RPCLoaderWriter) LoadAll(keys []string) (map[string][]byte, error) {
	resp, err := c.invoke(common.NewLoadAllRequest(keys))
	if err != nil {
		return nil, err
	}
	result := make(map[string][]byte, len(resp.Entries))
	for _, e := range resp.Entries {
		result[e.Key] = value(e.Value)
	}
	return result, nil
}

func (c *RPCLoaderWriter) Write(key string, value []byte) error {
	_, err := c.invoke(common.NewWriteRequest(key, value))
	return err
}

func (c *RPCLoaderWriter) WriteAll(entries []loaderwriter.Entry[string, []byte]) error {
	kvs := make([]common.KV, len(entries))
	for i, e := range entries {
		kvs[i] = common.KV{Key: e.Key, Value: e.Value}
	}
	_, err := c.invoke(common.NewWriteAllRequest(kvs))
	return err
}

func (c *RPCLoaderWriter) Delete(key string) error {
	_, err := c.invoke(common.NewDeleteRequest(key))
	return err
}

func (c *RPCLoaderWriter) DeleteAll(keys []string) error {
	_, err := c.invoke(common.NewDeleteAllRequest(keys))
	return err
}

// --------------------------------------------------------------------------
// Write-behind Methods
// --------------------------------------------------------------------------

// Flush blocks until every operation the shard accepted so far reached its
// backend. The server bounds the wait by its timeout.
func (c *RPCLoaderWriter) Flush() error {
	_, err := c.invoke(common.NewFlushRequest())
	return err
}

// Close closes the underlying transport.
func (c *RPCLoaderWriter) Close() error {
	return c.transport.Close()
}
