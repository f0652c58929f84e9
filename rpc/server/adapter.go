package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/ValentinKolb/wbKV/rpc/common"
)

// NewLoaderWriterServerAdapter creates the adapter translating messages to
// IShardStore calls. flushTimeout bounds Flush requests (zero: no bound).
func NewLoaderWriterServerAdapter(flushTimeout time.Duration) IRPCServerAdapter {
	return &loaderWriterServerAdapter{flushTimeout: flushTimeout}
}

type loaderWriterServerAdapter struct {
	flushTimeout time.Duration
}

func (adapter *loaderWriterServerAdapter) Handle(req *common.Message, store IShardStore) *common.Message {
	if store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	switch req.MsgType {
	case common.MsgTLWLoad:
		val, ok, err := store.Load(req.Key)
		return common.NewLoadResponse(val, ok, err)
	case common.MsgTLWLoadAll:
		values, err := store.LoadAll(req.Keys)
		return common.NewLoadAllResponse(values, err)
	case common.MsgTLWWrite:
		return common.NewWriteResponse(store.Write(req.Key, req.Value))
	case common.MsgTLWWriteAll:
		entries := make([]loaderwriter.Entry[string, []byte], len(req.Entries))
		for i, e := range req.Entries {
			entries[i] = loaderwriter.Entry[string, []byte]{Key: e.Key, Value: e.Value}
		}
		return common.NewWriteAllResponse(store.WriteAll(entries))
	case common.MsgTLWDelete:
		return common.NewDeleteResponse(store.Delete(req.Key))
	case common.MsgTLWDeleteAll:
		return common.NewDeleteAllResponse(store.DeleteAll(req.Keys))
	case common.MsgTLWFlush:
		ctx, cancel := adapter.context()
		defer cancel()
		err := store.Flush(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			err = loaderwriter.NewError(loaderwriter.RetCTimeout, fmt.Sprintf("flush did not finish within %s", adapter.flushTimeout))
		}
		return common.NewFlushResponse(err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC LoaderWriterAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}

func (adapter *loaderWriterServerAdapter) context() (context.Context, context.CancelFunc) {
	if adapter.flushTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), adapter.flushTimeout)
}
