package client

import (
	"fmt"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/ValentinKolb/wbKV/rpc/serializer"
	"github.com/ValentinKolb/wbKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends a request to the shard and returns the response.
// Error responses are converted to *loaderwriter.Error:
//   - MsgTError (the server could not handle the request): RetCInternalError
//   - Err with Code: the code sent by the server
//   - Err without Code: RetCBackendError
//
// Transport and serialization errors are returned as they are.
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	respBytes, err := a.transport.Send(a.shardId, reqBytes)
	if err != nil {
		Logger.Debugf("shard %d: %s request failed: %v", a.shardId, req.MsgType, err)
		return nil, err
	}

	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("RPC LoaderWriter - invalid response: %w", err)
	}

	if resp.MsgType == common.MsgTError {
		return nil, loaderwriter.NewError(loaderwriter.RetCInternalError, resp.Err)
	}
	if resp.Err != "" {
		code := loaderwriter.RetCode(resp.Code)
		if code == loaderwriter.RetCSuccess {
			code = loaderwriter.RetCBackendError
		}
		return nil, loaderwriter.NewError(code, resp.Err)
	}

	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("RPC LoaderWriter - unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}
	return resp, nil
}

// value normalizes the value of a found key, serializers may turn empty values into nil
func value(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return v
}
