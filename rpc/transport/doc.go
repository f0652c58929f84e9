// Package transport defines the interfaces for moving serialized RPC messages
// between wbKV clients and servers. Requests are routed by shard ID.
//
// Key Components:
//
//   - IRPCClientTransport: client side, sends a request to one of the
//     configured endpoints and returns the raw response.
//
//   - IRPCServerTransport: server side, receives requests and hands them to
//     the registered ServerHandleFunc. It may also expose health and metrics.
//
// Implementations:
//
//   - http: a chi router, one POST per request.
//
//   - tcp and unix: framed requests over long lived sockets, built on the
//     shared base package. Responses are matched to requests by ID, so one
//     connection carries many requests at once.
//
// The wbkv binary picks one with its --transport flag.
package transport
