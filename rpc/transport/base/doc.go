// Package base implements the parts of the socket transports that do not
// depend on the kind of socket. The tcp and unix packages plug in a
// connector that creates listeners and connections; framing, request
// correlation, worker limits and retries live here.
//
// Wire Format:
//
// Every request and response is one frame: an 8 byte shard ID, an 8 byte
// request ID and a 4 byte payload length (all big endian), followed by the
// payload. The payload is a serialized common.Message. A response carries
// the request ID of its request, so responses of one connection may be
// written in any order. Payloads larger than MaxFrameSize are rejected.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: the socket specific operations
//     (dial, listen, socket options).
//
//   - ClientTransport: keeps ConnectionsPerEndpoint connections to every
//     endpoint and picks one per request by round robin. A reader goroutine
//     per connection hands each response to the request waiting for it. A
//     broken connection fails its waiting requests at once and is dialed
//     again on its next use. Failed requests are retried on the next
//     connection with exponential backoff, up to RetryCount attempts.
//
//   - ServerTransport: accepts connections and reads frames in one
//     goroutine per connection. Requests run on up to WorkersPerConnection
//     goroutines per connection. Read buffers come from a sync.Pool.
//
// Shutdown:
//
// ServerTransport.Shutdown closes the listener and stops every connection
// from reading further requests. Requests already read are still answered;
// connections are closed once their last response is written or when the
// context of Shutdown ends.
//
// Timeouts:
//
// The client bounds each request attempt with TimeoutSecond, the server
// bounds each response write with its own TimeoutSecond. Idle connections
// have no read deadline on either side.
package base
