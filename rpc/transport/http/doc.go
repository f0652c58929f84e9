// Package http implements the RPC transport over HTTP.
//
// The server side (ServerTransport) is a chi router with three routes:
// POST /{shardId} for RPC requests, GET /health and GET /metrics. At log
// level debug every request gets a uuid, returned in the X-Request-Id
// header and written to the transport/rpc log.
//
// The client side spreads requests round-robin over the configured
// endpoints. A failed request is retried on the next endpoint up to the
// configured retry count. Endpoints without a scheme default to http.
//
// Thread Safety:
//
//	Send is safe for concurrent use. Connect and Close are not.
package http
