// Package http implements the HTTP transport of the stats RPC system. It is
// the easiest transport to put behind existing infrastructure (proxies, load
// balancers) and the server side also exports the process metrics.
//
// Routes:
//
//	POST /{shardId}  body is a serialized request, response is a serialized reply
//	GET  /metrics    Prometheus text format (VictoriaMetrics/metrics)
//
// Key Components:
//
//   - httpClientTransport: implements IRPCClientTransport. Requests go round
//     robin over the configured endpoints and a failed attempt is retried on
//     the next endpoint.
//
//   - HttpServerTransport: implements IRPCServerTransport. Handler exposes the
//     multiplexer so it can be served by an httptest.Server in tests.
//
// The client transport is safe for concurrent use after Connect.
package http
