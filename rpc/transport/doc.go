// Package transport defines how serialized messages travel between collectors
// and masters. A transport moves opaque byte slices addressed to a shard (one
// master); it knows nothing about messages or stats.
//
// Implementations live in the subpackages:
//
//   - base: framed request/response multiplexing over stream sockets
//   - tcp, unix: connectors for base
//   - http: one POST per request, plus the /metrics endpoint of the master
//
// Client transports retry a failed request up to the configured count and
// give up after the configured timeout. A collector treats any transport
// error as a failed sync and restores its buffer, so a retry that reaches
// the master twice is caught by the master's per-host deduplication.
package transport
