// Package unix implements the Unix domain socket transport of the stats RPC
// system. It is meant for collectors running on the same machine as the
// master, for example a sidecar per host.
//
// The package only provides the connectors; framing, connection pooling,
// request routing and error handling come from the base package.
//
//   - clientConnector: dials the socket path
//
//   - serverConnector: removes a stale socket file and listens on the path
//
// The default buffer size is 64 KB.
package unix
