// Package common provides the data structures shared by the RPC client and
// server of dStats.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. The same struct
//     is used for requests and responses; which fields are set depends on the
//     MessageType. Factory functions exist for every request and response.
//
//   - MessageType: Enumeration of the supported operations (sync, getSchema,
//     get, children) plus the control types success and error.
//
//   - ServerConfig: Configuration of the master server: the hosted shards with
//     their schema and store type, RAFT parameters for replicated shards, the
//     data directory and transport settings. Converts to Dragonboat configs.
//
//   - ClientConfig: Configuration of client transports, controlling
//     endpoints, timeouts and retry behavior.
//
//   - Logger: Custom formatting logger that is installed as Dragonboat's logger
//     factory, so raft and dStats log lines look alike.
package common
