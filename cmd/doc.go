// Package cmd implements the command-line interface of dStats. It provides
// a hierarchical command structure for running masters and for talking to
// them as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the masters of one host
//   - stats: Client commands (get, children, add) and a load generator
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dstats -help for a list of all commands.
package cmd
