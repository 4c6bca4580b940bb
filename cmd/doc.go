// Package cmd implements the command-line interface of dNet. It provides
// an echo server and a client to exercise the transport end to end.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring a dNet echo server
//   - connect: Commands for connecting to a server, verifying echoes and measuring throughput
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dnet -help for a list of all commands.
package cmd
