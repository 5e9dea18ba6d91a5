// Package cmd implements the command-line interface of paperKV. It provides a
// hierarchical command structure for working with books directly and for
// serving them over HTTP.
//
// The package is organized into several subpackages:
//
//   - book: Commands for book operations (write, read, exist, delete, destroy, info, perf)
//   - serve: Commands for starting and configuring the paperKV HTTP server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See paperkv -help for a list of all commands.
package cmd
