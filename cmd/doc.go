// Package cmd implements the command-line interface for the sKV key-value store.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value store operations (set, get, del, clear, len, drop)
//     and a performance test (perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set with an environment variable prefixed with SKV_
// (e.g. SKV_ENGINE=bolt), or in a .env / .env.local file.
//
// See skv -help for a list of all commands.
package cmd
