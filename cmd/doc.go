// Package cmd implements the command-line interface of kvmod. Every command
// boots an embedded host, loads the configured modules and talks to it
// through an in-process client.
//
// The package is organized into several subpackages:
//
//   - run: execute commands from a script or stdin
//   - call: execute a single command
//   - perf: benchmark builtin and module commands
//   - util: shared flag, configuration and output helpers (internal use)
//
// See kvmod -help for a list of all commands.
package cmd
