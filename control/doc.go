// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection layer.
//
// Provides concurrent-safe state handling primitives including:
//   - Environment-driven configuration with snapshot reads and reload listeners
//   - Prometheus collectors for trap, trigger and message activity
//   - Debug probes exported through the facade
package control
