// Package api
// Author: momentics
//
// Live debug support for production workloads.

package api

// Debug exposes runtime introspection.
type Debug interface {
	// DumpState evaluates every registered probe.
	DumpState() map[string]any

	// RegisterProbe dynamically registers a named probe.
	RegisterProbe(name string, fn func() any)
}
