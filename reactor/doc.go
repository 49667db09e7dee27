// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides a blocking readiness reactor over portal handles
// and the Wait and WaitMany helpers built on it. Readiness is observed
// through traps, so the reactor never polls.
package reactor
