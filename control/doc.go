// Package control
// Author: momentics <momentics@gmail.com>
//
// Process-wide introspection for running connections.
//
// Provides concurrent-safe primitives shared by every connection:
//   - MetricsRegistry, the sink connections publish their counters into
//   - DebugProbes, named callbacks evaluated on demand for state dumps
package control
