// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for sockwire.
//
// Provides concurrent-safe primitives including:
//   - Atomic counters for bytes moved, connects, accepts and failures
//   - Named debug probes (open handle count, goroutines, CPUs)
//   - A process-wide default registry pair used by all components
package control
