package control

import "sync"

var (
	defaultOnce    sync.Once
	defaultMetrics *MetricsRegistry
	defaultProbes  *DebugProbes
)

func initDefaults() {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetricsRegistry()
		defaultProbes = NewDebugProbes()
		RegisterPlatformProbes(defaultProbes)
	})
}

// Metrics returns the process-wide registry shared by all components.
func Metrics() *MetricsRegistry {
	initDefaults()
	return defaultMetrics
}

// Probes returns the process-wide probe registry.
func Probes() *DebugProbes {
	initDefaults()
	return defaultProbes
}

// Stats merges counters and probe output; probe keys get a "debug."
// prefix.
func Stats() map[string]any {
	combined := Metrics().GetSnapshot()
	for k, v := range Probes().DumpState() {
		combined["debug."+k] = v
	}
	return combined
}
