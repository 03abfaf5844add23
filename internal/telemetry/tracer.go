package telemetry

// Tracer receives flow lifecycle callbacks. The collector calls BeginFlow
// when a flow starts and EndFlow after it moves to the completed ring.
// Implementations must be safe for concurrent use.
type Tracer interface {
	BeginFlow(f *Flow)
	EndFlow(f *Flow)
	// Enabled reports whether spans are exported to a real backend.
	Enabled() bool
}

// NoopTracer discards all callbacks. Used when no OTLP endpoint is
// configured; the collector still synthesizes trace records itself.
type NoopTracer struct{}

func (NoopTracer) BeginFlow(*Flow) {}
func (NoopTracer) EndFlow(*Flow)   {}
func (NoopTracer) Enabled() bool   { return false }
