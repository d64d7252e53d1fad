// Package metrics defines the minimal backend seam the engine emits metrics
// through. Core code depends only on Backend; concrete backends (Datadog,
// none) live in subpackages so their SDKs never leak into the engine.
package metrics

// Labels are free-form key/value pairs attached to a metric sample.
type Labels map[string]string

// Backend receives metric samples from the engine.
//
// Implementations must be safe for use from the session goroutine and must
// never block recompute on network I/O; buffering + periodic flush is the
// expected shape.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush submits buffered samples now. Close flushes once more and
	// releases resources.
	Flush() error
	Close() error
}

// Nop is a Backend that discards everything. It is the default wherever a
// backend is optional.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
func (Nop) Close() error                             { return nil }
