// Package datadog implements a Datadog backend for the internal/metrics
// seam.
//
// The backend buffers samples in memory (lock-protected, cheap), flushes on a
// ticker, and flushes one final time on Close. Recomputes must never block on
// network I/O, so submission only happens inside Flush.
//
// Concurrency model:
//   - the session goroutine calls IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under the mutex, then submits out-of-lock
//   - the flush loop calls Flush periodically; Close stops the loop
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"dataprep/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Metric names accepted by this backend. Anything else is ignored.
const (
	MetricRecomputeTotal      = "dataprep.recompute.total"
	MetricRecomputeDurationMS = "dataprep.recompute.duration_ms"
	MetricRecomputeRowsOut    = "dataprep.recompute.rows_out"
	MetricStepApplied         = "dataprep.step.applied"
	MetricStepRejected        = "dataprep.step.rejected"
)

// Options controls Datadog backend configuration.
type Options struct {
	// SessionName becomes tag "session:<name>" on every metric.
	// If empty, defaults to "dataprep".
	SessionName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them; tests use them
	// to avoid real submission and nondeterministic clocks/tickers.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal interface needed to submit metrics. The
// Datadog SDK exposes a concrete *datadogV2.MetricsApi; depending on this
// interface instead keeps the backend testable without HTTP.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	recomputeCount  float64
	stepCounts      map[string]float64 // kind -> applied count
	rejectedCounts  map[string]float64 // kind -> rejected count
	durationSamples []float64
	rowsOutSamples  []float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client.
// Network errors surface from Flush, never from construction.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	session := opts.SessionName
	if session == "" {
		session = "dataprep"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "session:"+session)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		stepCounts:     make(map[string]float64),
		rejectedCounts: make(map[string]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and submits buffered metrics one final time.
// Treat as call-once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case MetricRecomputeTotal:
		b.recomputeCount += delta

	case MetricStepApplied:
		kind := labels["kind"]
		if kind == "" {
			return
		}
		b.stepCounts[kind] += delta

	case MetricStepRejected:
		kind := labels["kind"]
		if kind == "" {
			kind = "unknown"
		}
		b.rejectedCounts[kind] += delta

	default:
		// Unknown metric names are dropped.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	_ = labels

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case MetricRecomputeDurationMS:
		b.durationSamples = append(b.durationSamples, value)

	case MetricRecomputeRowsOut:
		b.rowsOutSamples = append(b.rowsOutSamples, value)

	default:
		// Unknown histogram names are dropped.
	}
}

// snapshot is the buffered metric state detached for one flush. Flush resets
// buffers under the lock and builds/submits the payload out-of-lock.
type snapshot struct {
	recomputeCount  float64
	stepCounts      map[string]float64
	rejectedCounts  map[string]float64
	durationSamples []float64
	rowsOutSamples  []float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		recomputeCount:  b.recomputeCount,
		stepCounts:      b.stepCounts,
		rejectedCounts:  b.rejectedCounts,
		durationSamples: b.durationSamples,
		rowsOutSamples:  b.rowsOutSamples,
	}

	b.recomputeCount = 0
	b.stepCounts = make(map[string]float64)
	b.rejectedCounts = make(map[string]float64)
	b.durationSamples = nil
	b.rowsOutSamples = nil

	return s
}

func (s snapshot) isEmpty() bool {
	return s.recomputeCount == 0 &&
		len(s.stepCounts) == 0 &&
		len(s.rejectedCounts) == 0 &&
		len(s.durationSamples) == 0 &&
		len(s.rowsOutSamples) == 0
}

// Flush submits buffered metrics to Datadog and resets local buffers.
// Buffers are reset even if submission fails; keeping the editor responsive
// wins over at-least-once delivery here.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs Datadog series for a snapshot at a fixed timestamp.
// It is pure (no locks, no network, no clocks), which keeps it unit-testable,
// and it centralizes naming/tagging, which is an operational contract.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.stepCounts)+16)

	if s.recomputeCount != 0 {
		series = append(series, countSeries(MetricRecomputeTotal, s.recomputeCount, b.baseTags, nowUnix))
	}

	for kind, v := range s.stepCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries(MetricStepApplied, v, withTags(b.baseTags, "kind:"+kind), nowUnix))
	}
	for kind, v := range s.rejectedCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries(MetricStepRejected, v, withTags(b.baseTags, "kind:"+kind), nowUnix))
	}

	addPercentiles(&series, b.baseTags, MetricRecomputeDurationMS, s.durationSamples, nowUnix)
	addPercentiles(&series, b.baseTags, MetricRecomputeRowsOut, s.rowsOutSamples, nowUnix)

	return series
}

// addPercentiles appends a fixed set of percentile gauges for a sample set.
// Sorts a copy; empty sample sets add nothing.
func addPercentiles(series *[]datadogV2.MetricSeries, tags []string, metricPrefix string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series, gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix))
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:dataprep".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
