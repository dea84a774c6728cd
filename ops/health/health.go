// Package health implements metrics and health scoring (C11): percentile
// histograms layered on top of infrastructure/metrics' Prometheus
// collectors, a Prometheus-text exporter, a structured snapshot, and the
// composite health score.
package health

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/r3e-network/warehouse-core/infrastructure/metrics"
)

// histogramCapacity is the bounded ring size fixed for every percentile
// histogram this package maintains.
const histogramCapacity = 1000

// metricKey renders the canonical "name{sorted_labels}" identifier for one
// metric series, used as the structured-snapshot map key.
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

// ringHistogram is a fixed-capacity ring buffer of float64 observations.
type ringHistogram struct {
	mu      sync.Mutex
	samples [histogramCapacity]float64
	count   int
	filled  int
}

func (h *ringHistogram) observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples[h.count%histogramCapacity] = v
	h.count++
	if h.filled < histogramCapacity {
		h.filled++
	}
}

// HistogramStats is a percentile snapshot of a histogram's retained window.
type HistogramStats struct {
	Count int
	Mean  float64
	Min   float64
	Max   float64
	P50   float64
	P75   float64
	P90   float64
	P95   float64
	P99   float64
}

func (h *ringHistogram) stats() HistogramStats {
	h.mu.Lock()
	sorted := append([]float64(nil), h.samples[:h.filled]...)
	h.mu.Unlock()

	if len(sorted) == 0 {
		return HistogramStats{}
	}
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return HistogramStats{
		Count: len(sorted),
		Mean:  sum / float64(len(sorted)),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   percentile(sorted, 0.50),
		P75:   percentile(sorted, 0.75),
		P90:   percentile(sorted, 0.90),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
	}
}

// percentile returns the element at index floor(p*(n-1)) of an
// already-sorted slice, without interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// Monitor wraps infrastructure/metrics' Prometheus collectors with the
// percentile histograms and composite health scoring that package defers
// to this one. It never registers its own Prometheus collectors — it
// records through the wrapped *metrics.Metrics for every counter/gauge
// and keeps a parallel ring histogram per duration series, since reading
// exact percentiles back out of a prometheus.HistogramVec requires a
// client-side window anyway.
type Monitor struct {
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	service  string
	start    time.Time

	mu         sync.Mutex
	histograms map[string]*ringHistogram
}

// NewMonitor wraps m, recording duration observations into bounded
// percentile histograms as well as m's own Prometheus collectors. gatherer
// is the registry m's collectors were registered against; pass nil to use
// the process-wide default registry (the common case, since
// metrics.New uses prometheus.DefaultRegisterer).
func NewMonitor(m *metrics.Metrics, service string, gatherer prometheus.Gatherer) *Monitor {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Monitor{
		metrics:    m,
		gatherer:   gatherer,
		service:    service,
		start:      time.Now(),
		histograms: make(map[string]*ringHistogram),
	}
}

func (mon *Monitor) observe(name string, labels map[string]string, value float64) HistogramStats {
	key := metricKey(name, labels)

	mon.mu.Lock()
	h, ok := mon.histograms[key]
	if !ok {
		h = &ringHistogram{}
		mon.histograms[key] = h
	}
	mon.mu.Unlock()

	h.observe(value)
	return h.stats()
}

// RecordChunkOp records a chunk operation's outcome and duration, both
// into the wrapped Prometheus collector and this monitor's histogram.
func (mon *Monitor) RecordChunkOp(operation, status string, d time.Duration) HistogramStats {
	mon.metrics.RecordChunkOp(mon.service, operation, status, d)
	return mon.observe("chunk_op_duration_seconds", map[string]string{"operation": operation}, d.Seconds())
}

// RecordRaidRebuild records a RAID rebuild's outcome and duration.
func (mon *Monitor) RecordRaidRebuild(arrayID, outcome string, d time.Duration) HistogramStats {
	mon.metrics.RecordRaidRebuild(mon.service, arrayID, outcome, d)
	return mon.observe("raid_rebuild_duration_seconds", map[string]string{"array_id": arrayID}, d.Seconds())
}

// RecordBackupRun records a backup run's outcome and duration.
func (mon *Monitor) RecordBackupRun(backupType, status string, d time.Duration) HistogramStats {
	mon.metrics.RecordBackupRun(mon.service, backupType, status, d)
	return mon.observe("backup_duration_seconds", map[string]string{"backup_type": backupType}, d.Seconds())
}

// RecordAuditFlush records an audit flush duration.
func (mon *Monitor) RecordAuditFlush(d time.Duration) HistogramStats {
	mon.metrics.RecordAuditFlush(d)
	return mon.observe("audit_flush_duration_seconds", nil, d.Seconds())
}

// RecordRestoreLatency records an end-to-end restore operation's wall
// time. Restore has no Prometheus duration collector of its own (only a
// counter), so this histogram exists only in the structured snapshot.
func (mon *Monitor) RecordRestoreLatency(conflictPolicy string, d time.Duration) HistogramStats {
	return mon.observe("restore_latency_seconds", map[string]string{"conflict_policy": conflictPolicy}, d.Seconds())
}

// HistogramSnapshot returns the current percentile stats for one series,
// or false if nothing has been observed for it yet.
func (mon *Monitor) HistogramSnapshot(name string, labels map[string]string) (HistogramStats, bool) {
	key := metricKey(name, labels)

	mon.mu.Lock()
	h, ok := mon.histograms[key]
	mon.mu.Unlock()
	if !ok {
		return HistogramStats{}, false
	}
	return h.stats(), true
}

// Snapshot is the structured, non-Prometheus view of every histogram this
// monitor tracks.
type Snapshot struct {
	Service    string
	UptimeSecs float64
	Histograms map[string]HistogramStats
}

// Snapshot captures every histogram's current percentile stats.
func (mon *Monitor) Snapshot() Snapshot {
	mon.mu.Lock()
	keys := make([]string, 0, len(mon.histograms))
	refs := make([]*ringHistogram, 0, len(mon.histograms))
	for k, h := range mon.histograms {
		keys = append(keys, k)
		refs = append(refs, h)
	}
	mon.mu.Unlock()

	out := make(map[string]HistogramStats, len(keys))
	for i, k := range keys {
		out[k] = refs[i].stats()
	}

	mon.metrics.UpdateUptime(mon.start)
	return Snapshot{Service: mon.service, UptimeSecs: time.Since(mon.start).Seconds(), Histograms: out}
}

// PrometheusHandler exposes the wrapped registry's collectors in
// Prometheus text exposition format.
func (mon *Monitor) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(mon.gatherer, promhttp.HandlerOpts{})
}
