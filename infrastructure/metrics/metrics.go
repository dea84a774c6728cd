// Package metrics provides the Prometheus metrics collectors shared across
// the warehouse core. It is the low-level collector registry; ops/health
// builds percentile histograms and the composite health score on top of it.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/r3e-network/warehouse-core/infrastructure/runtime"
)

// Metrics holds all Prometheus collectors exported by this module.
type Metrics struct {
	// Device/RAID metrics
	DeviceProbesTotal   *prometheus.CounterVec
	DeviceHealthState   *prometheus.GaugeVec
	RaidRebuildsTotal   *prometheus.CounterVec
	RaidRebuildDuration *prometheus.HistogramVec
	ChunkOpsTotal       *prometheus.CounterVec
	ChunkOpDuration     *prometheus.HistogramVec

	// Content index / snapshot / restore metrics
	IndexOpsTotal    *prometheus.CounterVec
	SnapshotOpsTotal *prometheus.CounterVec
	RestoreOpsTotal  *prometheus.CounterVec

	// Access control metrics
	AuthAttemptsTotal *prometheus.CounterVec
	SessionsActive    prometheus.Gauge
	ACLDecisionsTotal *prometheus.CounterVec

	// Audit metrics
	AuditEventsTotal   *prometheus.CounterVec
	AuditQueueDepth    prometheus.Gauge
	AuditFlushDuration prometheus.Histogram

	// Memory pressure metrics
	MemoryPressureTier *prometheus.GaugeVec
	EvictionsTotal     *prometheus.CounterVec

	// Backup scheduler metrics
	BackupRunsTotal  *prometheus.CounterVec
	BackupDuration   *prometheus.HistogramVec
	BackupChainDepth *prometheus.GaugeVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		DeviceProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_device_probes_total",
				Help: "Total number of storage device health probes",
			},
			[]string{"service", "device_id", "outcome"},
		),
		DeviceHealthState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "warehouse_device_health_state",
				Help: "Current device health state (0=healthy, 1=degraded, 2=failed)",
			},
			[]string{"service", "device_id"},
		),
		RaidRebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_raid_rebuilds_total",
				Help: "Total number of RAID rebuild operations",
			},
			[]string{"service", "array_id", "outcome"},
		),
		RaidRebuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warehouse_raid_rebuild_duration_seconds",
				Help:    "RAID rebuild duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 300, 600, 1800, 3600},
			},
			[]string{"service", "array_id"},
		),
		ChunkOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_chunk_ops_total",
				Help: "Total number of chunk read/write operations",
			},
			[]string{"service", "operation", "status"},
		),
		ChunkOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warehouse_chunk_op_duration_seconds",
				Help:    "Chunk read/write duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"service", "operation"},
		),
		IndexOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_index_ops_total",
				Help: "Total number of content index operations",
			},
			[]string{"service", "operation", "status"},
		),
		SnapshotOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_snapshot_ops_total",
				Help: "Total number of snapshot operations by granularity",
			},
			[]string{"service", "granularity", "operation", "status"},
		),
		RestoreOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_restore_ops_total",
				Help: "Total number of restore operations",
			},
			[]string{"service", "conflict_policy", "status"},
		),
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_auth_attempts_total",
				Help: "Total number of authentication attempts",
			},
			[]string{"service", "method", "outcome"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warehouse_sessions_active",
				Help: "Current number of active sessions",
			},
		),
		ACLDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_acl_decisions_total",
				Help: "Total number of access-control evaluations",
			},
			[]string{"service", "permission", "decision"},
		),
		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_audit_events_total",
				Help: "Total number of audit events enqueued",
			},
			[]string{"service", "action"},
		),
		AuditQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warehouse_audit_queue_depth",
				Help: "Current depth of the pending audit event queue",
			},
		),
		AuditFlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warehouse_audit_flush_duration_seconds",
				Help:    "Audit log batch flush duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
		MemoryPressureTier: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "warehouse_memory_pressure_tier",
				Help: "Current memory pressure tier (0=normal,1=warning,2=critical,3=severe)",
			},
			[]string{"service"},
		),
		EvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_evictions_total",
				Help: "Total number of cache eviction passes triggered by memory pressure",
			},
			[]string{"service", "tier"},
		),
		BackupRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_backup_runs_total",
				Help: "Total number of backup runs",
			},
			[]string{"service", "backup_type", "status"},
		),
		BackupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warehouse_backup_duration_seconds",
				Help:    "Backup run duration in seconds",
				Buckets: []float64{1, 5, 30, 60, 300, 900, 3600, 7200},
			},
			[]string{"service", "backup_type"},
		),
		BackupChainDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "warehouse_backup_chain_depth",
				Help: "Number of incremental/differential backups chained onto the active full backup",
			},
			[]string{"service"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_errors_total",
				Help: "Total number of errors by kind",
			},
			[]string{"service", "kind", "operation"},
		),
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warehouse_service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "warehouse_service_info",
				Help: "Service build/environment information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.DeviceProbesTotal,
			m.DeviceHealthState,
			m.RaidRebuildsTotal,
			m.RaidRebuildDuration,
			m.ChunkOpsTotal,
			m.ChunkOpDuration,
			m.IndexOpsTotal,
			m.SnapshotOpsTotal,
			m.RestoreOpsTotal,
			m.AuthAttemptsTotal,
			m.SessionsActive,
			m.ACLDecisionsTotal,
			m.AuditEventsTotal,
			m.AuditQueueDepth,
			m.AuditFlushDuration,
			m.MemoryPressureTier,
			m.EvictionsTotal,
			m.BackupRunsTotal,
			m.BackupDuration,
			m.BackupChainDepth,
			m.ErrorsTotal,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordDeviceProbe records a storage device health probe outcome.
func (m *Metrics) RecordDeviceProbe(service, deviceID, outcome string) {
	m.DeviceProbesTotal.WithLabelValues(service, deviceID, outcome).Inc()
}

// SetDeviceHealthState sets the current health state for a device (0/1/2).
func (m *Metrics) SetDeviceHealthState(service, deviceID string, state float64) {
	m.DeviceHealthState.WithLabelValues(service, deviceID).Set(state)
}

// RecordRaidRebuild records a completed RAID rebuild.
func (m *Metrics) RecordRaidRebuild(service, arrayID, outcome string, duration time.Duration) {
	m.RaidRebuildsTotal.WithLabelValues(service, arrayID, outcome).Inc()
	m.RaidRebuildDuration.WithLabelValues(service, arrayID).Observe(duration.Seconds())
}

// RecordChunkOp records a chunk read/write operation.
func (m *Metrics) RecordChunkOp(service, operation, status string, duration time.Duration) {
	m.ChunkOpsTotal.WithLabelValues(service, operation, status).Inc()
	m.ChunkOpDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordIndexOp records a content index operation.
func (m *Metrics) RecordIndexOp(service, operation, status string) {
	m.IndexOpsTotal.WithLabelValues(service, operation, status).Inc()
}

// RecordSnapshotOp records a snapshot operation.
func (m *Metrics) RecordSnapshotOp(service, granularity, operation, status string) {
	m.SnapshotOpsTotal.WithLabelValues(service, granularity, operation, status).Inc()
}

// RecordRestoreOp records a restore operation.
func (m *Metrics) RecordRestoreOp(service, conflictPolicy, status string) {
	m.RestoreOpsTotal.WithLabelValues(service, conflictPolicy, status).Inc()
}

// RecordAuthAttempt records an authentication attempt.
func (m *Metrics) RecordAuthAttempt(service, method, outcome string) {
	m.AuthAttemptsTotal.WithLabelValues(service, method, outcome).Inc()
}

// SetSessionsActive sets the current active session count.
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
}

// RecordACLDecision records an ACL evaluation outcome.
func (m *Metrics) RecordACLDecision(service, permission, decision string) {
	m.ACLDecisionsTotal.WithLabelValues(service, permission, decision).Inc()
}

// RecordAuditEvent records an audit event enqueue.
func (m *Metrics) RecordAuditEvent(service, action string) {
	m.AuditEventsTotal.WithLabelValues(service, action).Inc()
}

// SetAuditQueueDepth sets the current pending audit queue depth.
func (m *Metrics) SetAuditQueueDepth(depth int) {
	m.AuditQueueDepth.Set(float64(depth))
}

// RecordAuditFlush records an audit log flush duration.
func (m *Metrics) RecordAuditFlush(duration time.Duration) {
	m.AuditFlushDuration.Observe(duration.Seconds())
}

// SetMemoryPressureTier sets the current memory pressure tier (0-3).
func (m *Metrics) SetMemoryPressureTier(service string, tier float64) {
	m.MemoryPressureTier.WithLabelValues(service).Set(tier)
}

// RecordEviction records an eviction pass triggered at the given tier.
func (m *Metrics) RecordEviction(service, tier string) {
	m.EvictionsTotal.WithLabelValues(service, tier).Inc()
}

// RecordBackupRun records a completed backup run.
func (m *Metrics) RecordBackupRun(service, backupType, status string, duration time.Duration) {
	m.BackupRunsTotal.WithLabelValues(service, backupType, status).Inc()
	m.BackupDuration.WithLabelValues(service, backupType).Observe(duration.Seconds())
}

// SetBackupChainDepth sets the current backup chain depth.
func (m *Metrics) SetBackupChainDepth(service string, depth int) {
	m.BackupChainDepth.WithLabelValues(service).Set(float64(depth))
}

// RecordError records an error by kind.
func (m *Metrics) RecordError(service, kind, operation string) {
	m.ErrorsTotal.WithLabelValues(service, kind, operation).Inc()
}

// UpdateUptime updates the service uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// Helper functions

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
//   - production: disabled unless explicitly enabled via METRICS_ENABLED
//   - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
