package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	if m == nil {
		t.Fatal("Expected metrics instance, got nil")
	}

	if m.DeviceProbesTotal == nil {
		t.Error("DeviceProbesTotal should not be nil")
	}
	if m.RaidRebuildDuration == nil {
		t.Error("RaidRebuildDuration should not be nil")
	}
	if m.ErrorsTotal == nil {
		t.Error("ErrorsTotal should not be nil")
	}
}

func TestRecordDeviceProbe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordDeviceProbe("test-service", "dev-1", "success")
	m.RecordDeviceProbe("test-service", "dev-1", "timeout")
	m.SetDeviceHealthState("test-service", "dev-1", 1)
}

func TestRecordError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordError("test-service", "invalid_argument", "create_manifest")
	m.RecordError("test-service", "device_unavailable", "read_chunk")
}

func TestRecordRaidRebuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordRaidRebuild("test-service", "array-1", "success", 2*time.Second)
	m.RecordRaidRebuild("test-service", "array-1", "failed", 1*time.Second)
}

func TestRecordChunkOp(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordChunkOp("test-service", "read", "success", 10*time.Millisecond)
	m.RecordChunkOp("test-service", "write", "failed", 5*time.Millisecond)
}

func TestRecordIndexSnapshotRestoreOps(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordIndexOp("test-service", "lookup", "success")
	m.RecordSnapshotOp("test-service", "single_file", "create", "success")
	m.RecordRestoreOp("test-service", "overwrite", "success")
}

func TestSessionAndACLMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordAuthAttempt("test-service", "password", "success")
	m.SetSessionsActive(10)
	m.RecordACLDecision("test-service", "write", "granted")
}

func TestAuditMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordAuditEvent("test-service", "write_chunk")
	m.SetAuditQueueDepth(42)
	m.RecordAuditFlush(15 * time.Millisecond)
}

func TestMemoryPressureMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.SetMemoryPressureTier("test-service", 2)
	m.RecordEviction("test-service", "critical")
}

func TestBackupMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordBackupRun("test-service", "full", "success", time.Minute)
	m.SetBackupChainDepth("test-service", 3)
}

func TestUpdateUptime(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)
	startTime := time.Now().Add(-1 * time.Hour)

	m.UpdateUptime(startTime)
}

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	if m == nil {
		t.Fatal("Expected metrics instance, got nil")
	}

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Error("Expected metrics to be registered")
	}
}
