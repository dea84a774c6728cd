package raid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/r3e-network/warehouse-core/domain/raidmeta"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
	"github.com/r3e-network/warehouse-core/infrastructure/logging"
	"github.com/r3e-network/warehouse-core/infrastructure/metrics"
	"github.com/r3e-network/warehouse-core/infrastructure/resilience"
	"github.com/r3e-network/warehouse-core/storage/device"
)

// DeviceHealth is the health-monitor state for one pool member.
type DeviceHealth int

const (
	HealthHealthy DeviceHealth = iota
	HealthDegraded
	HealthFailed
)

func (h DeviceHealth) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Engine is the redundancy engine for one pool at one configured level.
type Engine struct {
	pool   *device.Pool
	config raidmeta.Config
	logger *logging.Logger

	metaMu sync.RWMutex
	meta   map[string]*raidmeta.Metadata

	healthMu        sync.Mutex
	health          []DeviceHealth
	consecutiveFail []int
	breakers        []*resilience.CircuitBreaker

	rebuildMu      sync.Mutex
	rebuildRunning bool
	rebuildCancel  context.CancelFunc
}

// New constructs a redundancy engine over pool at the given (validated)
// configuration.
func New(pool *device.Pool, cfg raidmeta.Config, logger *logging.Logger) (*Engine, error) {
	cfg = WithDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if pool.Len() < cfg.DeviceCount {
		return nil, errors.InvalidConfiguration("device_count", "pool has fewer devices than configured")
	}
	if logger == nil {
		logger = logging.NewFromEnv("raid")
	}
	return &Engine{
		pool:            pool,
		config:          cfg,
		logger:          logger,
		meta:            make(map[string]*raidmeta.Metadata),
		health:          make([]DeviceHealth, pool.Len()),
		consecutiveFail: make([]int, pool.Len()),
	}, nil
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() raidmeta.Config {
	return e.config
}

func (e *Engine) n() int {
	return e.config.DeviceCount
}

func (e *Engine) putMetadata(key string, m *raidmeta.Metadata) {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	e.meta[key] = m
}

func (e *Engine) getMetadata(key string) (*raidmeta.Metadata, bool) {
	e.metaMu.RLock()
	defer e.metaMu.RUnlock()
	m, ok := e.meta[key]
	return m, ok
}

// DeleteMetadata removes a key's redundancy descriptor, used when the blob
// it describes is destroyed.
func (e *Engine) DeleteMetadata(key string) {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	delete(e.meta, key)
}

// Health returns the current health state of device idx.
func (e *Engine) Health(idx int) DeviceHealth {
	e.healthMu.Lock()
	defer e.healthMu.Unlock()
	if idx < 0 || idx >= len(e.health) {
		return HealthFailed
	}
	return e.health[idx]
}

func (e *Engine) recordMetric(op, outcome string, dur time.Duration) {
	m := metrics.Global()
	if m == nil {
		return
	}
	m.RecordChunkOp("warehouse", op, outcome, dur)
}

func chunkURI(key string, stripe, slot int) string {
	return fmt.Sprintf("raid/%s/%d/%d", key, stripe, slot)
}

// consecutiveFailThreshold is the number of consecutive failed accesses
// (read or probe) before a device transitions Healthy/Degraded -> Failed.
const consecutiveFailThreshold = 3

// noteDeviceFailure records a failed access against a device index, moving
// it through Healthy -> Degraded -> Failed as consecutive failures
// accumulate. A device idx outside the pool range is ignored.
func (e *Engine) noteDeviceFailure(idx int) {
	e.healthMu.Lock()
	defer e.healthMu.Unlock()
	if idx < 0 || idx >= len(e.health) {
		return
	}
	e.consecutiveFail[idx]++
	switch {
	case e.consecutiveFail[idx] >= consecutiveFailThreshold:
		e.health[idx] = HealthFailed
	case e.consecutiveFail[idx] >= 1:
		if e.health[idx] == HealthHealthy {
			e.health[idx] = HealthDegraded
		}
	}
}

// noteDeviceSuccess resets a device's consecutive-failure count and
// restores it to healthy, unless it has already been marked Failed (which
// requires an explicit rebuild to clear, per the health monitor).
func (e *Engine) noteDeviceSuccess(idx int) {
	e.healthMu.Lock()
	defer e.healthMu.Unlock()
	if idx < 0 || idx >= len(e.health) {
		return
	}
	e.consecutiveFail[idx] = 0
	if e.health[idx] != HealthFailed {
		e.health[idx] = HealthHealthy
	}
}
