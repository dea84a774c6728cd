package raid

import (
	"context"
	"time"

	"github.com/r3e-network/warehouse-core/infrastructure/resilience"
	"github.com/r3e-network/warehouse-core/infrastructure/supervisor"
)

// healthProbeURI is a canary object every device is probed against; its
// presence or absence is irrelevant, only whether the call succeeds.
const healthProbeURI = "raid/.health-probe"

// StartHealthMonitor registers the periodic per-device probe on sup. A
// zero HealthCheckInterval leaves the monitor disabled; devices can still
// be marked failed directly by read errors via noteDeviceFailure (write
// failures do not change device health).
func (e *Engine) StartHealthMonitor(sup *supervisor.Supervisor) {
	if e.config.HealthCheckInterval <= 0 {
		return
	}
	interval := time.Duration(e.config.HealthCheckInterval) * time.Second
	sup.AddTickerWorker(interval, e.probeAll, supervisor.WithName("raid-health"))
}

func (e *Engine) probeAll(ctx context.Context) error {
	for idx := 0; idx < e.pool.Len(); idx++ {
		e.probeDevice(ctx, idx)
	}
	return nil
}

// probeDevice runs one circuit-breaker-wrapped existence check against a
// device and, if it drives the device from some other state into Failed,
// kicks off a background rebuild when the engine is configured for it.
func (e *Engine) probeDevice(ctx context.Context, idx int) {
	wasFailed := e.Health(idx) == HealthFailed
	breaker := e.breaker(idx)

	err := breaker.Execute(ctx, func() error {
		dev, err := e.pool.Device(idx)
		if err != nil {
			return err
		}
		_, err = dev.Exists(ctx, healthProbeURI)
		return err
	})
	if err != nil {
		e.noteDeviceFailure(idx)
	} else {
		e.noteDeviceSuccess(idx)
	}

	if !wasFailed && e.Health(idx) == HealthFailed {
		e.logger.WithContext(ctx).WithField("device_index", idx).Warn("raid device marked failed")
		if e.config.AutoRebuild {
			e.startRebuild(idx)
		}
	}
}

func (e *Engine) breaker(idx int) *resilience.CircuitBreaker {
	e.healthMu.Lock()
	defer e.healthMu.Unlock()
	if e.breakers == nil {
		e.breakers = make([]*resilience.CircuitBreaker, len(e.health))
	}
	if idx < 0 || idx >= len(e.breakers) {
		return resilience.New(resilience.DefaultConfig())
	}
	if e.breakers[idx] == nil {
		e.breakers[idx] = resilience.New(resilience.DefaultConfig())
	}
	return e.breakers[idx]
}
