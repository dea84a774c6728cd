package raid

import (
	"context"
	"time"

	"github.com/r3e-network/warehouse-core/infrastructure/errors"
	"github.com/r3e-network/warehouse-core/infrastructure/resilience"
)

// rebuildRetryConfig governs per-key load/store retries during Rebuild: a
// freshly replaced member or a still-recovering peer can fail its first
// few accesses, so a key is only given up on after rebuildRetryConfig's
// backoff schedule is exhausted, not on the first error.
var rebuildRetryConfig = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
	Jitter:       0.1,
}

// keysTouchingDevice returns every stored key whose redundancy descriptor
// places at least one chunk on device idx.
func (e *Engine) keysTouchingDevice(idx int) []string {
	e.metaMu.RLock()
	defer e.metaMu.RUnlock()
	var keys []string
	for key, m := range e.meta {
		for _, p := range m.Placements {
			if p.DeviceIndex == idx {
				keys = append(keys, key)
				break
			}
		}
	}
	return keys
}

// Rebuild restores full redundancy for every key that placed data on
// deviceIdx, intended to run after the caller has replaced the failed
// member via Pool.Replace. It is cancellable and preserves partial
// progress: keys already rebuilt stay rebuilt if a later key fails or the
// context is cancelled. Only one rebuild runs at a time per engine.
func (e *Engine) Rebuild(ctx context.Context, deviceIdx int) error {
	e.rebuildMu.Lock()
	if e.rebuildRunning {
		e.rebuildMu.Unlock()
		return errors.Conflict("a rebuild is already running on this engine")
	}
	e.rebuildRunning = true
	rebuildCtx, cancel := context.WithCancel(ctx)
	e.rebuildCancel = cancel
	e.rebuildMu.Unlock()

	defer func() {
		e.rebuildMu.Lock()
		e.rebuildRunning = false
		e.rebuildCancel = nil
		e.rebuildMu.Unlock()
		cancel()
	}()

	keys := e.keysTouchingDevice(deviceIdx)
	e.logger.WithContext(ctx).WithField("device_index", deviceIdx).WithField("key_count", len(keys)).Info("raid rebuild started")

	for _, key := range keys {
		select {
		case <-rebuildCtx.Done():
			return errors.Cancelled("raid_rebuild")
		default:
		}

		var data []byte
		loadErr := resilience.Retry(rebuildCtx, rebuildRetryConfig, func() error {
			var err error
			data, err = e.load(rebuildCtx, key)
			return err
		})
		if loadErr != nil {
			e.logger.WithContext(ctx).WithError(loadErr).WithField("key", key).Warn("raid rebuild: key unreadable after retries, skipping")
			continue
		}

		storeErr := resilience.Retry(rebuildCtx, rebuildRetryConfig, func() error {
			return e.store(rebuildCtx, key, data)
		})
		if storeErr != nil {
			e.logger.WithContext(ctx).WithError(storeErr).WithField("key", key).Warn("raid rebuild: key rewrite failed after retries, skipping")
			continue
		}
	}

	e.healthMu.Lock()
	if deviceIdx >= 0 && deviceIdx < len(e.health) {
		e.health[deviceIdx] = HealthHealthy
		e.consecutiveFail[deviceIdx] = 0
	}
	e.healthMu.Unlock()

	e.logger.WithContext(ctx).WithField("device_index", deviceIdx).Info("raid rebuild completed")
	return nil
}

// CancelRebuild stops a running rebuild at its next key boundary. It is a
// no-op if no rebuild is running.
func (e *Engine) CancelRebuild() {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()
	if e.rebuildCancel != nil {
		e.rebuildCancel()
	}
}

// startRebuild launches Rebuild in the background, used by the health
// monitor when AutoRebuild is enabled. Errors are logged, not returned,
// since there is no caller to receive them.
func (e *Engine) startRebuild(deviceIdx int) {
	go func() {
		ctx := context.Background()
		if err := e.Rebuild(ctx, deviceIdx); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("device_index", deviceIdx).Warn("raid auto-rebuild failed")
		}
	}()
}
