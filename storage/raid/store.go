package raid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/r3e-network/warehouse-core/domain/raidmeta"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
)

// Store implements the write contract (§4.2): split into chunks, compute
// stripe layout and parity for the configured level, issue per-device
// writes concurrently, and persist the RaidMetadata record only once every
// write the level requires for safety has completed.
func (e *Engine) Store(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := e.store(ctx, key, data)
	if err != nil {
		e.recordMetric("write", "failed", time.Since(start))
		return err
	}
	e.recordMetric("write", "success", time.Since(start))
	return nil
}

func (e *Engine) store(ctx context.Context, key string, data []byte) error {
	select {
	case <-ctx.Done():
		return errors.Cancelled("raid_store")
	default:
	}

	chunks := chunkBytes(data, e.config.StripeSize)

	if len(chunks) == 0 {
		e.putMetadata(key, &raidmeta.Metadata{
			Key: key, Level: e.config.Level, TotalSize: 0, ChunkCount: 0,
			MirrorCount: e.config.MirrorCount, StripeSize: e.config.StripeSize,
		})
		return nil
	}

	switch e.config.Level {
	case raidmeta.Level0:
		return e.storeStriped(ctx, key, chunks, int64(len(data)))
	case raidmeta.Level1:
		return e.storeMirror(ctx, key, chunks, int64(len(data)))
	case raidmeta.Level5, raidmeta.LevelZ1, raidmeta.Level50:
		return e.storeSingleParity(ctx, key, chunks, int64(len(data)))
	case raidmeta.Level6, raidmeta.LevelZ2, raidmeta.Level60:
		return e.storeDualParity(ctx, key, chunks, int64(len(data)))
	case raidmeta.LevelZ3:
		return e.storeTripleParity(ctx, key, chunks, int64(len(data)))
	case raidmeta.Level10, raidmeta.Level01:
		return e.storeMirroredStripe(ctx, key, chunks, int64(len(data)))
	case raidmeta.LevelUnraid:
		return e.storeUnraid(ctx, key, data)
	default:
		return errors.InvalidConfiguration("raid_level", "unsupported level "+string(e.config.Level))
	}
}

// writeOp is one write issued as part of a stripe, keyed to a pool device
// index. A map of writeOp values is keyed by an arbitrary unique id (not
// the device index, since a single device can receive several writes in
// one stripe set, e.g. mirrors); deviceIndex identifies the actual target.
type writeOp struct {
	deviceIndex int
	uri         string
	data        []byte
}

// writeAll issues writes concurrently and waits for all of them to
// complete, returning WriteFailed naming the devices that failed and
// best-effort rolling back the writes that did succeed.
func (e *Engine) writeAll(ctx context.Context, writes map[int]writeOp) error {
	var wg sync.WaitGroup
	errs := make(map[int]error)
	var mu sync.Mutex

	for id, w := range writes {
		wg.Add(1)
		go func(id int, w writeOp) {
			defer wg.Done()
			dev, err := e.pool.Device(w.deviceIndex)
			if err != nil {
				mu.Lock()
				errs[id] = err
				mu.Unlock()
				return
			}
			err = dev.Save(ctx, w.uri, w.data)
			e.logger.LogDeviceOp(ctx, fmt.Sprintf("device[%d]", w.deviceIndex), "write", err)
			if err != nil {
				mu.Lock()
				errs[id] = err
				mu.Unlock()
			}
		}(id, w)
	}
	wg.Wait()

	if len(errs) == 0 {
		return nil
	}

	// best-effort rollback of the writes that did succeed
	for id, w := range writes {
		if _, failed := errs[id]; failed {
			continue
		}
		if dev, err := e.pool.Device(w.deviceIndex); err == nil {
			_ = dev.Delete(ctx, w.uri)
		}
	}

	failedDevices := make([]int, 0, len(errs))
	for id := range errs {
		failedDevices = append(failedDevices, writes[id].deviceIndex)
	}
	return errors.WriteFailed("raid_stripe", fmt.Errorf("%d device write(s) failed: %v", len(failedDevices), failedDevices))
}
