package raid

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/r3e-network/warehouse-core/domain/raidmeta"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
)

// Load implements the read contract (§4.2): look up the stored redundancy
// descriptor, read every stripe's participants concurrently, reconstruct
// any stripe that lost chunks within the level's failure tolerance, and
// reassemble the original byte stream.
func (e *Engine) Load(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := e.load(ctx, key)
	if err != nil {
		e.recordMetric("read", "failed", time.Since(start))
		return nil, err
	}
	e.recordMetric("read", "success", time.Since(start))
	return data, nil
}

func (e *Engine) load(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, errors.Cancelled("raid_load")
	default:
	}

	meta, ok := e.getMetadata(key)
	if !ok {
		return nil, errors.NotFound("raid_object", key)
	}
	if meta.ChunkCount == 0 {
		return []byte{}, nil
	}

	switch meta.Level {
	case raidmeta.Level0:
		return e.loadStriped(ctx, key, meta)
	case raidmeta.Level1:
		return e.loadMirror(ctx, key, meta)
	case raidmeta.Level5, raidmeta.LevelZ1, raidmeta.Level50:
		return e.loadSingleParity(ctx, key, meta)
	case raidmeta.Level6, raidmeta.LevelZ2, raidmeta.Level60:
		return e.loadDualParity(ctx, key, meta)
	case raidmeta.LevelZ3:
		return e.loadTripleParity(ctx, key, meta)
	case raidmeta.Level10, raidmeta.Level01:
		return e.loadMirroredStripe(ctx, key, meta)
	case raidmeta.LevelUnraid:
		return e.loadUnraid(ctx, key, meta)
	default:
		return nil, errors.InvalidConfiguration("raid_level", "unsupported level "+string(meta.Level))
	}
}

// readOp is one read issued as part of a stripe, mirroring writeOp: keyed
// by an arbitrary unique id rather than device index, since a device can
// hold several chunks being read in the same batch (striping reuses device
// indices across stripes).
type readOp struct {
	deviceIndex int
	uri         string
}

// readResult is the outcome of reading one device's chunk.
type readResult struct {
	data []byte
	err  error
}

// readMany reads a set of reads concurrently, updating the health
// monitor's consecutive-failure counters as it goes, and returns every
// result keyed by the same id used in the request map.
func (e *Engine) readMany(ctx context.Context, reads map[int]readOp) map[int]readResult {
	results := make(map[int]readResult, len(reads))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for id, r := range reads {
		wg.Add(1)
		go func(id int, r readOp) {
			defer wg.Done()
			dev, err := e.pool.Device(r.deviceIndex)
			var data []byte
			if err == nil {
				data, err = dev.Load(ctx, r.uri)
			}
			e.logger.LogDeviceOp(ctx, fmt.Sprintf("device[%d]", r.deviceIndex), "read", err)
			if err != nil {
				e.noteDeviceFailure(r.deviceIndex)
			} else {
				e.noteDeviceSuccess(r.deviceIndex)
			}
			mu.Lock()
			results[id] = readResult{data: data, err: err}
			mu.Unlock()
		}(id, r)
	}
	wg.Wait()
	return results
}

// chunkLength returns the expected length of data chunk i given the
// manifest's total chunk count, total size, and stripe size: every chunk
// is a full stripe except possibly the last, which may be short.
func chunkLength(i, chunkCount int, totalSize int64, stripeSize int) int {
	if i < chunkCount-1 {
		return stripeSize
	}
	last := int(totalSize - int64(stripeSize)*int64(chunkCount-1))
	if last <= 0 {
		return stripeSize
	}
	return last
}

// stripeLength returns the parity-relevant length for a stripe spanning
// chunk indices [start,end): the longest individual chunk expected in
// that range.
func stripeLength(chunkCount int, totalSize int64, stripeSize, start, end int) int {
	max := 0
	for i := start; i < end; i++ {
		l := chunkLength(i, chunkCount, totalSize, stripeSize)
		if l > max {
			max = l
		}
	}
	return max
}

// truncate trims a reassembled buffer to the manifest's recorded total
// size, undoing the final stripe's zero-padding.
func truncate(buf *bytes.Buffer, total int64) []byte {
	out := buf.Bytes()
	if int64(len(out)) > total {
		out = out[:total]
	}
	return append([]byte(nil), out...)
}
