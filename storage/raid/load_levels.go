package raid

import (
	"bytes"
	"context"
	"hash/fnv"

	"github.com/r3e-network/warehouse-core/domain/raidmeta"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
)

// loadStriped reads back an L0 blob: no redundancy, so any failed chunk
// read is immediately unrecoverable.
func (e *Engine) loadStriped(ctx context.Context, key string, meta *raidmeta.Metadata) ([]byte, error) {
	n := e.n()
	reads := make(map[int]readOp, meta.ChunkCount)
	for i := 0; i < meta.ChunkCount; i++ {
		dev := i % n
		reads[i] = readOp{deviceIndex: dev, uri: chunkURI(key, i, dev)}
	}
	results := e.readMany(ctx, reads)

	var buf bytes.Buffer
	for i := 0; i < meta.ChunkCount; i++ {
		res := results[i]
		if res.err != nil {
			return nil, errors.UnrecoverableRead(key, res.err)
		}
		buf.Write(res.data)
	}
	return truncate(&buf, meta.TotalSize), nil
}

// loadMirror reads back an L1 blob: each chunk is read from the first
// mirror that answers successfully.
func (e *Engine) loadMirror(ctx context.Context, key string, meta *raidmeta.Metadata) ([]byte, error) {
	mirrors := meta.MirrorCount
	if mirrors <= 0 {
		mirrors = 1
	}
	reads := make(map[int]readOp)
	id := 0
	chunkFirstID := make([]int, meta.ChunkCount)
	for i := 0; i < meta.ChunkCount; i++ {
		chunkFirstID[i] = id
		for m := 0; m < mirrors; m++ {
			reads[id] = readOp{deviceIndex: m, uri: chunkURI(key, i, m)}
			id++
		}
	}
	results := e.readMany(ctx, reads)

	var buf bytes.Buffer
	for i := 0; i < meta.ChunkCount; i++ {
		base := chunkFirstID[i]
		var chosen *readResult
		for m := 0; m < mirrors; m++ {
			if r, ok := results[base+m]; ok && r.err == nil {
				chosen = &r
				break
			}
		}
		if chosen == nil {
			return nil, errors.UnrecoverableRead(key, errors.NotFound("raid_mirror", key))
		}
		buf.Write(chosen.data)
	}
	return truncate(&buf, meta.TotalSize), nil
}

// loadSingleParity reads back an L5/Z1/L50 blob, reconstructing one
// missing chunk per stripe via XOR parity if necessary.
func (e *Engine) loadSingleParity(ctx context.Context, key string, meta *raidmeta.Metadata) ([]byte, error) {
	n := e.n()
	width := n - 1
	stripes := (meta.ChunkCount + width - 1) / width

	var buf bytes.Buffer
	for s := 0; s < stripes; s++ {
		start := s * width
		end := start + width
		if end > meta.ChunkCount {
			end = meta.ChunkCount
		}
		count := end - start

		parityDev := parityDeviceL5(s, n)
		order := dataDeviceOrder(n, parityDev)
		length := stripeLength(meta.ChunkCount, meta.TotalSize, meta.StripeSize, start, end)

		reads := make(map[int]readOp, count+1)
		for i := 0; i < count; i++ {
			dev := order[i]
			reads[i] = readOp{deviceIndex: dev, uri: chunkURI(key, s, dev)}
		}
		reads[count] = readOp{deviceIndex: parityDev, uri: chunkURI(key, s, parityDev)}
		results := e.readMany(ctx, reads)

		data := make([][]byte, count)
		missing := -1
		for i := 0; i < count; i++ {
			if results[i].err != nil {
				if missing != -1 {
					return nil, errors.UnrecoverableRead(key, results[i].err)
				}
				missing = i
				continue
			}
			data[i] = results[i].data
		}
		parityRes := results[count]

		if missing == -1 {
			for i := 0; i < count; i++ {
				buf.Write(padTo(data[i], length))
			}
			continue
		}
		if parityRes.err != nil {
			return nil, errors.UnrecoverableRead(key, parityRes.err)
		}
		recovered := recoverSingleErasure(length, data, missing, parityRes.data, nil, true, false)
		data[missing] = recovered
		for i := 0; i < count; i++ {
			buf.Write(padTo(data[i], length))
		}
	}
	return truncate(&buf, meta.TotalSize), nil
}

// loadDualParity reads back an L6/Z2/L60 blob, tolerating up to two lost
// participants (data or parity) per stripe via the P/Q recovery equations.
func (e *Engine) loadDualParity(ctx context.Context, key string, meta *raidmeta.Metadata) ([]byte, error) {
	n := e.n()
	width := n - 2
	stripes := (meta.ChunkCount + width - 1) / width

	var buf bytes.Buffer
	for s := 0; s < stripes; s++ {
		start := s * width
		end := start + width
		if end > meta.ChunkCount {
			end = meta.ChunkCount
		}
		count := end - start

		pDev, qDev := parityDevicesL6(s, n)
		order := dataDeviceOrder(n, pDev, qDev)
		length := stripeLength(meta.ChunkCount, meta.TotalSize, meta.StripeSize, start, end)

		reads := make(map[int]readOp, count+2)
		for i := 0; i < count; i++ {
			dev := order[i]
			reads[i] = readOp{deviceIndex: dev, uri: chunkURI(key, s, dev)}
		}
		const pID, qID = -1, -2
		reads[pID] = readOp{deviceIndex: pDev, uri: chunkURI(key, s, pDev)}
		reads[qID] = readOp{deviceIndex: qDev, uri: chunkURI(key, s, qDev)}
		results := e.readMany(ctx, reads)

		data := make([][]byte, count)
		var missingData []int
		for i := 0; i < count; i++ {
			if results[i].err != nil {
				missingData = append(missingData, i)
				continue
			}
			data[i] = results[i].data
		}
		pAlive := results[pID].err == nil
		qAlive := results[qID].err == nil
		var p, q []byte
		if pAlive {
			p = results[pID].data
		}
		if qAlive {
			q = results[qID].data
		}

		switch len(missingData) {
		case 0:
			// data intact; nothing to reconstruct regardless of parity state
		case 1:
			if !pAlive && !qAlive {
				return nil, errors.UnrecoverableRead(key, errors.Corruption(key, nil))
			}
			data[missingData[0]] = recoverSingleErasure(length, data, missingData[0], p, q, pAlive, qAlive)
		case 2:
			if !pAlive || !qAlive {
				return nil, errors.UnrecoverableRead(key, errors.Corruption(key, nil))
			}
			a, b := recoverDoubleErasure(length, data, missingData[0], missingData[1], p, q)
			data[missingData[0]] = a
			data[missingData[1]] = b
		default:
			return nil, errors.UnrecoverableRead(key, errors.Corruption(key, nil))
		}

		for i := 0; i < count; i++ {
			buf.Write(padTo(data[i], length))
		}
	}
	return truncate(&buf, meta.TotalSize), nil
}

// loadTripleParity reads back a Z3 blob via the general Reed-Solomon
// reconstructor, tolerating up to three lost participants per stripe.
func (e *Engine) loadTripleParity(ctx context.Context, key string, meta *raidmeta.Metadata) ([]byte, error) {
	n := e.n()
	width := n - 3
	stripes := (meta.ChunkCount + width - 1) / width

	var buf bytes.Buffer
	for s := 0; s < stripes; s++ {
		start := s * width
		end := start + width
		if end > meta.ChunkCount {
			end = meta.ChunkCount
		}
		count := end - start

		pDev, qDev, rDev := parityDevicesZ3(s, n)
		order := dataDeviceOrder(n, pDev, qDev, rDev)
		length := stripeLength(meta.ChunkCount, meta.TotalSize, meta.StripeSize, start, end)

		reads := make(map[int]readOp, count+3)
		for i := 0; i < count; i++ {
			dev := order[i]
			reads[i] = readOp{deviceIndex: dev, uri: chunkURI(key, s, dev)}
		}
		const pID, qID, rID = -1, -2, -3
		reads[pID] = readOp{deviceIndex: pDev, uri: chunkURI(key, s, pDev)}
		reads[qID] = readOp{deviceIndex: qDev, uri: chunkURI(key, s, qDev)}
		reads[rID] = readOp{deviceIndex: rDev, uri: chunkURI(key, s, rDev)}
		results := e.readMany(ctx, reads)

		shards := make([][]byte, len(order)+3)
		failures := 0
		for i := 0; i < count; i++ {
			if results[i].err != nil {
				failures++
				shards[i] = nil
			} else {
				shards[i] = padTo(results[i].data, length)
			}
		}
		for i := count; i < len(order); i++ {
			// never written on the write path (short final stripe); the
			// encoder treated these as known zero, not missing.
			shards[i] = make([]byte, length)
		}
		for j, id := range []int{pID, qID, rID} {
			if results[id].err != nil {
				failures++
				shards[len(order)+j] = nil
			} else {
				shards[len(order)+j] = padTo(results[id].data, length)
			}
		}
		if failures > 3 {
			return nil, errors.UnrecoverableRead(key, errors.Corruption(key, nil))
		}

		if failures > 0 {
			coder, err := newTripleParityCoder(len(order))
			if err != nil {
				return nil, err
			}
			if err := coder.reconstruct(shards); err != nil {
				return nil, err
			}
		}
		for i := 0; i < count; i++ {
			buf.Write(shards[i])
		}
	}
	return truncate(&buf, meta.TotalSize), nil
}

// loadMirroredStripe reads back an L10/L01 blob: each chunk is read from
// whichever member of its mirror pair answers successfully.
func (e *Engine) loadMirroredStripe(ctx context.Context, key string, meta *raidmeta.Metadata) ([]byte, error) {
	n := e.n()
	pairs := n / 2
	reads := make(map[int]readOp, meta.ChunkCount*2)
	for i := 0; i < meta.ChunkCount; i++ {
		pair := i % pairs
		devA, devB := pair*2, pair*2+1
		reads[i*2] = readOp{deviceIndex: devA, uri: chunkURI(key, i, devA)}
		reads[i*2+1] = readOp{deviceIndex: devB, uri: chunkURI(key, i, devB)}
	}
	results := e.readMany(ctx, reads)

	var buf bytes.Buffer
	for i := 0; i < meta.ChunkCount; i++ {
		a, b := results[i*2], results[i*2+1]
		switch {
		case a.err == nil:
			buf.Write(a.data)
		case b.err == nil:
			buf.Write(b.data)
		default:
			return nil, errors.UnrecoverableRead(key, a.err)
		}
	}
	return truncate(&buf, meta.TotalSize), nil
}

// loadUnraid reads back a whole blob stored on its single assigned data
// device, re-deriving that device index the same way the write path chose
// it.
func (e *Engine) loadUnraid(ctx context.Context, key string, meta *raidmeta.Metadata) ([]byte, error) {
	n := e.n()
	parityDisks := 1
	dataDisks := n - parityDisks
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	dev := int(h.Sum32()) % dataDisks
	if dev < 0 {
		dev += dataDisks
	}
	reads := map[int]readOp{0: {deviceIndex: dev, uri: "unraid/" + key}}
	results := e.readMany(ctx, reads)
	res := results[0]
	if res.err != nil {
		return nil, errors.UnrecoverableRead(key, res.err)
	}
	return res.data, nil
}

// padTo returns data zero-padded (or truncated) to exactly length bytes,
// undoing the zero-padding parity computation applies to short chunks.
func padTo(data []byte, length int) []byte {
	if len(data) == length {
		return data
	}
	out := make([]byte, length)
	copy(out, data)
	return out
}
