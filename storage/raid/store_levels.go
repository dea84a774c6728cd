package raid

import (
	"context"
	"hash/fnv"

	"github.com/r3e-network/warehouse-core/domain/raidmeta"
)

// storeStriped implements L0: each chunk lands on device i mod N, no
// redundancy. Every chunk write must complete.
func (e *Engine) storeStriped(ctx context.Context, key string, chunks [][]byte, total int64) error {
	n := e.n()
	writes := make(map[int]writeOp, len(chunks))
	placements := make([]raidmeta.ChunkPlacement, 0, len(chunks))
	for i, chunk := range chunks {
		dev := i % n
		writes[i] = writeOp{deviceIndex: dev, uri: chunkURI(key, i, dev), data: chunk}
		placements = append(placements, raidmeta.ChunkPlacement{StripeIndex: i, DeviceIndex: dev, Length: len(chunk)})
	}
	if err := e.writeAll(ctx, writes); err != nil {
		return err
	}
	e.putMetadata(key, &raidmeta.Metadata{
		Key: key, Level: e.config.Level, TotalSize: total, ChunkCount: len(chunks),
		StripeSize: e.config.StripeSize, Placements: placements,
	})
	return nil
}

// storeMirror implements L1: every chunk is written identically to
// MirrorCount devices. All MirrorCount writes per chunk must complete.
func (e *Engine) storeMirror(ctx context.Context, key string, chunks [][]byte, total int64) error {
	mirrors := e.config.MirrorCount
	if mirrors > e.n() {
		mirrors = e.n()
	}
	writes := make(map[int]writeOp)
	placements := make([]raidmeta.ChunkPlacement, 0, len(chunks)*mirrors)
	id := 0
	for i, chunk := range chunks {
		for m := 0; m < mirrors; m++ {
			writes[id] = writeOp{deviceIndex: m, uri: chunkURI(key, i, m), data: chunk}
			id++
			placements = append(placements, raidmeta.ChunkPlacement{StripeIndex: i, DeviceIndex: m, Length: len(chunk)})
		}
	}
	if err := e.writeAll(ctx, writes); err != nil {
		return err
	}
	e.putMetadata(key, &raidmeta.Metadata{
		Key: key, Level: e.config.Level, TotalSize: total, ChunkCount: len(chunks),
		MirrorCount: mirrors, StripeSize: e.config.StripeSize, Placements: placements,
	})
	return nil
}

// storeSingleParity implements L5/Z1/L50: rotating single parity.
func (e *Engine) storeSingleParity(ctx context.Context, key string, chunks [][]byte, total int64) error {
	n := e.n()
	stripes := singleParityStripes(chunks, n)
	writes := make(map[int]writeOp)
	var placements []raidmeta.ChunkPlacement
	id := 0

	for s, stripe := range stripes {
		parityDev := parityDeviceL5(s, n)
		order := dataDeviceOrder(n, parityDev)
		length := maxLen(stripe)
		parity := computeParityP(length, stripe)

		for i, chunk := range stripe {
			dev := order[i]
			writes[id] = writeOp{deviceIndex: dev, uri: chunkURI(key, s, dev), data: chunk}
			id++
			placements = append(placements, raidmeta.ChunkPlacement{StripeIndex: s, DeviceIndex: dev, Length: len(chunk)})
		}
		writes[id] = writeOp{deviceIndex: parityDev, uri: chunkURI(key, s, parityDev), data: parity}
		id++
		placements = append(placements, raidmeta.ChunkPlacement{StripeIndex: s, DeviceIndex: parityDev, IsParity: true, Length: length})
	}

	if err := e.writeAll(ctx, writes); err != nil {
		return err
	}
	e.putMetadata(key, &raidmeta.Metadata{
		Key: key, Level: e.config.Level, TotalSize: total, ChunkCount: len(chunks),
		StripeSize: e.config.StripeSize, Placements: placements,
	})
	return nil
}

// storeDualParity implements L6/Z2/L60: rotating dual parity (P+Q).
func (e *Engine) storeDualParity(ctx context.Context, key string, chunks [][]byte, total int64) error {
	n := e.n()
	stripes := dualParityStripes(chunks, n)
	writes := make(map[int]writeOp)
	var placements []raidmeta.ChunkPlacement
	id := 0

	for s, stripe := range stripes {
		pDev, qDev := parityDevicesL6(s, n)
		order := dataDeviceOrder(n, pDev, qDev)
		length := maxLen(stripe)
		p := computeParityP(length, stripe)
		q := computeParityQ(length, stripe)

		for i, chunk := range stripe {
			dev := order[i]
			writes[id] = writeOp{deviceIndex: dev, uri: chunkURI(key, s, dev), data: chunk}
			id++
			placements = append(placements, raidmeta.ChunkPlacement{StripeIndex: s, DeviceIndex: dev, Length: len(chunk)})
		}
		writes[id] = writeOp{deviceIndex: pDev, uri: chunkURI(key, s, pDev), data: p}
		id++
		placements = append(placements, raidmeta.ChunkPlacement{StripeIndex: s, DeviceIndex: pDev, IsParity: true, Length: length})
		writes[id] = writeOp{deviceIndex: qDev, uri: chunkURI(key, s, qDev), data: q}
		id++
		placements = append(placements, raidmeta.ChunkPlacement{StripeIndex: s, DeviceIndex: qDev, IsParity: true, IsSecondary: true, Length: length})
	}

	if err := e.writeAll(ctx, writes); err != nil {
		return err
	}
	e.putMetadata(key, &raidmeta.Metadata{
		Key: key, Level: e.config.Level, TotalSize: total, ChunkCount: len(chunks),
		StripeSize: e.config.StripeSize, Placements: placements,
	})
	return nil
}

// storeTripleParity implements Z3 via the general Reed-Solomon coder.
func (e *Engine) storeTripleParity(ctx context.Context, key string, chunks [][]byte, total int64) error {
	n := e.n()
	width := n - 3
	stripes := groupChunks(chunks, width)
	writes := make(map[int]writeOp)
	var placements []raidmeta.ChunkPlacement
	id := 0

	for s, stripe := range stripes {
		pDev, qDev, rDev := parityDevicesZ3(s, n)
		order := dataDeviceOrder(n, pDev, qDev, rDev)
		coder, err := newTripleParityCoder(len(order))
		if err != nil {
			return err
		}
		parities, err := coder.encode(stripe)
		if err != nil {
			return err
		}
		length := maxLen(stripe)

		for i, chunk := range stripe {
			dev := order[i]
			writes[id] = writeOp{deviceIndex: dev, uri: chunkURI(key, s, dev), data: chunk}
			id++
			placements = append(placements, raidmeta.ChunkPlacement{StripeIndex: s, DeviceIndex: dev, Length: len(chunk)})
		}
		writes[id] = writeOp{deviceIndex: pDev, uri: chunkURI(key, s, pDev), data: parities[0]}
		id++
		placements = append(placements, raidmeta.ChunkPlacement{StripeIndex: s, DeviceIndex: pDev, IsParity: true, Length: length})
		writes[id] = writeOp{deviceIndex: qDev, uri: chunkURI(key, s, qDev), data: parities[1]}
		id++
		placements = append(placements, raidmeta.ChunkPlacement{StripeIndex: s, DeviceIndex: qDev, IsParity: true, IsSecondary: true, Length: length})
		writes[id] = writeOp{deviceIndex: rDev, uri: chunkURI(key, s, rDev), data: parities[2]}
		id++
		placements = append(placements, raidmeta.ChunkPlacement{StripeIndex: s, DeviceIndex: rDev, IsParity: true, IsSecondary: true, Length: length})
	}

	if err := e.writeAll(ctx, writes); err != nil {
		return err
	}
	e.putMetadata(key, &raidmeta.Metadata{
		Key: key, Level: e.config.Level, TotalSize: total, ChunkCount: len(chunks),
		StripeSize: e.config.StripeSize, Placements: placements,
	})
	return nil
}

// storeMirroredStripe implements L10/L01: devices are paired into mirrors,
// chunks striped round-robin across the pairs, each chunk written to both
// members of its pair.
func (e *Engine) storeMirroredStripe(ctx context.Context, key string, chunks [][]byte, total int64) error {
	n := e.n()
	pairs := n / 2
	writes := make(map[int]writeOp)
	var placements []raidmeta.ChunkPlacement
	id := 0

	for i, chunk := range chunks {
		pair := i % pairs
		devA, devB := pair*2, pair*2+1
		writes[id] = writeOp{deviceIndex: devA, uri: chunkURI(key, i, devA), data: chunk}
		id++
		writes[id] = writeOp{deviceIndex: devB, uri: chunkURI(key, i, devB), data: chunk}
		id++
		placements = append(placements,
			raidmeta.ChunkPlacement{StripeIndex: i, DeviceIndex: devA, Length: len(chunk)},
			raidmeta.ChunkPlacement{StripeIndex: i, DeviceIndex: devB, Length: len(chunk)},
		)
	}

	if err := e.writeAll(ctx, writes); err != nil {
		return err
	}
	e.putMetadata(key, &raidmeta.Metadata{
		Key: key, Level: e.config.Level, TotalSize: total, ChunkCount: len(chunks),
		MirrorCount: 2, StripeSize: e.config.StripeSize, Placements: placements,
	})
	return nil
}

// storeUnraid implements the Unraid edge case: bypasses striping entirely.
// The whole blob lands on one data device selected by hash(key). Nothing
// is written to the parity devices: this package has no parity-sync job
// and computes no parity for Unraid blobs.
func (e *Engine) storeUnraid(ctx context.Context, key string, data []byte) error {
	n := e.n()
	parityDisks := 1
	dataDisks := n - parityDisks
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	dev := int(h.Sum32()) % dataDisks
	if dev < 0 {
		dev += dataDisks
	}

	writes := map[int]writeOp{
		0: {deviceIndex: dev, uri: "unraid/" + key, data: data},
	}
	if err := e.writeAll(ctx, writes); err != nil {
		return err
	}
	e.putMetadata(key, &raidmeta.Metadata{
		Key: key, Level: raidmeta.LevelUnraid, TotalSize: int64(len(data)), ChunkCount: 1,
		Placements: []raidmeta.ChunkPlacement{{DeviceIndex: dev, Length: len(data)}},
	})
	return nil
}
