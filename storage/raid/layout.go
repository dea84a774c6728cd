package raid

// chunkBytes splits data into chunks of stripeSize, the last possibly
// short. Empty input yields zero chunks.
func chunkBytes(data []byte, stripeSize int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var chunks [][]byte
	for offset := 0; offset < len(data); offset += stripeSize {
		end := offset + stripeSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[offset:end])
	}
	return chunks
}

// singleParityStripes groups dataChunks into stripes of width n-1 for a
// rotating-single-parity layout (L5/Z1) across n devices. The parity device
// for stripe s is s mod n; data occupies the remaining devices ascending,
// skipping the parity slot.
func singleParityStripes(dataChunks [][]byte, n int) [][][]byte {
	width := n - 1
	return groupChunks(dataChunks, width)
}

// dualParityStripes groups dataChunks into stripes of width n-2 for a
// rotating-dual-parity layout (L6/Z2) across n devices.
func dualParityStripes(dataChunks [][]byte, n int) [][][]byte {
	width := n - 2
	return groupChunks(dataChunks, width)
}

func groupChunks(chunks [][]byte, width int) [][][]byte {
	if width <= 0 {
		return nil
	}
	var groups [][][]byte
	for offset := 0; offset < len(chunks); offset += width {
		end := offset + width
		if end > len(chunks) {
			end = len(chunks)
		}
		groups = append(groups, chunks[offset:end])
	}
	return groups
}

// parityDeviceL5 returns the device index holding parity for stripe s
// across n devices.
func parityDeviceL5(stripe, n int) int {
	return stripe % n
}

// parityDevicesL6 returns the P and Q device indices for stripe s across n
// devices.
func parityDevicesL6(stripe, n int) (p, q int) {
	p = stripe % n
	q = (stripe + 1) % n
	return
}

// parityDevicesZ3 returns the three parity device indices for stripe s
// across n devices.
func parityDevicesZ3(stripe, n int) (p, q, r int) {
	p = stripe % n
	q = (stripe + 1) % n
	r = (stripe + 2) % n
	return
}

// dataDeviceOrder returns the ascending device indices in [0,n) excluding
// the given skip set, in fixed order.
func dataDeviceOrder(n int, skip ...int) []int {
	skipSet := make(map[int]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}
	order := make([]int, 0, n-len(skip))
	for i := 0; i < n; i++ {
		if !skipSet[i] {
			order = append(order, i)
		}
	}
	return order
}

// maxLen returns the length of the longest chunk in the slice.
func maxLen(chunks [][]byte) int {
	m := 0
	for _, c := range chunks {
		if len(c) > m {
			m = len(c)
		}
	}
	return m
}
