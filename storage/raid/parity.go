package raid

// Parity arithmetic (normative, per the redundancy engine's external wire
// contract): XOR across bytes of equal index for single parity; GF(2^8)
// with irreducible polynomial 0x11B for the Q parity used by dual-parity
// levels. The Q coefficient for data chunk i is i+1, a generator ordering
// any two independent implementations can agree on.

// gfMultiply multiplies two bytes in GF(2^8) using russian-peasant
// multiplication, reducing by the polynomial 0x1B on overflow (the low byte
// of the irreducible polynomial 0x11B = x^8+x^4+x^3+x+1).
func gfMultiply(a, b byte) byte {
	var result byte
	for i := 0; i < 8; i++ {
		if b&1 != 0 {
			result ^= a
		}
		hiBitSet := a&0x80 != 0
		a <<= 1
		if hiBitSet {
			a ^= 0x1B
		}
		b >>= 1
	}
	return result
}

// gfPow raises a to the given non-negative exponent in GF(2^8).
func gfPow(a byte, exp int) byte {
	result := byte(1)
	base := a
	for exp > 0 {
		if exp&1 != 0 {
			result = gfMultiply(result, base)
		}
		base = gfMultiply(base, base)
		exp >>= 1
	}
	return result
}

// gfInverse returns the multiplicative inverse of a non-zero element:
// a^254 = a^-1 since every non-zero element of GF(2^8) satisfies a^255 = 1.
func gfInverse(a byte) byte {
	if a == 0 {
		return 0
	}
	return gfPow(a, 254)
}

// gfDivide computes a / b in GF(2^8).
func gfDivide(a, b byte) byte {
	return gfMultiply(a, gfInverse(b))
}

// qCoefficient returns the Q-parity coefficient for data chunk index i.
func qCoefficient(i int) byte {
	return byte((i + 1) % 256)
}

// xorBytes XORs equal-index bytes of chunks, treating any chunk shorter
// than length (including a nil chunk, for a missing participant) as padded
// with logical zeros. The result has the given length.
func xorBytes(length int, chunks ...[]byte) []byte {
	result := make([]byte, length)
	for _, chunk := range chunks {
		n := len(chunk)
		if n > length {
			n = length
		}
		for i := 0; i < n; i++ {
			result[i] ^= chunk[i]
		}
	}
	return result
}

// computeParityP computes the XOR parity of a set of data chunks.
func computeParityP(length int, dataChunks [][]byte) []byte {
	return xorBytes(length, dataChunks...)
}

// computeParityQ computes the GF(2^8) weighted parity of a set of data
// chunks: Q = sum_i coeff(i) * data[i], with missing bytes treated as zero.
func computeParityQ(length int, dataChunks [][]byte) []byte {
	q := make([]byte, length)
	for i, chunk := range dataChunks {
		coeff := qCoefficient(i)
		n := len(chunk)
		if n > length {
			n = length
		}
		for j := 0; j < n; j++ {
			q[j] ^= gfMultiply(coeff, chunk[j])
		}
	}
	return q
}

// recoverSingleErasure reconstructs one missing data chunk at index
// missingIdx given the other data chunks and whichever parity survived.
// pAlive takes priority (cheap XOR); otherwise the Q equation is solved.
func recoverSingleErasure(length int, dataChunks [][]byte, missingIdx int, p, q []byte, pAlive, qAlive bool) []byte {
	known := make([][]byte, 0, len(dataChunks))
	for i, chunk := range dataChunks {
		if i == missingIdx {
			continue
		}
		known = append(known, chunk)
	}

	if pAlive {
		return xorBytes(length, append(known, p)...)
	}

	// Q = sum coeff(i)*data[i]; isolate the missing term and divide by its
	// coefficient.
	partial := make([]byte, length)
	for i, chunk := range dataChunks {
		if i == missingIdx {
			continue
		}
		coeff := qCoefficient(i)
		n := len(chunk)
		if n > length {
			n = length
		}
		for j := 0; j < n; j++ {
			partial[j] ^= gfMultiply(coeff, chunk[j])
		}
	}
	remainder := xorBytes(length, q, partial)
	coeff := qCoefficient(missingIdx)
	result := make([]byte, length)
	for j := range result {
		result[j] = gfDivide(remainder[j], coeff)
	}
	_ = qAlive // qAlive is implied true in this branch (pAlive is false and recovery is still possible)
	return result
}

// recoverDoubleErasure reconstructs two missing data chunks at indices a
// and b given both parities. It solves the 2x2 GF(2^8) linear system:
//
//	x_a + x_b             = P'   (P contribution of the two unknowns)
//	coeff_a*x_a + coeff_b*x_b = Q'
//
// where P' and Q' are P and Q with the known data chunks' contributions
// removed.
func recoverDoubleErasure(length int, dataChunks [][]byte, aIdx, bIdx int, p, q []byte) (recoveredA, recoveredB []byte) {
	known := make([][]byte, 0, len(dataChunks))
	pPartial := make([]byte, length)
	qPartial := make([]byte, length)
	for i, chunk := range dataChunks {
		if i == aIdx || i == bIdx {
			continue
		}
		known = append(known, chunk)
		coeff := qCoefficient(i)
		n := len(chunk)
		if n > length {
			n = length
		}
		for j := 0; j < n; j++ {
			qPartial[j] ^= gfMultiply(coeff, chunk[j])
		}
	}
	pPartial = xorBytes(length, known...)

	pPrime := xorBytes(length, p, pPartial)
	qPrime := xorBytes(length, q, qPartial)

	coeffA := qCoefficient(aIdx)
	coeffB := qCoefficient(bIdx)
	denom := coeffA ^ coeffB // GF(2^8) subtraction is XOR

	recoveredA = make([]byte, length)
	recoveredB = make([]byte, length)
	for j := 0; j < length; j++ {
		numerator := qPrime[j] ^ gfMultiply(coeffB, pPrime[j])
		xa := gfDivide(numerator, denom)
		xb := pPrime[j] ^ xa
		recoveredA[j] = xa
		recoveredB[j] = xb
	}
	return recoveredA, recoveredB
}
