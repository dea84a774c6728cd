package raid

import (
	"bytes"
	"testing"
)

func TestGFMultiplyIdentity(t *testing.T) {
	for a := 0; a < 256; a++ {
		got := gfMultiply(byte(a), 1)
		if got != byte(a) {
			t.Fatalf("gfMultiply(%d, 1) = %d, want %d", a, got, a)
		}
	}
}

func TestGFMultiplyZero(t *testing.T) {
	if got := gfMultiply(200, 0); got != 0 {
		t.Fatalf("gfMultiply(200, 0) = %d, want 0", got)
	}
}

func TestGFInverseRoundTrip(t *testing.T) {
	for a := 1; a < 256; a++ {
		inv := gfInverse(byte(a))
		if got := gfMultiply(byte(a), inv); got != 1 {
			t.Fatalf("a=%d: a * a^-1 = %d, want 1", a, got)
		}
	}
}

func TestGFPowMatchesRepeatedMultiply(t *testing.T) {
	a := byte(0x57)
	want := byte(1)
	for i := 0; i < 10; i++ {
		if got := gfPow(a, i); got != want {
			t.Fatalf("gfPow(0x57, %d) = %#x, want %#x", i, got, want)
		}
		want = gfMultiply(want, a)
	}
}

func TestXORParitySingleErasureRecovers(t *testing.T) {
	data := [][]byte{
		[]byte("AAAA"),
		[]byte("BBBB"),
		[]byte("CCCC"),
	}
	p := computeParityP(4, data)

	missing := 1
	withGap := append([][]byte(nil), data...)
	withGap[missing] = nil
	recovered := recoverSingleErasure(4, withGap, missing, p, nil, true, false)
	if !bytes.Equal(recovered, data[missing]) {
		t.Fatalf("recovered = %q, want %q", recovered, data[missing])
	}
}

func TestQParitySingleErasureRecoversWhenPDead(t *testing.T) {
	data := [][]byte{
		[]byte("AAAA"),
		[]byte("BBBB"),
		[]byte("CCCC"),
	}
	q := computeParityQ(4, data)

	missing := 2
	withGap := append([][]byte(nil), data...)
	withGap[missing] = nil
	recovered := recoverSingleErasure(4, withGap, missing, nil, q, false, true)
	if !bytes.Equal(recovered, data[missing]) {
		t.Fatalf("recovered = %q, want %q", recovered, data[missing])
	}
}

func TestDoubleErasureRecovers(t *testing.T) {
	data := [][]byte{
		[]byte("AAAA"),
		[]byte("BBBB"),
		[]byte("CCCC"),
		[]byte("DDDD"),
	}
	p := computeParityP(4, data)
	q := computeParityQ(4, data)

	aIdx, bIdx := 0, 3
	withGaps := append([][]byte(nil), data...)
	withGaps[aIdx] = nil
	withGaps[bIdx] = nil

	recoveredA, recoveredB := recoverDoubleErasure(4, withGaps, aIdx, bIdx, p, q)
	if !bytes.Equal(recoveredA, data[aIdx]) {
		t.Fatalf("recoveredA = %q, want %q", recoveredA, data[aIdx])
	}
	if !bytes.Equal(recoveredB, data[bIdx]) {
		t.Fatalf("recoveredB = %q, want %q", recoveredB, data[bIdx])
	}
}
