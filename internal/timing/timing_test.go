package timing

import "testing"

func TestNowMonotonicDistinctCalls(t *testing.T) {
	a := Now()
	b := Now()
	if b < a {
		t.Errorf("Now() went backwards: a=%d b=%d", a, b)
	}
}

func TestExtractLengthBound(t *testing.T) {
	timings := []uint64{100, 205, 300, 410, 500, 620, 700}
	for _, n := range []int{0, 1, 3, 100} {
		out := Extract(timings, n)
		if len(out) > n {
			t.Errorf("Extract(n=%d) = %d bytes, want <= %d", n, len(out), n)
		}
	}
}

func TestExtractTooFewTimings(t *testing.T) {
	if out := Extract([]uint64{1, 2}, 8); out != nil {
		t.Errorf("Extract with < 3 timings = %v, want nil", out)
	}
}

func TestExtractVarianceLengthBound(t *testing.T) {
	timings := []uint64{100, 150, 220, 310, 420, 550, 700, 870}
	for _, n := range []int{0, 1, 4, 100} {
		out := ExtractVariance(timings, n)
		if len(out) > n {
			t.Errorf("ExtractVariance(n=%d) = %d bytes, want <= %d", n, len(out), n)
		}
	}
}

func TestExtractVarianceTooFewTimings(t *testing.T) {
	if out := ExtractVariance([]uint64{1, 2, 3}, 8); out != nil {
		t.Errorf("ExtractVariance with < 4 timings = %v, want nil", out)
	}
}

func TestVonNeumannDebiasTooFewTimings(t *testing.T) {
	if out := VonNeumannDebias([]uint64{1, 2}); out != nil {
		t.Errorf("VonNeumannDebias with < 3 timings = %v, want nil", out)
	}
}

func TestVonNeumannDebiasEqualDeltasDiscarded(t *testing.T) {
	// Constant stride -> every delta pair is equal -> every pair discarded.
	timings := []uint64{0, 10, 20, 30, 40, 50, 60, 70}
	if out := VonNeumannDebias(timings); out != nil {
		t.Errorf("VonNeumannDebias(constant stride) = %v, want nil", out)
	}
}

// TestPackBitsMSBDropsIncompleteTrailingGroup is the regression test for the
// zero-padding bug in the timing package's bit packer: a bit count that
// isn't a multiple of 8 must drop the remainder instead of padding it with
// zero bits, which would otherwise inject a predictable, biased suffix.
func TestPackBitsMSBDropsIncompleteTrailingGroup(t *testing.T) {
	bits := []bool{true, true, true, true, true, true, true, true, true} // 9 bits: 1 full byte + 1 leftover
	out := packBitsMSB(bits)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1 (trailing incomplete group must be dropped, not padded)", len(out))
	}
	if out[0] != 0xFF {
		t.Errorf("out[0] = %08b, want 11111111", out[0])
	}
}

func TestPackBitsMSBExactMultiple(t *testing.T) {
	bits := []bool{true, false, true, false, true, false, true, false}
	out := packBitsMSB(bits)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0] != 0b10101010 {
		t.Errorf("out[0] = %08b, want 10101010", out[0])
	}
}

func TestPackBitsMSBEmpty(t *testing.T) {
	if out := packBitsMSB(nil); out != nil {
		t.Errorf("packBitsMSB(nil) = %v, want nil", out)
	}
	if out := packBitsMSB([]bool{true, false, true}); out != nil {
		t.Errorf("packBitsMSB(< 8 bits) = %v, want nil", out)
	}
}

func TestVonNeumannDebiasProducesExpectedBits(t *testing.T) {
	// Build 16 delta pairs that strictly increase (a < b -> bit 1) so every
	// pair survives and yields exactly 2 output bytes.
	timings := make([]uint64, 0, 33)
	var t0 uint64
	timings = append(timings, t0)
	for i := 0; i < 32; i++ {
		if i%2 == 0 {
			t0 += 5 // first half of pair: small delta
		} else {
			t0 += 50 // second half of pair: larger delta -> a < b -> bit 1
		}
		timings = append(timings, t0)
	}
	out := VonNeumannDebias(timings)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0] != 0xFF || out[1] != 0xFF {
		t.Errorf("out = %08b %08b, want all-1 bytes", out[0], out[1])
	}
}
