package battery

import (
	"math"

	"golang.org/x/crypto/blake2b"
)

// Blake2bAvalancheDiagnostic is not one of the 31 counted battery tests: it
// is a diagnostic check of how much a single input-bit flip perturbs a
// BLAKE2b digest of fixed-size chunks of data, run only when a caller
// explicitly asks for it (the conditioning gateway never uses BLAKE2b --
// SHA-256 counter-mode chaining is its only hash-based mode). An ideal
// cryptographic mix flips close to half the output bits per single input-bit
// flip; this flags chunks that land far from that, which the 31-test battery
// itself has no equivalent for since it only ever looks at the harvested
// bytes, never at a hash of them.
func Blake2bAvalancheDiagnostic(data []byte) Result {
	const name = "BLAKE2b Avalanche"
	const chunkSize = 64
	if len(data) < chunkSize*8 {
		return insufficient(name, chunkSize*8, len(data))
	}

	var totalDiffBits, chunks uint64
	for off := 0; off+chunkSize <= len(data); off += chunkSize {
		chunk := make([]byte, chunkSize)
		copy(chunk, data[off:off+chunkSize])

		base := blake2b.Sum256(chunk)
		chunk[0] ^= 0x01 // flip the low bit of the first byte
		flipped := blake2b.Sum256(chunk)

		diff := 0
		for i := range base {
			diff += popcount(base[i] ^ flipped[i])
		}
		totalDiffBits += uint64(diff)
		chunks++
	}

	meanDiffBits := float64(totalDiffBits) / float64(chunks)
	const outputBits = 256.0
	expected := outputBits / 2
	// Binomial(256, 0.5) standard deviation, averaged over `chunks` trials.
	std := math.Sqrt(outputBits*0.25/float64(chunks))
	if std == 0 {
		std = 1
	}
	z := math.Abs(meanDiffBits-expected) / std
	p := 2 * (1 - normalCDF(z))
	return withP(name, meanDiffBits, p, "mean output bits flipped per single input-bit flip, BLAKE2b-256 over 64-byte chunks")
}
