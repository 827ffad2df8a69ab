package sources

import (
	"runtime"

	"entropid/internal/source"
	"entropid/internal/timing"
)

// AMXTiming is a portable proxy for the Apple AMX coprocessor family in
// §4.3: the original dispatches Accelerate-framework sgemm calls across
// varied matrix sizes and Von-Neumann-debiases the result (H∞ 0.379 vs
// Shannon 6.985 raw, per the prototype's own measurement). This module's
// dependency set has no cgo Accelerate/cblas binding, so the matrix
// multiplies run in pure Go; the timing jitter comes from cache/pipeline
// occupancy of the ordinary float64 FPU path rather than a dedicated
// coprocessor (see DESIGN.md), but the varied-size-plus-interleaved-memory-
// op shape and the Von Neumann debiasing are preserved exactly as specified.
type AMXTiming struct{}

func NewAMXTiming() *AMXTiming { return &AMXTiming{} }

func (s *AMXTiming) Info() source.Info {
	return source.Info{
		Name:        "amx_timing",
		Description: "Matrix-multiply pipeline timing jitter, Von-Neumann debiased",
		Physics: "Varied-size matrix multiplications interleaved with memory operations to " +
			"disrupt pipeline steady state, debiased with the Von Neumann rule to correct " +
			"the heavy LSB bias this family exhibits undebiased.",
		Category:            source.CategorySilicon,
		Platform:            source.PlatformAny,
		Requirements:        []string{"amd64_or_arm64"},
		EntropyRateEstimate: 2500,
	}
}

func (s *AMXTiming) Available() bool {
	return runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"
}

var amxMatrixSizes = []int{4, 8, 12, 16}

func (s *AMXTiming) Collect(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	rawCount := n*8 + 128
	scratch := make([]byte, 65536)
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	for i := 0; i < rawCount; i++ {
		size := amxMatrixSizes[i%len(amxMatrixSizes)]
		matmulJitter(size)
		for j := 0; j < len(scratch); j += 4096 {
			scratch[j] ^= byte(i)
		}
		timings = append(timings, timing.Now())
	}
	out := timing.VonNeumannDebias(timings)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func matmulJitter(size int) float64 {
	a := make([]float64, size*size)
	b := make([]float64, size*size)
	c := make([]float64, size*size)
	for i := range a {
		a[i] = float64(i%7) + 0.5
		b[i] = float64(i%5) + 0.25
	}
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			var sum float64
			for k := 0; k < size; k++ {
				sum += a[i*size+k] * b[k*size+j]
			}
			c[i*size+j] = sum
		}
	}
	return c[0]
}
