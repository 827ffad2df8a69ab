package sources

import (
	"sync"
	"sync/atomic"

	"entropid/internal/source"
	"entropid/internal/timing"
)

// GPUDivergence is a portable proxy for the Metal compute-shader family in
// §4.3: the original dispatches a shader where many GPU threads race to
// atomic_fetch_add with data-dependent branches and reads back the order
// vector. This module's dependency set carries no cgo Metal binding, so the
// stimulus is reproduced with goroutines racing an atomic counter with the
// same data-dependent branch shape -- the CPU scheduler's thread-assignment
// nondeterminism stands in for the GPU's SIMD scheduling and atomic
// ordering (see DESIGN.md).
type GPUDivergence struct{}

func NewGPUDivergence() *GPUDivergence { return &GPUDivergence{} }

func (s *GPUDivergence) Info() source.Info {
	return source.Info{
		Name:        "gpu_divergence",
		Description: "SIMD-scheduling-analog atomic race order timing (goroutine proxy for Metal compute divergence)",
		Physics: "Many concurrent workers race to increment a shared atomic counter with " +
			"data-dependent branches; the order in which the scheduler lets each worker " +
			"win is influenced by core assignment and contention this process does not " +
			"control, analogous to GPU SIMD-lane divergence and atomic ordering.",
		Category:            source.CategoryGPU,
		Platform:            source.PlatformAny,
		EntropyRateEstimate: 1800,
	}
}

func (s *GPUDivergence) Available() bool { return true }

const gpuDivergenceWorkers = 32

func (s *GPUDivergence) Collect(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	rawCount := n*4 + 64
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	for round := 0; round < rawCount; round++ {
		var counter int64
		var wg sync.WaitGroup
		wg.Add(gpuDivergenceWorkers)
		for w := 0; w < gpuDivergenceWorkers; w++ {
			go func(id int) {
				defer wg.Done()
				if id%2 == 0 {
					atomic.AddInt64(&counter, 1)
				} else {
					atomic.AddInt64(&counter, 2)
				}
			}(w)
		}
		wg.Wait()
		timings = append(timings, timing.Now())
	}
	return timing.Extract(timings, n), nil
}
