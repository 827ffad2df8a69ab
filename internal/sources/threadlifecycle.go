package sources

import (
	"sync"

	"entropid/internal/source"
	"entropid/internal/timing"
)

// ThreadLifecycle times spawn+join of tiny goroutine workloads. Go has no
// direct pthread_create analog, but the runtime scheduler's core/P selection
// and the allocator's per-goroutine stack/zone bookkeeping are the portable
// equivalent of the physics this family targets: scheduler placement
// decisions and allocator state this process does not control.
type ThreadLifecycle struct{}

func NewThreadLifecycle() *ThreadLifecycle { return &ThreadLifecycle{} }

func (s *ThreadLifecycle) Info() source.Info {
	return source.Info{
		Name:        "thread_lifecycle",
		Description: "Goroutine spawn/join timing from scheduler placement and allocator state",
		Physics: "Spawning and joining a tiny workload repeatedly exercises the runtime " +
			"scheduler's core/P selection and the per-goroutine allocator zone, both of " +
			"which are perturbed by every other goroutine and OS thread on the machine.",
		Category:            source.CategoryScheduling,
		Platform:            source.PlatformAny,
		EntropyRateEstimate: 1000,
	}
}

func (s *ThreadLifecycle) Available() bool { return true }

func (s *ThreadLifecycle) Collect(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	rawCount := n*4 + 64
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	for i := 0; i < rawCount; i++ {
		var wg sync.WaitGroup
		wg.Add(1)
		acc := 0
		go func() {
			defer wg.Done()
			for j := 0; j < 64; j++ {
				acc += j
			}
		}()
		wg.Wait()
		timings = append(timings, timing.Now())
	}
	return timing.Extract(timings, n), nil
}
