package sources

import (
	"entropid/internal/source"
	"entropid/internal/timing"
)

// DispatchQueue times MPSC worker dispatch latency: a pool of worker
// goroutines pulls jobs from a shared channel and timestamps each pickup; the
// intervals between successive pickups reflect OS scheduler jitter deciding
// which worker runs next. Submission times are not recorded.
type DispatchQueue struct{}

func NewDispatchQueue() *DispatchQueue { return &DispatchQueue{} }

func (s *DispatchQueue) Info() source.Info {
	return source.Info{
		Name:        "dispatch_queue",
		Description: "MPSC worker dispatch latency from OS scheduler jitter",
		Physics: "Submitting jobs to a shared channel drained by a small worker pool and " +
			"timing the intervals between pickups captures scheduler jitter in deciding which " +
			"worker goroutine (and which OS thread) runs next.",
		Category:            source.CategoryScheduling,
		Platform:            source.PlatformAny,
		EntropyRateEstimate: 1000,
	}
}

func (s *DispatchQueue) Available() bool { return true }

const dispatchWorkers = 4

func (s *DispatchQueue) Collect(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	rawCount := n*4 + 64

	jobs := make(chan int, rawCount)
	picked := make(chan uint64, rawCount)

	for w := 0; w < dispatchWorkers; w++ {
		go func() {
			for range jobs {
				picked <- timing.Now()
			}
		}()
	}
	go func() {
		for i := 0; i < rawCount; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	for i := 0; i < rawCount; i++ {
		timings = append(timings, <-picked)
	}
	return timing.Extract(timings, n), nil
}
