package sources

import (
	"entropid/internal/source"
	"entropid/internal/timing"
)

// SpeculativeExec perturbs the branch predictor with data-dependent
// branches driven by an LCG, so mispredict/recovery latency reflects branch
// history accumulated globally across the core rather than anything local
// to this goroutine.
type SpeculativeExec struct {
	lcg uint64
}

func NewSpeculativeExec() *SpeculativeExec { return &SpeculativeExec{lcg: timing.Now() | 5} }

func (s *SpeculativeExec) Info() source.Info {
	return source.Info{
		Name:        "speculative_exec",
		Description: "Branch predictor perturbation timing from data-dependent LCG branches",
		Physics: "Data-dependent branches whose direction is driven by an LCG stream exercise " +
			"the core's branch predictor tables, which accumulate history from every thread " +
			"scheduled on that core; misprediction recovery latency is externally influenced.",
		Category:            source.CategoryMicroarch,
		Platform:            source.PlatformAny,
		EntropyRateEstimate: 2000,
	}
}

func (s *SpeculativeExec) Available() bool { return true }

func (s *SpeculativeExec) Collect(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	rawCount := n*4 + 64
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	acc := uint64(0)
	for i := 0; i < rawCount; i++ {
		s.lcg = s.lcg*6364136223846793005 + 1442695040888963407
		v := s.lcg
		// Data-dependent branch chain: direction depends on unpredictable
		// low bits of a fresh LCG draw each iteration.
		if v&1 == 0 {
			acc += v >> 3
		} else {
			acc ^= v >> 5
		}
		if v&2 == 0 {
			acc -= v >> 7
		} else {
			acc += v << 1
		}
		timings = append(timings, timing.Now())
	}
	if acc == 0 {
		timings[0]++
	}
	return timing.Extract(timings, n), nil
}
