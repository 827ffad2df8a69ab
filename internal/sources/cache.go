package sources

import (
	"entropid/internal/source"
	"entropid/internal/timing"
)

// CacheContention alternates sequential and random reads over an 8MB region,
// large enough to exceed typical L2 but compete for shared last-level cache
// state with every other process on the machine.
type CacheContention struct {
	lcg uint64
}

const cacheRegionBytes = 8 * 1024 * 1024

func NewCacheContention() *CacheContention { return &CacheContention{lcg: timing.Now() | 3} }

func (s *CacheContention) Info() source.Info {
	return source.Info{
		Name:        "cache_contention",
		Description: "Shared last-level cache contention from alternating sequential/random access",
		Physics: "Alternating sequential and randomized reads over a region sized to spill " +
			"out of private caches compete for last-level cache lines with every other " +
			"process; per-access latency reflects that shared, externally driven state.",
		Category:            source.CategoryMicroarch,
		Platform:            source.PlatformAny,
		EntropyRateEstimate: 3000,
	}
}

func (s *CacheContention) Available() bool { return true }

func (s *CacheContention) Collect(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	rawCount := n*4 + 64
	buf := make([]byte, cacheRegionBytes)
	for i := range buf {
		buf[i] = byte(i)
	}
	words := len(buf)
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	acc := byte(0)
	for i := 0; i < rawCount; i++ {
		var idx int
		if i%2 == 0 {
			idx = (i * 977) % words
		} else {
			s.lcg = s.lcg*6364136223846793005 + 1442695040888963407
			idx = int((s.lcg >> 20) % uint64(words))
		}
		acc ^= buf[idx]
		timings = append(timings, timing.Now())
	}
	if acc == 0xFF {
		timings[0]++
	}
	return timing.Extract(timings, n), nil
}
