//go:build unix

package sources

import (
	"golang.org/x/sys/unix"

	"entropid/internal/source"
	"entropid/internal/timing"
)

// PageFault harvests page-allocator and zero-fill fragmentation timing by
// cycling mmap -> write-touch -> munmap over varying sizes. Transient mmap
// or munmap failures (address space pressure, ulimit) skip that iteration
// per the per-source failure semantics in spec §4.3.
type PageFault struct{}

func NewPageFault() *PageFault { return &PageFault{} }

func (s *PageFault) Info() source.Info {
	return source.Info{
		Name:        "page_fault",
		Description: "Page allocator and zero-fill fragmentation timing from mmap/touch/munmap cycles",
		Physics: "Each mmap->write-touch->munmap cycle forces the kernel's page allocator to " +
			"find, zero-fill, and later reclaim physical pages; the latency depends on " +
			"system-wide fragmentation and concurrent VM pressure from other processes.",
		Category:            source.CategoryIO,
		Platform:            source.PlatformAny,
		EntropyRateEstimate: 1500,
	}
}

func (s *PageFault) Available() bool { return true }

var pageFaultSizes = []int{4096, 8192, 16384, 65536}

func (s *PageFault) Collect(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	rawCount := n*4 + 64
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	for i := 0; i < rawCount; i++ {
		size := pageFaultSizes[i%len(pageFaultSizes)]
		region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			// Transient failure: skip this iteration, keep going.
			timings = append(timings, timing.Now())
			continue
		}
		for j := 0; j < len(region); j += 4096 {
			region[j] = byte(j)
		}
		_ = unix.Munmap(region)
		timings = append(timings, timing.Now())
	}
	return timing.Extract(timings, n), nil
}
