//go:build unix

package sources

import (
	"golang.org/x/sys/unix"

	"entropid/internal/source"
	"entropid/internal/timing"
)

// TLBShootdown times mprotect calls across variable page spans of a single
// mapped region. On multi-core systems a protection change must be
// propagated to every core's TLB via an inter-processor interrupt; the
// latency of that propagation depends on what else is running on the other
// cores at the moment of the call.
type TLBShootdown struct {
	region []byte
}

const tlbRegionPages = 64

func NewTLBShootdown() *TLBShootdown { return &TLBShootdown{} }

func (s *TLBShootdown) Info() source.Info {
	return source.Info{
		Name:        "tlb_shootdown",
		Description: "Cross-core TLB shootdown IPI latency from variable-span mprotect calls",
		Physics: "Changing page protection on a live mapping requires the kernel to " +
			"invalidate that range's translation on every core via inter-processor " +
			"interrupt; how long that propagation takes depends on each core's current " +
			"workload, which this process cannot observe directly.",
		Category:            source.CategoryMicroarch,
		Platform:            source.PlatformAny,
		EntropyRateEstimate: 800,
	}
}

func (s *TLBShootdown) Available() bool { return true }

func (s *TLBShootdown) Collect(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	pageSize := unix.Getpagesize()
	region, err := unix.Mmap(-1, 0, tlbRegionPages*pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	defer unix.Munmap(region)

	rawCount := n*4 + 64
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	for i := 0; i < rawCount; i++ {
		spanPages := 1 + (i % tlbRegionPages)
		span := region[:spanPages*pageSize]
		if err := unix.Mprotect(span, unix.PROT_READ); err != nil {
			timings = append(timings, timing.Now())
			continue
		}
		_ = unix.Mprotect(span, unix.PROT_READ|unix.PROT_WRITE)
		timings = append(timings, timing.Now())
	}
	return timing.Extract(timings, n), nil
}
