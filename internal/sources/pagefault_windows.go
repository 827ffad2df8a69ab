//go:build windows

package sources

import "entropid/internal/source"

// PageFault is gated unavailable on windows: the mmap/munmap stimulus is
// grounded on unix.Mmap (golang.org/x/sys/unix), which the teacher's own
// platform split (internal/security/file_windows.go) shows has no direct
// analog worth replicating without a VirtualAlloc-specific rewrite.
type PageFault struct{}

func NewPageFault() *PageFault { return &PageFault{} }

func (s *PageFault) Info() source.Info {
	return source.Info{
		Name:        "page_fault",
		Description: "Page allocator and zero-fill fragmentation timing from mmap/touch/munmap cycles",
		Category:    source.CategoryIO,
		Platform:    source.PlatformAny,
	}
}

func (s *PageFault) Available() bool                { return false }
func (s *PageFault) Collect(n int) ([]byte, error)   { return nil, nil }
