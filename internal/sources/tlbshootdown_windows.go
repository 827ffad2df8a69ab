//go:build windows

package sources

import "entropid/internal/source"

// TLBShootdown is gated unavailable on windows: grounded on unix.Mprotect,
// which has no wired equivalent in this module's dependency set.
type TLBShootdown struct{}

func NewTLBShootdown() *TLBShootdown { return &TLBShootdown{} }

func (s *TLBShootdown) Info() source.Info {
	return source.Info{
		Name:        "tlb_shootdown",
		Description: "Cross-core TLB shootdown IPI latency from variable-span mprotect calls",
		Category:    source.CategoryMicroarch,
		Platform:    source.PlatformAny,
	}
}

func (s *TLBShootdown) Available() bool              { return false }
func (s *TLBShootdown) Collect(n int) ([]byte, error) { return nil, nil }
