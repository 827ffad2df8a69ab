// Package sources implements the concrete physical entropy harvesting
// families from spec §4.3: each type satisfies source.EntropySource by
// driving a hardware or OS stimulus, timestamping it with internal/timing's
// monotone counter, and reducing the resulting vector through one of
// internal/timing's extractors. None of these types whiten or hash their own
// output -- that is the conditioning gateway's job (internal/conditioning),
// consumed exclusively through internal/pool.
//
// Oversampling ratios follow the originating prototype: 4x+64 headroom for
// LSB extraction, 8x+128 for Von Neumann debiasing (which discards equal
// delta pairs and yields at most one bit per pair).
package sources

import "entropid/internal/source"

// All returns a constructor for every source family compiled into this
// binary, in registration order. Platform- or tool-specific families
// self-gate through Available(); Registry.Refresh in internal/source filters
// by Info().Platform first and Available() second, then sorts by name.
func All() []func() source.EntropySource {
	return []func() source.EntropySource{
		func() source.EntropySource { return NewDRAMRowBuffer() },
		func() source.EntropySource { return NewCacheContention() },
		func() source.EntropySource { return NewPageFault() },
		func() source.EntropySource { return NewSpeculativeExec() },
		func() source.EntropySource { return NewThreadLifecycle() },
		func() source.EntropySource { return NewPipeBuffer() },
		func() source.EntropySource { return NewTLBShootdown() },
		func() source.EntropySource { return NewKqueueEvents() },
		func() source.EntropySource { return NewDispatchQueue() },
		func() source.EntropySource { return NewGPUDivergence() },
		func() source.EntropySource { return NewAMXTiming() },
		func() source.EntropySource { return NewMachIPC() },
		func() source.EntropySource { return NewKeychainRoundTrip() },
		func() source.EntropySource { return NewCosmicMuon() },
		func() source.EntropySource { return NewRadioactiveDecay() },
		func() source.EntropySource { return NewDyldMdls() },
		func() source.EntropySource { return NewTPMRandom() },
	}
}
