//go:build darwin

package sources

import (
	"net"
	"time"

	"golang.org/x/sys/unix"

	"entropid/internal/source"
	"entropid/internal/timing"
)

// KqueueEvents arms one-shot timer events on a kqueue, one at a time, and
// timestamps each kevent return. That latency reflects knote-lock and
// dispatch contention with every other kqueue-based consumer on the host
// (Grand Central Dispatch is itself kqueue-backed on Darwin). Only
// EVFILT_TIMER events are armed; no socket readiness events are registered.
type KqueueEvents struct{}

func NewKqueueEvents() *KqueueEvents { return &KqueueEvents{} }

func (s *KqueueEvents) Info() source.Info {
	return source.Info{
		Name:        "kqueue_events",
		Description: "Knote-lock and dispatch contention timing from kqueue event multiplexing",
		Physics: "Arming one-shot timer events on a kqueue and timing their " +
			"delivery exercises the kernel's knote lock and dispatch path, shared with " +
			"every other kqueue consumer on the host, notably Grand Central Dispatch.",
		Category:            source.CategoryIPC,
		Platform:            source.PlatformDarwin,
		EntropyRateEstimate: 1500,
	}
}

func (s *KqueueEvents) Available() bool {
	kq, err := unix.Kqueue()
	if err != nil {
		return false
	}
	unix.Close(kq)
	return true
}

func (s *KqueueEvents) Collect(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	defer unix.Close(kq)

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	rawCount := n*4 + 64
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	for i := 0; i < rawCount; i++ {
		changes := []unix.Kevent_t{{
			Ident:  0,
			Filter: unix.EVFILT_TIMER,
			Flags:  unix.EV_ADD | unix.EV_ONESHOT,
			Data:   1,
		}}
		events := make([]unix.Kevent_t, 1)
		ts := unix.NsecToTimespec((50 * time.Microsecond).Nanoseconds())
		_, err := unix.Kevent(kq, changes, events, &ts)
		if err != nil {
			timings = append(timings, timing.Now())
			continue
		}
		timings = append(timings, timing.Now())
	}
	return timing.Extract(timings, n), nil
}
