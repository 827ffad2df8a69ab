//go:build linux

package sources

import (
	"golang.org/x/sys/unix"

	"entropid/internal/source"
	"entropid/internal/timing"
)

// KqueueEvents is the Linux analog of the Darwin kqueue family: epoll event
// multiplexing over a timerfd plays the same role kqueue timers play on
// Darwin, exercising the kernel's epoll readiness-list lock shared with
// every other epoll consumer on the host.
type KqueueEvents struct{}

func NewKqueueEvents() *KqueueEvents { return &KqueueEvents{} }

func (s *KqueueEvents) Info() source.Info {
	return source.Info{
		Name:        "kqueue_events",
		Description: "Epoll readiness-list contention timing from timerfd event multiplexing",
		Physics: "Arming a timerfd on an epoll instance and timing its delivery exercises " +
			"the kernel's epoll readiness list and wakeup path, shared with every other " +
			"epoll consumer scheduled on the host.",
		Category:            source.CategoryIPC,
		Platform:            source.PlatformLinux,
		EntropyRateEstimate: 1500,
	}
}

func (s *KqueueEvents) Available() bool {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return false
	}
	unix.Close(epfd)
	return true
}

func (s *KqueueEvents) Collect(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(epfd)

	tfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(tfd)

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, tfd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(tfd)}); err != nil {
		return nil, err
	}

	rawCount := n*4 + 64
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	events := make([]unix.EpollEvent, 1)
	for i := 0; i < rawCount; i++ {
		spec := &unix.ItimerSpec{
			Value: unix.NsecToTimespec(50_000),
		}
		if err := unix.TimerfdSettime(tfd, 0, spec, nil); err != nil {
			timings = append(timings, timing.Now())
			continue
		}
		_, _ = unix.EpollWait(epfd, events, 10)
		timings = append(timings, timing.Now())
	}
	return timing.Extract(timings, n), nil
}
