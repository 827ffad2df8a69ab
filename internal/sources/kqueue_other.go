//go:build !linux && !darwin

package sources

import "entropid/internal/source"

// KqueueEvents is gated unavailable outside Linux/Darwin: neither epoll nor
// kqueue has a wired equivalent for other targets in this module.
type KqueueEvents struct{}

func NewKqueueEvents() *KqueueEvents { return &KqueueEvents{} }

func (s *KqueueEvents) Info() source.Info {
	return source.Info{
		Name:        "kqueue_events",
		Description: "Kernel event-multiplexer contention timing",
		Category:    source.CategoryIPC,
		Platform:    source.PlatformAny,
	}
}

func (s *KqueueEvents) Available() bool              { return false }
func (s *KqueueEvents) Collect(n int) ([]byte, error) { return nil, nil }
