package sources

import (
	"os"

	"entropid/internal/source"
	"entropid/internal/timing"
)

// PipeBuffer times open/write/read/close cycles on OS pipes, so latency
// reflects pipe-zone allocator and kernel buffer contention shared with every
// other process opening pipes concurrently. Each cycle opens one fresh pipe
// with blocking I/O; pipes are not pooled or reused across cycles.
type PipeBuffer struct{}

func NewPipeBuffer() *PipeBuffer { return &PipeBuffer{} }

func (s *PipeBuffer) Info() source.Info {
	return source.Info{
		Name:        "pipe_buffer",
		Description: "Pipe-zone allocator contention timing from multi-pipe write/read churn",
		Physics: "Repeated open/write/read/close cycles, each on a freshly created pipe, " +
			"contend for the kernel's pipe buffer zone allocator, whose state is shared " +
			"across every process creating and tearing down pipes concurrently.",
		Category:            source.CategoryIPC,
		Platform:            source.PlatformAny,
		EntropyRateEstimate: 1200,
	}
}

func (s *PipeBuffer) Available() bool { return true }

const pipePoolSize = 4

func (s *PipeBuffer) Collect(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	rawCount := n*4 + 64
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	payload := []byte("entropid-pipe-probe")
	for i := 0; i < rawCount; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			timings = append(timings, timing.Now())
			continue
		}
		_, _ = w.Write(payload)
		buf := make([]byte, len(payload))
		_, _ = r.Read(buf)
		_ = w.Close()
		_ = r.Close()
		timings = append(timings, timing.Now())
	}
	return timing.Extract(timings, n), nil
}
