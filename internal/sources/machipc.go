package sources

import (
	"net"
	"runtime"

	"entropid/internal/source"
	"entropid/internal/timing"
)

// MachIPC is a portable proxy for the Mach IPC family in §4.3: the original
// sends complex out-of-line messages across a pool of Mach ports with a
// drain thread. This module's dependency set has no cgo Mach binding, so
// the stimulus is reproduced with a pool of in-process net.Pipe pairs, each
// drained by a goroutine, gated to Darwin -- the port-namespace and VM-remap
// physics becomes one-way write and goroutine handoff timing instead (see
// DESIGN.md). Messages are only written and drained; no reply is timed.
type MachIPC struct{}

func NewMachIPC() *MachIPC { return &MachIPC{} }

func (s *MachIPC) Info() source.Info {
	return source.Info{
		Name:        "mach_ipc",
		Description: "Port-pool IPC write timing (in-process pipe proxy for Mach OOL messaging)",
		Physics: "Writing messages across a pool of in-process pipes drained by " +
			"background goroutines exercises goroutine and scheduler handoff state, " +
			"standing in for the Mach port-namespace and VM-remap contention the " +
			"original family targets.",
		Category:            source.CategoryIPC,
		Platform:            source.PlatformDarwin,
		EntropyRateEstimate: 1500,
	}
}

func (s *MachIPC) Available() bool { return runtime.GOOS == "darwin" }

const machIPCPortPool = 4

func (s *MachIPC) Collect(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	type conn struct{ a, b net.Conn }
	pool := make([]conn, 0, machIPCPortPool)
	for i := 0; i < machIPCPortPool; i++ {
		a, b := net.Pipe()
		pool = append(pool, conn{a, b})
		go func(b net.Conn) {
			buf := make([]byte, 256)
			for {
				if _, err := b.Read(buf); err != nil {
					return
				}
			}
		}(b)
	}
	defer func() {
		for _, c := range pool {
			c.a.Close()
			c.b.Close()
		}
	}()

	msg := make([]byte, 128)
	rawCount := n*4 + 64
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	for i := 0; i < rawCount; i++ {
		c := pool[i%len(pool)]
		_, _ = c.a.Write(msg)
		timings = append(timings, timing.Now())
	}
	return timing.Extract(timings, n), nil
}
