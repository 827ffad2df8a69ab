package sources

import (
	"context"
	"os"
	"os/exec"
	"time"

	"entropid/internal/source"
	"entropid/internal/timing"
)

// DyldMdls times repeated Spotlight metadata (mdls) queries against a
// scratch file, capturing filesystem and metadata-subsystem latency driven
// by Spotlight's background indexer rather than anything this process
// controls. Honors a 2-second wall deadline per query per §4.3's
// subprocess-timeout convention.
type DyldMdls struct{}

func NewDyldMdls() *DyldMdls { return &DyldMdls{} }

func (s *DyldMdls) Info() source.Info {
	return source.Info{
		Name:        "dyld_mdls",
		Description: "Spotlight metadata (mdls) query timing against a scratch file",
		Physics: "Each mdls invocation queries the Spotlight metadata store, whose " +
			"latency reflects the background indexer's current load and filesystem " +
			"cache state system-wide, not just this process's activity.",
		Category:            source.CategorySystem,
		Platform:            source.PlatformDarwin,
		Requirements:        []string{"mdls"},
		EntropyRateEstimate: 300,
	}
}

func (s *DyldMdls) Available() bool {
	_, err := exec.LookPath("mdls")
	return err == nil
}

const mdlsDeadline = 2 * time.Second

func (s *DyldMdls) Collect(n int) ([]byte, error) {
	if n <= 0 || !s.Available() {
		return nil, nil
	}
	f, err := os.CreateTemp("", "entropid-mdls-*")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	rawCount := n*4 + 64
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	for i := 0; i < rawCount; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), mdlsDeadline)
		cmd := exec.CommandContext(ctx, "mdls", path)
		_ = cmd.Run()
		cancel()
		timings = append(timings, timing.Now())
	}
	return timing.Extract(timings, n), nil
}
