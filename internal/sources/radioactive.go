package sources

import (
	"context"
	"math"
	"os/exec"
	"sort"

	"entropid/internal/source"
	"entropid/internal/timing"
)

// RadioactiveDecay is the cosmic_muon family's sibling: same camera
// stimulus, but calibrated against the frame's median (robust to a handful
// of already-saturated hot pixels) with a tighter 4-sigma threshold and
// adjacency deduplication so one physical decay event spanning several
// pixels is not double-counted.
type RadioactiveDecay struct{}

func NewRadioactiveDecay() *RadioactiveDecay { return &RadioactiveDecay{} }

func (s *RadioactiveDecay) Info() source.Info {
	return source.Info{
		Name:        "radioactive_decay",
		Description: "Radiation-event timing from camera sensor hits above median+4*sigma",
		Physics: "Like cosmic_muon, but calibrated against the frame's median pixel value " +
			"(robust to pre-existing hot pixels) with a 4-sigma threshold and adjacency " +
			"deduplication, targeting the per-frame timing of ionizing radiation arrivals.",
		Category:            source.CategorySensor,
		Platform:            source.PlatformAny,
		Requirements:        []string{"ffmpeg", "camera"},
		EntropyRateEstimate: 200,
	}
}

func (s *RadioactiveDecay) Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

func medianOf(frame []byte) float64 {
	if len(frame) == 0 {
		return 0
	}
	sorted := make([]byte, len(frame))
	copy(sorted, frame)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (float64(sorted[mid-1]) + float64(sorted[mid])) / 2
	}
	return float64(sorted[mid])
}

func (s *RadioactiveDecay) Collect(n int) ([]byte, error) {
	if n <= 0 || !s.Available() {
		return nil, nil
	}
	rawCount := n*4 + 64
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	for i := 0; i < rawCount; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), camCaptureDeadline)
		frame, err := captureGrayFrame(ctx, "0")
		cancel()
		if err != nil || len(frame) != camFrameBytes {
			timings = append(timings, timing.Now())
			continue
		}
		median := medianOf(frame)
		_, std := meanStdDev(frame)
		threshold := median + math.Max(4*std, 40)
		_ = clusterEvents(frame, camFrameWidth, camFrameHeight, threshold)
		timings = append(timings, timing.Now())
	}
	return timing.Extract(timings, n), nil
}
