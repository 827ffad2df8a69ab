//go:build linux

package sources

import (
	"os"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"

	"entropid/internal/source"
)

// TPMRandom wraps a hardware TPM 2.0's GetRandom command as an entropy
// source when one is present. Unlike every other family in this package,
// its randomness comes from the TPM's own certified hardware RNG rather
// than timing jitter -- it is included because real deployments with a TPM
// should be able to fold its output into the pool alongside the physical
// timing sources, following the teacher's internal/tpm device-path probing
// convention.
type TPMRandom struct {
	devicePath string
}

var tpmDevicePaths = []string{"/dev/tpmrm0", "/dev/tpm0"}

func NewTPMRandom() *TPMRandom {
	s := &TPMRandom{}
	for _, p := range tpmDevicePaths {
		if _, err := os.Stat(p); err == nil {
			s.devicePath = p
			break
		}
	}
	return s
}

func (s *TPMRandom) Info() source.Info {
	return source.Info{
		Name:        "tpm_random",
		Description: "Hardware TPM 2.0 GetRandom output",
		Physics: "Draws certified random bytes directly from a hardware TPM's internal " +
			"RNG via the TPM2_GetRandom command, when a TPM device is present and " +
			"accessible.",
		Category:     source.CategorySilicon,
		Platform:     source.PlatformLinux,
		Requirements: []string{"tpm2"},
	}
}

func (s *TPMRandom) Available() bool {
	if s.devicePath == "" {
		return false
	}
	f, err := os.OpenFile(s.devicePath, os.O_RDWR, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func (s *TPMRandom) Collect(n int) ([]byte, error) {
	if n <= 0 || s.devicePath == "" {
		return nil, nil
	}
	tr, err := transport.OpenTPM(s.devicePath)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	out := make([]byte, 0, n)
	for len(out) < n {
		want := n - len(out)
		if want > 32 {
			want = 32
		}
		rsp, err := tpm2.GetRandom{BytesRequested: uint16(want)}.Execute(tr)
		if err != nil {
			break
		}
		out = append(out, rsp.RandomBytes.Buffer...)
	}
	return out, nil
}
