//go:build !linux

package sources

import "entropid/internal/source"

// TPMRandom is gated unavailable outside Linux: the device-path probe this
// family is grounded on (internal/tpm's Linux backend) has no portable
// equivalent wired for other targets here.
type TPMRandom struct{}

func NewTPMRandom() *TPMRandom { return &TPMRandom{} }

func (s *TPMRandom) Info() source.Info {
	return source.Info{
		Name:        "tpm_random",
		Description: "Hardware TPM 2.0 GetRandom output",
		Category:    source.CategorySilicon,
		Platform:    source.PlatformLinux,
	}
}

func (s *TPMRandom) Available() bool              { return false }
func (s *TPMRandom) Collect(n int) ([]byte, error) { return nil, nil }
