package sources

import (
	"context"
	"os/exec"
	"runtime"
	"time"

	"entropid/internal/source"
	"entropid/internal/timing"
)

// KeychainRoundTrip times round trips through the macOS `security` CLI,
// which itself proxies a SecItemCopyMatching-style IPC call through
// securityd into the Secure Enclave and back, aggregating latency from that
// entire chain rather than any single hop.
type KeychainRoundTrip struct{}

func NewKeychainRoundTrip() *KeychainRoundTrip { return &KeychainRoundTrip{} }

func (s *KeychainRoundTrip) Info() source.Info {
	return source.Info{
		Name:        "keychain_roundtrip",
		Description: "Keychain IPC round-trip timing via securityd and the Secure Enclave",
		Physics: "Each keychain query crosses from this process to securityd over XPC, " +
			"potentially to the Secure Enclave Processor, and through an APFS-backed " +
			"keychain database; round-trip latency aggregates jitter from that whole " +
			"chain, none of which this process directly observes.",
		Category:            source.CategoryIPC,
		Platform:            source.PlatformDarwin,
		Requirements:        []string{"security"},
		EntropyRateEstimate: 500,
	}
}

func (s *KeychainRoundTrip) Available() bool {
	if runtime.GOOS != "darwin" {
		return false
	}
	_, err := exec.LookPath("security")
	return err == nil
}

func (s *KeychainRoundTrip) Collect(n int) ([]byte, error) {
	if n <= 0 || !s.Available() {
		return nil, nil
	}
	rawCount := n*4 + 64
	timings := make([]uint64, 0, rawCount+1)
	timings = append(timings, timing.Now())
	for i := 0; i < rawCount; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		// Deliberately query a name unlikely to exist: the round trip
		// through securityd happens regardless of whether the lookup hits.
		cmd := exec.CommandContext(ctx, "security", "find-generic-password", "-s", "entropid-probe")
		_ = cmd.Run()
		cancel()
		timings = append(timings, timing.Now())
	}
	return timing.Extract(timings, n), nil
}
