// Package conditioning is the single auditable place allowed to apply a
// debiasing or cryptographic transform to harvested bytes. No other package
// may whiten, stretch, or hash raw source output.
package conditioning

import (
	"crypto/sha256"
	"encoding/binary"

	"entropid/internal/source"
)

// Mode selects the conditioning applied to raw bytes before they leave the
// pool.
type Mode int

const (
	// Raw truncates without transformation.
	Raw Mode = iota
	// VonNeumann extracts unbiased bits from adjacent bit pairs.
	VonNeumann
	// Sha256 stretches or compresses to exactly nOut bytes via counter-mode
	// chaining. This is the default mode.
	Sha256
)

// String renders the mode the way the CLI accepts it.
func (m Mode) String() string {
	switch m {
	case Raw:
		return "raw"
	case VonNeumann:
		return "vonneumann"
	case Sha256:
		return "sha256"
	default:
		return "unknown"
	}
}

// ParseMode accepts the CLI's and config file's accepted spellings: raw,
// vonneumann/vn/von_neumann, sha256/sha256_chain.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "raw":
		return Raw, nil
	case "vonneumann", "vn", "von_neumann":
		return VonNeumann, nil
	case "sha256", "sha256_chain", "":
		return Sha256, nil
	default:
		return Sha256, source.ErrInvalidConditioning
	}
}

// Condition applies mode to raw and returns exactly nOut bytes, or fewer when
// the mode cannot produce that many (Raw given fewer than nOut raw bytes,
// VonNeumann on a short, biased or constant input, Sha256 on an empty input),
// in which case it returns as many as it could and never pads. It never
// returns more than nOut bytes.
func Condition(raw []byte, nOut int, mode Mode) []byte {
	if nOut <= 0 {
		return nil
	}
	switch mode {
	case Raw:
		return truncate(raw, nOut)
	case VonNeumann:
		return truncate(vonNeumannBits(raw), nOut)
	case Sha256:
		return sha256Condition(raw, nOut)
	default:
		return truncate(raw, nOut)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	out := make([]byte, n)
	copy(out, b[:n])
	return out
}

// vonNeumannBits applies the classic Von Neumann extractor over successive
// bit pairs of raw: (b0,b1) -> 1 iff (1,0), 0 iff (0,1), discarded iff equal.
// Bits are packed MSB-first; an incomplete trailing group of fewer than 8
// extracted bits is dropped rather than zero-padded, since padding would
// silently inject a biased (non-random) suffix into debiased output.
func vonNeumannBits(raw []byte) []byte {
	var bits []bool
	prevBit := -1
	for _, byt := range raw {
		for i := 0; i < 8; i++ {
			bit := int((byt >> (7 - uint(i))) & 1)
			if prevBit == -1 {
				prevBit = bit
				continue
			}
			if prevBit != bit {
				bits = append(bits, prevBit == 1)
			}
			prevBit = -1
		}
	}
	n := (len(bits) / 8) * 8
	if n == 0 {
		return nil
	}
	out := make([]byte, n/8)
	for i := 0; i < n; i++ {
		if bits[i] {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out
}

// sha256BlockSize is the number of raw bytes drained from the chunk cursor
// to produce each conditioning block's digest, per the pool's draining
// contract (drain 256-byte chunks per block).
const sha256BlockSize = 256

// Sha256BlockSize returns the number of raw bytes consumed per conditioning
// block, so callers computing how much raw material to buffer ahead of a
// Sha256ConditionWithState call stay in sync with the actual chunk size.
func Sha256BlockSize() int { return sha256BlockSize }

// Sha256DigestSize is the number of output bytes produced per conditioning
// block (one SHA-256 digest).
const Sha256DigestSize = sha256.Size

// sha256Condition stretches or compresses raw to exactly nOut bytes via
// counter-mode chaining seeded from raw itself: block_i = SHA256(state ||
// chunk_i || counter_i), state <- block_i, with the chunk cursor wrapping
// over raw. Empty input yields empty output regardless of nOut. This
// self-seeded form is for standalone callers; a caller holding a persistent
// chaining state (the pool) should use Sha256ConditionWithState instead so
// the state genuinely threads across calls rather than restarting per call.
func sha256Condition(raw []byte, nOut int) []byte {
	if len(raw) == 0 {
		return nil
	}
	out, _, _ := Sha256ConditionWithState(sha256.Sum256(raw), 0, raw, nOut)
	return out
}

// Sha256ConditionWithState is the counter-mode SHA-256 stretcher with an
// externally owned chaining state and counter: block_i = SHA256(state ||
// chunk_i || counter_i), state <- block_i, chunk cursor wrapping over raw.
// It returns the produced bytes along with the updated state and counter so
// a caller (the pool) can carry them forward into the next call, making the
// chaining state advance strictly monotonically per block produced across
// the pool's whole lifetime rather than per individual Condition call.
// Empty input returns raw's output unchanged (nil) and the state/counter
// untouched.
func Sha256ConditionWithState(state [32]byte, counter uint64, raw []byte, nOut int) ([]byte, [32]byte, uint64) {
	if len(raw) == 0 || nOut <= 0 {
		return nil, state, counter
	}

	out := make([]byte, 0, nOut)
	cursor := 0
	for len(out) < nOut {
		chunk := make([]byte, sha256BlockSize)
		for i := 0; i < sha256BlockSize; i++ {
			chunk[i] = raw[cursor%len(raw)]
			cursor++
		}

		h := sha256.New()
		h.Write(state[:])
		h.Write(chunk)
		var ctrBuf [8]byte
		binary.BigEndian.PutUint64(ctrBuf[:], counter)
		h.Write(ctrBuf[:])
		block := h.Sum(nil)
		copy(state[:], block)
		counter++

		remaining := nOut - len(out)
		if remaining < len(block) {
			out = append(out, block[:remaining]...)
		} else {
			out = append(out, block...)
		}
	}
	return out, state, counter
}
