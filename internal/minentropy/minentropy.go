// Package minentropy implements the MCV-primary min-entropy estimator and its
// NIST SP 800-90B-inspired diagnostic companions (collision, Markov,
// compression, t-tuple), unified into a single report.
package minentropy

import "math"

// Report bundles Shannon entropy, the primary MCV min-entropy estimate, and
// the diagnostic estimators. All fields are bits/byte in [0, 8] except
// MCVPUpper which is a probability in [0, 1], and Samples which counts input
// bytes.
type Report struct {
	Shannon        float64
	MinEntropy     float64 // MCV, the primary estimate
	HeuristicFloor float64
	MCV            float64
	MCVPUpper      float64
	Collision      float64
	Markov         float64
	Compression    float64
	TTuple         float64
	Samples        int
}

// zUpper99 is the 99.5% standard-normal quantile (the two-sided 99% value)
// used for the MCV estimator's upper confidence bound on p_max, matching NIST
// SP 800-90B's most-common-value estimate.
const zUpper99 = 2.576

// Shannon computes the Shannon entropy of bytes in bits/byte.
func Shannon(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	var counts [256]int
	for _, v := range b {
		counts[v]++
	}
	n := float64(len(b))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// mcvEstimate is the Most Common Value estimator: find the sample proportion
// of the most frequent byte, push its binomial proportion up to a 99% upper
// confidence bound, and report -log2 of that bound as the min-entropy
// estimate.
func mcvEstimate(b []byte) (minEntropy, pMax, pUpper float64) {
	if len(b) == 0 {
		return 0, 0, 0
	}
	var counts [256]int
	for _, v := range b {
		counts[v]++
	}
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	n := float64(len(b))
	pMax = float64(maxCount) / n
	pUpper = pMax + zUpper99*math.Sqrt(pMax*(1-pMax)/n)
	if pUpper > 1 {
		pUpper = 1
	}
	if pUpper <= 0 {
		return 8, pMax, 0
	}
	minEntropy = -math.Log2(pUpper)
	if minEntropy < 0 {
		minEntropy = 0
	}
	if minEntropy > 8 {
		minEntropy = 8
	}
	return minEntropy, pMax, pUpper
}

// collisionEstimate is a collision-entropy proxy: it estimates the probability
// that two draws match from the byte-value counts and reports the Renyi-2
// entropy -log2 of that probability. It does not measure the number of
// samples between collisions.
func collisionEstimate(b []byte) float64 {
	if len(b) < 2 {
		return 0
	}
	var counts [256]int
	for _, v := range b {
		counts[v]++
	}
	n := float64(len(b))
	var sumSq float64
	for _, c := range counts {
		sumSq += float64(c) * float64(c)
	}
	// Collision probability estimate (probability two draws match).
	pColl := (sumSq - n) / (n * (n - 1))
	if pColl <= 0 {
		return 8
	}
	// Renyi collision entropy per symbol, used here as a min-entropy proxy.
	h2 := -math.Log2(pColl)
	if h2 < 0 {
		h2 = 0
	}
	if h2 > 8 {
		h2 = 8
	}
	return h2
}

// markovEstimate is deliberately conservative when the sample count is
// small relative to the 256x256 first-order state space: it estimates the
// worst-case transition probability across observed (prev, next) pairs and
// converts it to bits via -log2. With few samples most cells are unobserved
// or singleton, which biases the estimate toward 0 bits/byte -- documented
// behavior, not a defect.
func markovEstimate(b []byte) float64 {
	if len(b) < 2 {
		return 0
	}
	var transitions [256][256]int
	var rowTotals [256]int
	for i := 0; i+1 < len(b); i++ {
		transitions[b[i]][b[i+1]]++
		rowTotals[b[i]]++
	}
	maxP := 0.0
	for prev := 0; prev < 256; prev++ {
		if rowTotals[prev] == 0 {
			continue
		}
		for next := 0; next < 256; next++ {
			if transitions[prev][next] == 0 {
				continue
			}
			p := float64(transitions[prev][next]) / float64(rowTotals[prev])
			if p > maxP {
				maxP = p
			}
		}
	}
	if maxP <= 0 {
		return 8
	}
	h := -math.Log2(maxP)
	if h < 0 {
		h = 0
	}
	if h > 8 {
		h = 8
	}
	return h
}

// compressionEstimate is a compressibility proxy for min-entropy: it counts
// positions where the 8-byte window equals the same window shifted by one
// byte (a run of nine identical bytes) and scales the non-matching fraction
// to 8 bits, so long runs of one value yield a low estimate.
func compressionEstimate(b []byte) float64 {
	if len(b) < 16 {
		return 0
	}
	const window = 8
	matches := 0
	total := 0
	for i := window; i < len(b); i++ {
		total++
		prior := b[i-window : i]
		cur := b[i-window+1 : i+1]
		if string(cur) == string(prior) {
			matches++
		}
	}
	if total == 0 {
		return 8
	}
	ratio := float64(matches) / float64(total)
	// More matches -> more redundancy -> lower entropy per byte.
	h := 8 * (1 - ratio)
	if h < 0 {
		h = 0
	}
	if h > 8 {
		h = 8
	}
	return h
}

// tTupleEstimate scans for the most common tuple of length t (default 2..5,
// here fixed at 3 for a fixed-cost diagnostic) and derives min-entropy per
// byte from its frequency, analogous to the SP 800-90B t-tuple estimate.
func tTupleEstimate(b []byte) float64 {
	const t = 3
	if len(b) < t*4 {
		return 0
	}
	counts := make(map[string]int)
	for i := 0; i+t <= len(b); i++ {
		counts[string(b[i:i+t])]++
	}
	if len(counts) == 0 {
		return 8
	}
	maxCount := 0
	total := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
		total += c
	}
	p := float64(maxCount) / float64(total)
	if p <= 0 {
		return 8
	}
	hTuple := -math.Log2(p)
	hPerByte := hTuple / t
	if hPerByte < 0 {
		hPerByte = 0
	}
	if hPerByte > 8 {
		hPerByte = 8
	}
	return hPerByte
}

// Estimate runs the full min-entropy suite and returns a Report whose
// MinEntropy field is always the MCV estimate (the primary estimator), with
// the others retained as diagnostics. Per the data model invariant, MCV
// min-entropy never exceeds Shannon entropy for the same sample (within a
// small numerical epsilon).
func Estimate(b []byte) Report {
	shannon := Shannon(b)
	mcv, _, pUpper := mcvEstimate(b)
	if mcv > shannon+1e-9 {
		mcv = shannon
	}
	return Report{
		Shannon:        shannon,
		MinEntropy:     mcv,
		HeuristicFloor: math.Min(mcv, collisionEstimate(b)),
		MCV:            mcv,
		MCVPUpper:      pUpper,
		Collision:      collisionEstimate(b),
		Markov:         markovEstimate(b),
		Compression:    compressionEstimate(b),
		TTuple:         tTupleEstimate(b),
		Samples:        len(b),
	}
}

// Quick returns only the MCV min-entropy estimate, for callers (e.g. the
// pool's health accounting and the quantum proxy's window re-evaluation)
// that don't need the full diagnostic suite.
func Quick(b []byte) float64 {
	h, _, _ := mcvEstimate(b)
	return h
}

// QuickShannon returns only the Shannon entropy estimate.
func QuickShannon(b []byte) float64 {
	return Shannon(b)
}

// Grade labels a min-entropy value for human-readable reports.
func Grade(bitsPerByte float64) string {
	switch {
	case bitsPerByte >= 7.5:
		return "excellent"
	case bitsPerByte >= 6.0:
		return "good"
	case bitsPerByte >= 4.0:
		return "fair"
	case bitsPerByte >= 1.0:
		return "poor"
	default:
		return "unacceptable"
	}
}
