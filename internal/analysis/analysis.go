// Package analysis implements the per-stream statistical test suite:
// autocorrelation, spectral flatness, bit bias, distribution shape,
// stationarity, runs, and cross-source correlation. Every function here is a
// deterministic, side-effect-free function of its input slice.
package analysis

import (
	"math"
	"sort"
)

// AutocorrResult reports the sample autocorrelation over a range of lags.
type AutocorrResult struct {
	Lags       []int
	R          []float64
	MaxAbsR    float64
	MaxAbsLag  int
	Threshold  float64
	Violations int
}

// Autocorrelation computes the mean-centred sample autocorrelation for lags
// 1..min(maxLag, n/2).
func Autocorrelation(b []byte, maxLag int) AutocorrResult {
	n := len(b)
	res := AutocorrResult{Threshold: threshold(n)}
	if n < 4 {
		return res
	}
	limit := maxLag
	if n/2 < limit {
		limit = n / 2
	}
	if limit < 1 {
		return res
	}

	mean := meanBytes(b)
	var variance float64
	for _, v := range b {
		d := float64(v) - mean
		variance += d * d
	}
	if variance == 0 {
		res.Lags = make([]int, limit)
		res.R = make([]float64, limit)
		for i := 0; i < limit; i++ {
			res.Lags[i] = i + 1
		}
		return res
	}

	for lag := 1; lag <= limit; lag++ {
		var num float64
		for i := 0; i+lag < n; i++ {
			num += (float64(b[i]) - mean) * (float64(b[i+lag]) - mean)
		}
		r := num / variance
		res.Lags = append(res.Lags, lag)
		res.R = append(res.R, r)
		if math.Abs(r) > res.MaxAbsR {
			res.MaxAbsR = math.Abs(r)
			res.MaxAbsLag = lag
		}
		if math.Abs(r) > res.Threshold {
			res.Violations++
		}
	}
	return res
}

func threshold(n int) float64 {
	if n <= 0 {
		return 0
	}
	return 2.0 / math.Sqrt(float64(n))
}

// SpectralResult summarizes a naive DFT power spectrum.
type SpectralResult struct {
	PeakFreqs      []float64
	PeakPowers     []float64
	Flatness       float64 // Wiener entropy, clipped to [0, 1]
	DominantFreq   float64
	TotalPower     float64
}

// Spectral computes the naive DFT power spectrum over up to the first 4096
// mean-subtracted samples, reporting the top 10 peaks and spectral flatness
// (the geometric-to-arithmetic mean ratio of the power spectrum, a.k.a.
// Wiener entropy).
func Spectral(b []byte) SpectralResult {
	n := len(b)
	if n > 4096 {
		n = 4096
	}
	var res SpectralResult
	if n < 8 {
		return res
	}

	mean := meanBytes(b[:n])
	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(b[i]) - mean
	}

	half := n / 2
	power := make([]float64, half)
	for k := 0; k < half; k++ {
		var re, im float64
		for t := 0; t < n; t++ {
			theta := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			re += x[t] * math.Cos(theta)
			im += x[t] * math.Sin(theta)
		}
		power[k] = re*re + im*im
		res.TotalPower += power[k]
	}

	type peak struct {
		freq  float64
		power float64
	}
	peaks := make([]peak, half)
	for k := range power {
		peaks[k] = peak{freq: float64(k) / float64(n), power: power[k]}
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].power > peaks[j].power })

	top := 10
	if top > len(peaks) {
		top = len(peaks)
	}
	for i := 0; i < top; i++ {
		res.PeakFreqs = append(res.PeakFreqs, peaks[i].freq)
		res.PeakPowers = append(res.PeakPowers, peaks[i].power)
	}
	if len(peaks) > 0 {
		res.DominantFreq = peaks[0].freq
	}

	res.Flatness = spectralFlatness(power)
	return res
}

func spectralFlatness(power []float64) float64 {
	n := len(power)
	if n == 0 {
		return 0
	}
	var logSum, arithSum float64
	nonZero := 0
	for _, p := range power {
		if p <= 0 {
			continue
		}
		logSum += math.Log(p)
		arithSum += p
		nonZero++
	}
	if nonZero == 0 || arithSum == 0 {
		return 0
	}
	geoMean := math.Exp(logSum / float64(nonZero))
	arithMean := arithSum / float64(n)
	if arithMean == 0 {
		return 0
	}
	flat := geoMean / arithMean
	if flat < 0 {
		flat = 0
	}
	if flat > 1 {
		flat = 1
	}
	return flat
}

// BitBiasResult reports per-bit-position P(1) and an overall chi-squared
// goodness-of-fit against P(1)=0.5.
type BitBiasResult struct {
	PerBit    [8]float64
	OverallBias float64
	ChiSquared  float64
	DoF         int
	Flagged     bool
}

// BitBias computes per-bit-position ones-probability, the mean deviation
// from 0.5, and a chi-squared statistic with 8 degrees of freedom. Flagged
// is set if any bit position deviates from 0.5 by more than 0.01.
func BitBias(b []byte) BitBiasResult {
	var res BitBiasResult
	res.DoF = 8
	if len(b) == 0 {
		return res
	}
	var ones [8]int
	for _, v := range b {
		for i := 0; i < 8; i++ {
			if (v>>(7-uint(i)))&1 == 1 {
				ones[i]++
			}
		}
	}
	n := float64(len(b))
	var devSum, chiSq float64
	for i := 0; i < 8; i++ {
		p := float64(ones[i]) / n
		res.PerBit[i] = p
		dev := math.Abs(p - 0.5)
		devSum += dev
		if dev > 0.01 {
			res.Flagged = true
		}
		expected := n * 0.5
		diffOnes := float64(ones[i]) - expected
		diffZeros := float64(len(b)-ones[i]) - expected
		chiSq += diffOnes*diffOnes/expected + diffZeros*diffZeros/expected
	}
	res.OverallBias = devSum / 8
	res.ChiSquared = chiSq
	return res
}

// DistributionResult summarizes the byte-value distribution.
type DistributionResult struct {
	Mean             float64
	Variance         float64
	StdDev           float64
	Skewness         float64
	ExcessKurtosis   float64
	Histogram        [256]int
	KSStatistic      float64
	KSPValue         float64
}

// Distribution computes central moments, a 256-bin histogram, and a
// one-sample Kolmogorov-Smirnov test against uniform(0,255).
func Distribution(b []byte) DistributionResult {
	var res DistributionResult
	n := len(b)
	if n == 0 {
		return res
	}
	for _, v := range b {
		res.Histogram[v]++
	}
	mean := meanBytes(b)
	res.Mean = mean

	var m2, m3, m4 float64
	for _, v := range b {
		d := float64(v) - mean
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	nf := float64(n)
	m2 /= nf
	m3 /= nf
	m4 /= nf
	res.Variance = m2
	res.StdDev = math.Sqrt(m2)
	if m2 > 0 {
		res.Skewness = m3 / math.Pow(m2, 1.5)
		res.ExcessKurtosis = m4/(m2*m2) - 3
	}

	res.KSStatistic = ksAgainstUniform(b)
	res.KSPValue = kolmogorovTailApprox(res.KSStatistic, nf)
	return res
}

func ksAgainstUniform(b []byte) float64 {
	n := len(b)
	sorted := make([]byte, n)
	copy(sorted, b)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var maxD float64
	for i, v := range sorted {
		empirical := float64(i+1) / float64(n)
		theoretical := (float64(v) + 1) / 256.0
		d := math.Abs(empirical - theoretical)
		if d > maxD {
			maxD = d
		}
	}
	return maxD
}

// kolmogorovTailApprox approximates the KS test p-value via the asymptotic
// Kolmogorov distribution tail, Q(t) = 2 * sum_{k=1..inf} (-1)^(k-1) exp(-2 k^2 t^2).
func kolmogorovTailApprox(d, n float64) float64 {
	if n <= 0 {
		return 1
	}
	t := d * (math.Sqrt(n) + 0.12 + 0.11/math.Sqrt(n))
	if t < 0.2 {
		return 1
	}
	var sum float64
	for k := 1; k <= 100; k++ {
		sign := 1.0
		if k%2 == 0 {
			sign = -1.0
		}
		sum += sign * math.Exp(-2*float64(k)*float64(k)*t*t)
	}
	p := 2 * sum
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// StationarityResult labels whether per-window statistics are consistent
// with a stationary process, using a fixed ANOVA-style F-threshold. This is
// a heuristic, not a rigorous hypothesis test.
type StationarityResult struct {
	WindowMeans []float64
	WindowStds  []float64
	FStatistic  float64
	IsStationary bool
}

const stationarityFThreshold = 1.88

// Stationarity splits b into 10 equal windows and computes a between/within
// variance ratio (F-statistic); IsStationary is true when F is below the
// fixed threshold 1.88.
func Stationarity(b []byte) StationarityResult {
	const windows = 10
	var res StationarityResult
	n := len(b)
	if n < windows*2 {
		res.IsStationary = true
		return res
	}
	winSize := n / windows
	var grandSum float64
	means := make([]float64, windows)
	stds := make([]float64, windows)
	for w := 0; w < windows; w++ {
		start := w * winSize
		end := start + winSize
		if w == windows-1 {
			end = n
		}
		seg := b[start:end]
		m := meanBytes(seg)
		means[w] = m
		grandSum += m * float64(len(seg))

		var v float64
		for _, x := range seg {
			d := float64(x) - m
			v += d * d
		}
		if len(seg) > 0 {
			v /= float64(len(seg))
		}
		stds[w] = math.Sqrt(v)
	}
	res.WindowMeans = means
	res.WindowStds = stds

	grandMean := grandSum / float64(n)
	var ssBetween, ssWithin float64
	for w := 0; w < windows; w++ {
		start := w * winSize
		end := start + winSize
		if w == windows-1 {
			end = n
		}
		size := float64(end - start)
		d := means[w] - grandMean
		ssBetween += size * d * d
		ssWithin += stds[w] * stds[w] * size
	}
	dfBetween := float64(windows - 1)
	dfWithin := float64(n - windows)
	if ssWithin == 0 || dfWithin <= 0 {
		res.FStatistic = 0
		res.IsStationary = true
		return res
	}
	msBetween := ssBetween / dfBetween
	msWithin := ssWithin / dfWithin
	f := msBetween / msWithin
	res.FStatistic = f
	res.IsStationary = f < stationarityFThreshold
	return res
}

// RunsResult reports the longest and total run statistics for identical
// consecutive bytes, compared to their expectation under a uniform iid
// model.
type RunsResult struct {
	LongestRun     int
	TotalRuns      int
	ExpectedLongest float64
	ExpectedTotal  float64
}

// Runs scans for runs of identical consecutive bytes.
func Runs(b []byte) RunsResult {
	var res RunsResult
	n := len(b)
	if n == 0 {
		return res
	}
	res.ExpectedLongest = math.Log(float64(n)) / math.Log(256)
	res.ExpectedTotal = float64(n)*(1-1.0/256) + 1

	current := 1
	for i := 1; i < n; i++ {
		if b[i] == b[i-1] {
			current++
		} else {
			res.TotalRuns++
			if current > res.LongestRun {
				res.LongestRun = current
			}
			current = 1
		}
	}
	res.TotalRuns++
	if current > res.LongestRun {
		res.LongestRun = current
	}
	return res
}

// NamedStream pairs a source name with its collected bytes, the input shape
// for cross-source correlation.
type NamedStream struct {
	Name  string
	Bytes []byte
}

// CorrelationPair reports the Pearson correlation between two named streams
// over their shared prefix.
type CorrelationPair struct {
	A, B      string
	R         float64
	Flagged   bool
	SharedLen int
}

// CrossCorrelationMatrix computes Pearson r for every pair of streams with at
// least 100 shared bytes, flagging pairs with |r| > 0.3.
func CrossCorrelationMatrix(streams []NamedStream) []CorrelationPair {
	var pairs []CorrelationPair
	for i := 0; i < len(streams); i++ {
		for j := i + 1; j < len(streams); j++ {
			a, b := streams[i], streams[j]
			shared := len(a.Bytes)
			if len(b.Bytes) < shared {
				shared = len(b.Bytes)
			}
			if shared < 100 {
				continue
			}
			r := PearsonCorrelation(a.Bytes[:shared], b.Bytes[:shared])
			pairs = append(pairs, CorrelationPair{
				A: a.Name, B: b.Name, R: r,
				Flagged:   math.Abs(r) > 0.3,
				SharedLen: shared,
			})
		}
	}
	return pairs
}

// PearsonCorrelation computes the Pearson product-moment correlation
// coefficient between two equal-length byte slices.
func PearsonCorrelation(a, b []byte) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	meanA, meanB := meanBytes(a), meanBytes(b)
	var num, denA, denB float64
	for i := 0; i < n; i++ {
		da := float64(a[i]) - meanA
		db := float64(b[i]) - meanB
		num += da * db
		denA += da * da
		denB += db * db
	}
	if denA == 0 || denB == 0 {
		return 0
	}
	return num / math.Sqrt(denA*denB)
}

// SourceAnalysis bundles the full per-stream test suite for one named
// source.
type SourceAnalysis struct {
	Name         string
	Autocorr     AutocorrResult
	Spectral     SpectralResult
	BitBias      BitBiasResult
	Distribution DistributionResult
	Stationarity StationarityResult
	Runs         RunsResult
}

// FullAnalysis runs the complete per-stream suite (everything but cross-
// correlation, which needs the full stream set) for one named byte slice.
func FullAnalysis(name string, b []byte) SourceAnalysis {
	return SourceAnalysis{
		Name:         name,
		Autocorr:     Autocorrelation(b, 50),
		Spectral:     Spectral(b),
		BitBias:      BitBias(b),
		Distribution: Distribution(b),
		Stationarity: Stationarity(b),
		Runs:         Runs(b),
	}
}

func meanBytes(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	var sum float64
	for _, v := range b {
		sum += float64(v)
	}
	return sum / float64(len(b))
}
