// Package quantum implements the quantum/classical contribution proxy
// model v3: hierarchical Beta priors learned from labeled calibration rows,
// lag-aware coupling metrics with cyclic-shift null debiasing and
// Benjamini-Hochberg FDR control, Monte-Carlo uncertainty intervals,
// ablation and per-source sensitivity analysis, and telemetry-based
// classical confound adjustment.
package quantum

import (
	"math"
	"math/rand"
	"sort"
	"sync/atomic"

	"entropid/internal/analysis"
	"entropid/internal/minentropy"
	"entropid/internal/telemetry"
)

// ModelID and ModelVersion identify this experimental model's outputs in
// reports that may compare several model generations over time.
const (
	ModelID      = "quantum_proxy_v3"
	ModelVersion = 3
)

// AssessmentConfig holds every tunable of the v3 model.
type AssessmentConfig struct {
	CorrThreshold         float64
	LaggedCorrThreshold   float64
	MIThresholdBits       float64
	LaggedMIThresholdBits float64
	StressDeltaBits       float64
	MaxLag                int
	BootstrapRounds       int
	BootstrapWindows      int
	CouplingWeightCorr    float64
	CouplingWeightLagCorr float64
	CouplingWeightMI      float64
	CouplingWeightLagMI   float64
	CouplingNullRounds    int
	CouplingNullSigma     float64
	CouplingFDRAlpha      float64
	CouplingUseFDRGate    bool
}

// DefaultAssessmentConfig returns the model's seeded tuning.
func DefaultAssessmentConfig() AssessmentConfig {
	return AssessmentConfig{
		CorrThreshold:         0.30,
		LaggedCorrThreshold:   0.36,
		MIThresholdBits:       0.02,
		LaggedMIThresholdBits: 0.03,
		StressDeltaBits:       1.5,
		MaxLag:                8,
		BootstrapRounds:       400,
		BootstrapWindows:      8,
		CouplingWeightCorr:    0.40,
		CouplingWeightLagCorr: 0.20,
		CouplingWeightMI:      0.25,
		CouplingWeightLagMI:   0.15,
		CouplingNullRounds:    31,
		CouplingNullSigma:     2.0,
		CouplingFDRAlpha:      0.05,
		CouplingUseFDRGate:    false,
	}
}

// TelemetryConfoundConfig tunes how host-state instability inflates
// effective stress sensitivity.
type TelemetryConfoundConfig struct {
	WeightLoadAbs           float64
	WeightLoadDelta         float64
	WeightThermalRise       float64
	WeightFrequencyDrift    float64
	WeightMemoryPressure    float64
	WeightRailDrift         float64
	LoadFullScalePerCore    float64
	ThermalFullScaleC       float64
	FrequencyFullScaleRatio float64
	RailFullScaleRatio      float64
	ConfoundToStressScale   float64
}

// DefaultTelemetryConfoundConfig returns the seeded tuning.
func DefaultTelemetryConfoundConfig() TelemetryConfoundConfig {
	return TelemetryConfoundConfig{
		WeightLoadAbs:           0.26,
		WeightLoadDelta:         0.18,
		WeightThermalRise:       0.18,
		WeightFrequencyDrift:    0.14,
		WeightMemoryPressure:    0.16,
		WeightRailDrift:         0.08,
		LoadFullScalePerCore:    1.0,
		ThermalFullScaleC:       8.0,
		FrequencyFullScaleRatio: 0.15,
		RailFullScaleRatio:      0.25,
		ConfoundToStressScale:   0.70,
	}
}

// BetaPosterior is a Beta-Binomial posterior summary.
type BetaPosterior struct {
	Alpha, Beta float64
	NEff        float64
	Mean        float64
	CILow       float64
	CIHigh      float64
}

// PriorCalibration is the hierarchical prior table: global, per-category,
// and per-source posteriors.
type PriorCalibration struct {
	ModelID      string
	ModelVersion int
	PriorAlpha   float64
	PriorBeta    float64
	Global       BetaPosterior
	Categories   map[string]BetaPosterior
	Sources      map[string]BetaPosterior
}

// CalibrationRecord is one labeled calibration row.
type CalibrationRecord struct {
	Source   string
	Category string
	Label    float64 // quantum-likelihood target in [0,1]
	Weight   float64
}

// DefaultCalibration seeds a usable hierarchical table without requiring an
// on-disk calibration file, covering representative categories and sources
// across the physical/novel/frontier/silicon taxonomy.
func DefaultCalibration() PriorCalibration {
	records := []CalibrationRecord{
		{Category: "sensor", Label: 0.85, Weight: 12},
		{Category: "signal", Label: 0.70, Weight: 10},
		{Category: "novel", Label: 0.55, Weight: 8},
		{Category: "frontier", Label: 0.45, Weight: 10},
		{Category: "silicon", Label: 0.40, Weight: 10},
		{Category: "microarch", Label: 0.30, Weight: 14},
		{Category: "gpu", Label: 0.35, Weight: 8},
		{Category: "ipc", Label: 0.20, Weight: 10},
		{Category: "scheduling", Label: 0.15, Weight: 12},
		{Category: "timing", Label: 0.18, Weight: 12},
		{Category: "io", Label: 0.12, Weight: 8},
		{Category: "thermal", Label: 0.25, Weight: 6},
		{Category: "network", Label: 0.10, Weight: 6},
		{Category: "system", Label: 0.10, Weight: 8},
		{Category: "composite", Label: 0.30, Weight: 6},
		{Source: "cosmic_muon", Category: "sensor", Label: 0.92, Weight: 6},
		{Source: "radioactive_decay", Category: "sensor", Label: 0.95, Weight: 6},
		{Source: "gpu_divergence", Category: "gpu", Label: 0.38, Weight: 5},
		{Source: "keychain_timing", Category: "frontier", Label: 0.42, Weight: 5},
		{Source: "kqueue_events", Category: "frontier", Label: 0.40, Weight: 5},
	}
	return buildCalibration(records, 1, 1)
}

func buildCalibration(records []CalibrationRecord, priorAlpha, priorBeta float64) PriorCalibration {
	cal := PriorCalibration{
		ModelID: ModelID, ModelVersion: ModelVersion,
		PriorAlpha: priorAlpha, PriorBeta: priorBeta,
		Categories: make(map[string]BetaPosterior),
		Sources:    make(map[string]BetaPosterior),
	}

	type agg struct{ alphaSum, betaSum, nEff float64 }
	catAgg := make(map[string]*agg)
	srcAgg := make(map[string]*agg)
	var globalAgg agg

	for _, r := range records {
		globalAgg.alphaSum += r.Weight * r.Label
		globalAgg.betaSum += r.Weight * (1 - r.Label)
		globalAgg.nEff += r.Weight
		if r.Category != "" {
			ag := catAgg[r.Category]
			if ag == nil {
				ag = &agg{}
				catAgg[r.Category] = ag
			}
			ag.alphaSum += r.Weight * r.Label
			ag.betaSum += r.Weight * (1 - r.Label)
			ag.nEff += r.Weight
		}
		if r.Source != "" {
			ag := srcAgg[r.Source]
			if ag == nil {
				ag = &agg{}
				srcAgg[r.Source] = ag
			}
			ag.alphaSum += r.Weight * r.Label
			ag.betaSum += r.Weight * (1 - r.Label)
			ag.nEff += r.Weight
		}
	}

	cal.Global = posteriorFromAgg(priorAlpha, priorBeta, globalAgg.alphaSum, globalAgg.betaSum, globalAgg.nEff)
	for name, ag := range catAgg {
		cal.Categories[name] = posteriorFromAgg(priorAlpha, priorBeta, ag.alphaSum, ag.betaSum, ag.nEff)
	}
	for name, ag := range srcAgg {
		cal.Sources[name] = posteriorFromAgg(priorAlpha, priorBeta, ag.alphaSum, ag.betaSum, ag.nEff)
	}
	return cal
}

func posteriorFromAgg(priorAlpha, priorBeta, alphaSum, betaSum, nEff float64) BetaPosterior {
	alpha := priorAlpha + alphaSum
	beta := priorBeta + betaSum
	mean := alpha / (alpha + beta)
	// Normal approximation to the Beta CI, adequate for a shrinkage summary.
	variance := (alpha * beta) / ((alpha + beta) * (alpha + beta) * (alpha + beta + 1))
	sd := math.Sqrt(variance)
	return BetaPosterior{
		Alpha: alpha, Beta: beta, NEff: nEff, Mean: mean,
		CILow:  clamp01(mean - 1.96*sd),
		CIHigh: clamp01(mean + 1.96*sd),
	}
}

// PriorEstimate is the hierarchical shrinkage blend of source, category, and
// global posteriors.
type PriorEstimate struct {
	Mean           float64
	CILow, CIHigh  float64
	SourceNEff     float64
	CategoryNEff   float64
}

// PriorFromCalibration blends source/category/global posteriors with
// shrinkage weights w_src = n_src/(n_src+8), w_cat = (1-w_src)*n_cat/(n_cat+6),
// w_global = 1 - w_src - w_cat.
func PriorFromCalibration(name, category string, cal PriorCalibration) PriorEstimate {
	srcPost, hasSrc := cal.Sources[name]
	catPost, hasCat := cal.Categories[category]

	var nSrc, nCat float64
	if hasSrc {
		nSrc = srcPost.NEff
	}
	if hasCat {
		nCat = catPost.NEff
	}

	wSrc := nSrc / (nSrc + 8)
	wCat := (1 - wSrc) * nCat / (nCat + 6)
	wGlobal := 1 - wSrc - wCat

	mean := wGlobal * cal.Global.Mean
	ciLow := wGlobal * cal.Global.CILow
	ciHigh := wGlobal * cal.Global.CIHigh
	if hasCat {
		mean += wCat * catPost.Mean
		ciLow += wCat * catPost.CILow
		ciHigh += wCat * catPost.CIHigh
	}
	if hasSrc {
		mean += wSrc * srcPost.Mean
		ciLow += wSrc * srcPost.CILow
		ciHigh += wSrc * srcPost.CIHigh
	}

	return PriorEstimate{
		Mean: clamp01(mean), CILow: clamp01(ciLow), CIHigh: clamp01(ciHigh),
		SourceNEff: nSrc, CategoryNEff: nCat,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ScoreComponents are the four terms that combine into a quantum score.
type ScoreComponents struct {
	PhysicsPrior      float64
	QualityFactor     float64
	StressSensitivity float64
	CouplingPenalty   float64
}

// Assessment is the point-estimate decomposition for one source.
type Assessment struct {
	QuantumScore            float64
	ClassicalScore           float64
	QuantumMinEntropyBits    float64
	ClassicalMinEntropyBits  float64
	Components               ScoreComponents
}

// AssessFromComponents implements the invariant
// quantum_score = prior * quality * (1-stress) * (1-coupling), clipped to
// [0,1], with classical_score = 1 - quantum_score, and splits minEntropyBits
// accordingly so quantum_bits + classical_bits == minEntropyBits exactly.
func AssessFromComponents(minEntropyBits float64, c ScoreComponents) Assessment {
	q := c.PhysicsPrior * c.QualityFactor * (1 - c.StressSensitivity) * (1 - c.CouplingPenalty)
	q = clamp01(q)
	cl := 1 - q
	if minEntropyBits < 0 {
		minEntropyBits = 0
	}
	return Assessment{
		QuantumScore: q, ClassicalScore: cl,
		QuantumMinEntropyBits:   q * minEntropyBits,
		ClassicalMinEntropyBits: cl * minEntropyBits,
		Components:              c,
	}
}

// QualityFactor implements §4.7.1: flatness scaled down by autocorrelation,
// bit-bias, stationarity, and runs penalties.
func QualityFactor(a analysis.SourceAnalysis) float64 {
	acPen := clamp01(a.Autocorr.MaxAbsR / 0.30)
	biasPen := clamp01(a.BitBias.OverallBias / 0.03)
	runsRatio := 0.0
	if a.Runs.ExpectedLongest > 0 {
		runsRatio = float64(a.Runs.LongestRun) / a.Runs.ExpectedLongest
	}
	runsPen := clamp01(runsRatio / 2.0)
	totalDev := 0.0
	if a.Runs.ExpectedTotal > 0 {
		totalDev = math.Abs(float64(a.Runs.TotalRuns)-a.Runs.ExpectedTotal) / a.Runs.ExpectedTotal
	}
	runsPen = clamp01(math.Max(runsPen, totalDev/0.4))

	stationarityTerm := 1.0
	if !a.Stationarity.IsStationary {
		stationarityTerm = 0.6
	}

	q := a.Spectral.Flatness * (1 - 0.5*acPen) * (1 - 0.4*biasPen) * stationarityTerm * (1 - 0.3*runsPen)
	return clamp01(q)
}

// CouplingStats is the per-source aggregate across every pair it
// participates in.
type CouplingStats struct {
	SumAbsCorrRaw, SumAbsCorrLagRaw         float64
	SumMIBitsRaw, SumMIBitsLagRaw           float64
	SumAbsCorrNull, SumAbsCorrLagNull       float64
	SumMIBitsNull, SumMIBitsLagNull         float64
	SumAbsCorrExcess, SumAbsCorrLagExcess   float64
	SumMIBitsExcess, SumMIBitsLagExcess     float64
	SumQCorr, SumQCorrLag                   float64
	SumQMI, SumQMILag                       float64
	SignificantPairsAny                     int
	SignificantPairsCorr                    int
	SignificantPairsLagCorr                 int
	SignificantPairsMI                      int
	SignificantPairsLagMI                   int
	Pairs                                    int
}

func (c CouplingStats) meanOf(sum float64) float64 {
	if c.Pairs == 0 {
		return 0
	}
	return sum / float64(c.Pairs)
}

func (c CouplingStats) MeanAbsCorrRaw() float64     { return c.meanOf(c.SumAbsCorrRaw) }
func (c CouplingStats) MeanAbsCorrLagRaw() float64  { return c.meanOf(c.SumAbsCorrLagRaw) }
func (c CouplingStats) MeanMIBitsRaw() float64      { return c.meanOf(c.SumMIBitsRaw) }
func (c CouplingStats) MeanMIBitsLagRaw() float64   { return c.meanOf(c.SumMIBitsLagRaw) }
func (c CouplingStats) MeanAbsCorrNull() float64    { return c.meanOf(c.SumAbsCorrNull) }
func (c CouplingStats) MeanAbsCorrLagNull() float64 { return c.meanOf(c.SumAbsCorrLagNull) }
func (c CouplingStats) MeanMIBitsNull() float64     { return c.meanOf(c.SumMIBitsNull) }
func (c CouplingStats) MeanMIBitsLagNull() float64  { return c.meanOf(c.SumMIBitsLagNull) }
func (c CouplingStats) MeanAbsCorr() float64        { return c.meanOf(c.SumAbsCorrExcess) }
func (c CouplingStats) MeanAbsCorrLag() float64     { return c.meanOf(c.SumAbsCorrLagExcess) }
func (c CouplingStats) MeanMIBits() float64         { return c.meanOf(c.SumMIBitsExcess) }
func (c CouplingStats) MeanMIBitsLag() float64      { return c.meanOf(c.SumMIBitsLagExcess) }
func (c CouplingStats) MeanQCorr() float64          { return c.meanOf(c.SumQCorr) }
func (c CouplingStats) MeanQCorrLag() float64       { return c.meanOf(c.SumQCorrLag) }
func (c CouplingStats) MeanQMI() float64            { return c.meanOf(c.SumQMI) }
func (c CouplingStats) MeanQMILag() float64         { return c.meanOf(c.SumQMILag) }

func (c CouplingStats) fraction(n int) float64 {
	if c.Pairs == 0 {
		return 0
	}
	return float64(n) / float64(c.Pairs)
}
func (c CouplingStats) SignificantPairFractionAny() float64     { return c.fraction(c.SignificantPairsAny) }
func (c CouplingStats) SignificantPairFractionCorr() float64    { return c.fraction(c.SignificantPairsCorr) }
func (c CouplingStats) SignificantPairFractionCorrLag() float64 { return c.fraction(c.SignificantPairsLagCorr) }
func (c CouplingStats) SignificantPairFractionMI() float64      { return c.fraction(c.SignificantPairsMI) }
func (c CouplingStats) SignificantPairFractionMILag() float64   { return c.fraction(c.SignificantPairsLagMI) }

// CouplingPenalty blends the four excess terms into [0,1] per §4.7.3.
func CouplingPenalty(c CouplingStats, cfg AssessmentConfig) float64 {
	wSum := cfg.CouplingWeightCorr + cfg.CouplingWeightLagCorr + cfg.CouplingWeightMI + cfg.CouplingWeightLagMI
	if wSum == 0 {
		return 0
	}
	eCorr := c.MeanAbsCorr() / cfg.CorrThreshold
	eLagCorr := c.MeanAbsCorrLag() / cfg.LaggedCorrThreshold
	eMI := c.MeanMIBits() / cfg.MIThresholdBits
	eLagMI := c.MeanMIBitsLag() / cfg.LaggedMIThresholdBits
	penalty := (cfg.CouplingWeightCorr*eCorr + cfg.CouplingWeightLagCorr*eLagCorr +
		cfg.CouplingWeightMI*eMI + cfg.CouplingWeightLagMI*eLagMI) / wSum
	return clamp01(penalty)
}

// pairResult holds one ordered stream pair's raw, null-shifted, and p-value
// statistics before per-source aggregation.
type pairResult struct {
	a, b                            string
	corr, corrLag, mi, miLag        float64
	nullMeanCorr, nullStdCorr       float64
	nullMeanCorrLag, nullStdCorrLag float64
	nullMeanMI, nullStdMI           float64
	nullMeanMILag, nullStdMILag     float64
	pCorr, pCorrLag, pMI, pMILag    float64
}

// PairwiseCouplingByName computes per-source CouplingStats across every
// ordered pair of named streams sharing at least minSamples bytes, with
// cyclic-shift null debiasing and BH-FDR q-values computed across all pairs
// per metric.
func PairwiseCouplingByName(streams []analysis.NamedStream, minSamples int, cfg AssessmentConfig) map[string]CouplingStats {
	var results []pairResult
	for i := 0; i < len(streams); i++ {
		for j := 0; j < len(streams); j++ {
			if i == j {
				continue
			}
			a, b := streams[i], streams[j]
			n := minInt(len(a.Bytes), len(b.Bytes))
			if n < minSamples {
				continue
			}
			ab, bb := a.Bytes[:n], b.Bytes[:n]

			corr := math.Abs(analysis.PearsonCorrelation(ab, bb))
			corrLag := maxLaggedAbsCorr(ab, bb, cfg.MaxLag)
			mi := adaptiveBinMI(ab, bb, 0)
			miLag := maxLaggedMI(ab, bb, cfg.MaxLag)

			nullCorr := make([]float64, 0, cfg.CouplingNullRounds)
			nullCorrLag := make([]float64, 0, cfg.CouplingNullRounds)
			nullMI := make([]float64, 0, cfg.CouplingNullRounds)
			nullMILag := make([]float64, 0, cfg.CouplingNullRounds)
			rounds := cfg.CouplingNullRounds
			if rounds < 1 {
				rounds = 1
			}
			for r := 0; r < rounds; r++ {
				shift := (n / rounds) * r
				if shift == 0 && r > 0 {
					shift = r
				}
				shifted := cyclicShift(bb, shift)
				nullCorr = append(nullCorr, math.Abs(analysis.PearsonCorrelation(ab, shifted)))
				nullCorrLag = append(nullCorrLag, maxLaggedAbsCorr(ab, shifted, cfg.MaxLag))
				nullMI = append(nullMI, adaptiveBinMI(ab, shifted, 0))
				nullMILag = append(nullMILag, maxLaggedMI(ab, shifted, cfg.MaxLag))
			}

			mCorr, sCorr := meanStd(nullCorr)
			mCorrLag, sCorrLag := meanStd(nullCorrLag)
			mMI, sMI := meanStd(nullMI)
			mMILag, sMILag := meanStd(nullMILag)

			results = append(results, pairResult{
				a: a.Name, b: b.Name,
				corr: corr, corrLag: corrLag, mi: mi, miLag: miLag,
				nullMeanCorr: mCorr, nullStdCorr: sCorr,
				nullMeanCorrLag: mCorrLag, nullStdCorrLag: sCorrLag,
				nullMeanMI: mMI, nullStdMI: sMI,
				nullMeanMILag: mMILag, nullStdMILag: sMILag,
				pCorr:    normalTailP(corr, mCorr, sCorr),
				pCorrLag: normalTailP(corrLag, mCorrLag, sCorrLag),
				pMI:      normalTailP(mi, mMI, sMI),
				pMILag:   normalTailP(miLag, mMILag, sMILag),
			})
		}
	}

	if len(results) == 0 {
		return map[string]CouplingStats{}
	}

	qCorr := benjaminiHochberg(collectP(results, func(r pairResult) float64 { return r.pCorr }))
	qCorrLag := benjaminiHochberg(collectP(results, func(r pairResult) float64 { return r.pCorrLag }))
	qMI := benjaminiHochberg(collectP(results, func(r pairResult) float64 { return r.pMI }))
	qMILag := benjaminiHochberg(collectP(results, func(r pairResult) float64 { return r.pMILag }))

	out := make(map[string]CouplingStats)
	for idx, r := range results {
		stat := out[r.a]
		stat.Pairs++

		excessCorr := excess(r.corr, r.nullMeanCorr, r.nullStdCorr, cfg.CouplingNullSigma)
		excessCorrLag := excess(r.corrLag, r.nullMeanCorrLag, r.nullStdCorrLag, cfg.CouplingNullSigma)
		excessMI := excess(r.mi, r.nullMeanMI, r.nullStdMI, cfg.CouplingNullSigma)
		excessMILag := excess(r.miLag, r.nullMeanMILag, r.nullStdMILag, cfg.CouplingNullSigma)

		sigCorr := qCorr[idx] <= cfg.CouplingFDRAlpha
		sigCorrLag := qCorrLag[idx] <= cfg.CouplingFDRAlpha
		sigMI := qMI[idx] <= cfg.CouplingFDRAlpha
		sigMILag := qMILag[idx] <= cfg.CouplingFDRAlpha

		if cfg.CouplingUseFDRGate {
			if !sigCorr {
				excessCorr = 0
			}
			if !sigCorrLag {
				excessCorrLag = 0
			}
			if !sigMI {
				excessMI = 0
			}
			if !sigMILag {
				excessMILag = 0
			}
		}

		stat.SumAbsCorrRaw += r.corr
		stat.SumAbsCorrLagRaw += r.corrLag
		stat.SumMIBitsRaw += r.mi
		stat.SumMIBitsLagRaw += r.miLag
		stat.SumAbsCorrNull += r.nullMeanCorr
		stat.SumAbsCorrLagNull += r.nullMeanCorrLag
		stat.SumMIBitsNull += r.nullMeanMI
		stat.SumMIBitsLagNull += r.nullMeanMILag
		stat.SumAbsCorrExcess += excessCorr
		stat.SumAbsCorrLagExcess += excessCorrLag
		stat.SumMIBitsExcess += excessMI
		stat.SumMIBitsLagExcess += excessMILag
		stat.SumQCorr += qCorr[idx]
		stat.SumQCorrLag += qCorrLag[idx]
		stat.SumQMI += qMI[idx]
		stat.SumQMILag += qMILag[idx]
		if sigCorr || sigCorrLag || sigMI || sigMILag {
			stat.SignificantPairsAny++
		}
		if sigCorr {
			stat.SignificantPairsCorr++
		}
		if sigCorrLag {
			stat.SignificantPairsLagCorr++
		}
		if sigMI {
			stat.SignificantPairsMI++
		}
		if sigMILag {
			stat.SignificantPairsLagMI++
		}
		out[r.a] = stat
	}
	return out
}

func collectP(results []pairResult, f func(pairResult) float64) []float64 {
	ps := make([]float64, len(results))
	for i, r := range results {
		ps[i] = f(r)
	}
	return ps
}

func excess(observed, nullMean, nullStd, sigma float64) float64 {
	v := observed - (nullMean + sigma*nullStd)
	if v < 0 {
		return 0
	}
	return v
}

func normalTailP(observed, mean, std float64) float64 {
	if std <= 0 {
		if observed > mean {
			return 0
		}
		return 1
	}
	z := (observed - mean) / std
	return 1 - normalCDF(z)
}

func normalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// benjaminiHochberg computes monotone non-decreasing q-values for an
// unsorted p-value vector, returned in the original input order.
func benjaminiHochberg(p []float64) []float64 {
	m := len(p)
	type idxP struct {
		idx int
		p   float64
	}
	sorted := make([]idxP, m)
	for i, v := range p {
		sorted[i] = idxP{i, v}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].p < sorted[j].p })

	q := make([]float64, m)
	minSoFar := 1.0
	for rank := m; rank >= 1; rank-- {
		entry := sorted[rank-1]
		val := entry.p * float64(m) / float64(rank)
		if val < minSoFar {
			minSoFar = val
		}
		if minSoFar > 1 {
			minSoFar = 1
		}
		q[entry.idx] = minSoFar
	}
	return q
}

func cyclicShift(b []byte, shift int) []byte {
	n := len(b)
	if n == 0 {
		return b
	}
	shift = ((shift % n) + n) % n
	out := make([]byte, n)
	copy(out, b[shift:])
	copy(out[n-shift:], b[:shift])
	return out
}

func maxLaggedAbsCorr(a, b []byte, maxLag int) float64 {
	best := 0.0
	for lag := -maxLag; lag <= maxLag; lag++ {
		if lag == 0 {
			continue
		}
		var as, bs []byte
		if lag > 0 {
			if lag >= len(a) {
				continue
			}
			as, bs = a[lag:], b[:len(a)-lag]
		} else {
			k := -lag
			if k >= len(b) {
				continue
			}
			as, bs = a[:len(b)-k], b[k:]
		}
		n := minInt(len(as), len(bs))
		if n < 8 {
			continue
		}
		r := math.Abs(analysis.PearsonCorrelation(as[:n], bs[:n]))
		if r > best {
			best = r
		}
	}
	return best
}

func maxLaggedMI(a, b []byte, maxLag int) float64 {
	best := 0.0
	for lag := -maxLag; lag <= maxLag; lag++ {
		if lag == 0 {
			continue
		}
		mi := adaptiveBinMI(a, b, lag)
		if mi > best {
			best = mi
		}
	}
	return best
}

// adaptiveBinMI computes mutual information in bits between a and b (offset
// by lag) using an adaptive bin count b(n) = clip(round(sqrt(n)), 8, 64) with
// Miller-Madow small-sample bias correction.
func adaptiveBinMI(a, b []byte, lag int) float64 {
	var as, bs []byte
	if lag >= 0 {
		if lag >= len(a) {
			return 0
		}
		as, bs = a[lag:], b[:len(a)-lag]
	} else {
		k := -lag
		if k >= len(b) {
			return 0
		}
		as, bs = a[:len(b)-k], b[k:]
	}
	n := minInt(len(as), len(bs))
	if n < 8 {
		return 0
	}
	as, bs = as[:n], bs[:n]

	bins := clipInt(int(math.Round(math.Sqrt(float64(n)))), 8, 64)
	binOf := func(v byte) int {
		idx := int(v) * bins / 256
		if idx >= bins {
			idx = bins - 1
		}
		return idx
	}

	joint := make([][]int, bins)
	for i := range joint {
		joint[i] = make([]int, bins)
	}
	var marginalA, marginalB [64]int
	for i := 0; i < n; i++ {
		ia, ib := binOf(as[i]), binOf(bs[i])
		joint[ia][ib]++
		marginalA[ia]++
		marginalB[ib]++
	}

	nf := float64(n)
	var mi float64
	nonZeroCells := 0
	for i := 0; i < bins; i++ {
		for j := 0; j < bins; j++ {
			if joint[i][j] == 0 {
				continue
			}
			nonZeroCells++
			pij := float64(joint[i][j]) / nf
			pi := float64(marginalA[i]) / nf
			pj := float64(marginalB[j]) / nf
			mi += pij * math.Log2(pij/(pi*pj))
		}
	}
	// Miller-Madow correction.
	correction := float64(nonZeroCells-1) / (2 * nf * math.Ln2)
	mi -= correction
	if mi < 0 {
		mi = 0
	}
	return mi
}

func clipInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func meanStd(v []float64) (mean, std float64) {
	if len(v) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	mean = sum / float64(len(v))
	var variance float64
	for _, x := range v {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(v))
	return mean, math.Sqrt(variance)
}

// ClassicalRatio is the aggregated quantum/classical split with CIs.
type ClassicalRatio struct {
	QuantumBits, ClassicalBits                 float64
	QuantumFraction, ClassicalFraction         float64
	QuantumToClassical                         float64
	QuantumBitsCILow, QuantumBitsCIHigh        float64
	ClassicalBitsCILow, ClassicalBitsCIHigh    float64
	QuantumFractionCILow, QuantumFractionCIHigh float64
	QuantumToClassicalCILow, QuantumToClassicalCIHigh float64
}

// SourceInput is one source's measured inputs to the v3 model.
type SourceInput struct {
	Name                  string
	Category              string
	MinEntropyBits         float64
	QualityFactor          float64
	StressSensitivity      float64
	PhysicsPriorOverride   *float64
	Analysis               analysis.SourceAnalysis
}

// SourceResult is the per-source output row.
type SourceResult struct {
	Name, Category                 string
	MinEntropyBits                 float64
	PhysicsPrior                   float64
	PhysicsPriorCILow, PhysicsPriorCIHigh float64
	PriorSourceSamples              float64
	PriorCategorySamples             float64
	QualityFactor                    float64
	StressSensitivity                float64
	StressSensitivityEffective       float64
	TelemetryConfoundPenalty         float64
	Coupling                         CouplingStats
	CouplingPenalty                  float64
	QuantumScore                     float64
	QuantumScoreCILow, QuantumScoreCIHigh float64
	ClassicalScore                   float64
	QuantumMinEntropyBits            float64
	QuantumMinEntropyBitsCILow, QuantumMinEntropyBitsCIHigh float64
	ClassicalMinEntropyBits          float64
	ClassicalMinEntropyBitsCILow, ClassicalMinEntropyBitsCIHigh float64
}

// CalibrationSummary is the abbreviated calibration identity embedded in a
// batch report.
type CalibrationSummary struct {
	GlobalPrior                 float64
	GlobalPriorCILow, GlobalPriorCIHigh float64
	CategoryEntries, SourceEntries int
}

// AblationEntry reports the aggregate under one ablated scenario.
type AblationEntry struct {
	Scenario      string
	QuantumBits   float64
	ClassicalBits float64
	Delta         float64
}

// SourceSensitivity reports the absolute change in q per nulled component.
type SourceSensitivity struct {
	Name                                               string
	DeltaWithoutPrior, DeltaWithoutQuality              float64
	DeltaWithoutCoupling, DeltaWithoutStress            float64
}

// BatchReport is the complete v3 assessment output.
type BatchReport struct {
	Config             AssessmentConfig
	Calibration         CalibrationSummary
	Sources             []SourceResult
	Aggregate           ClassicalRatio
	Ablation            []AblationEntry
	Sensitivity         []SourceSensitivity
	TelemetryConfound   *TelemetryConfoundReport
}

// TelemetryConfoundReport is the scalar confound diagnostic.
type TelemetryConfoundReport struct {
	ConfoundIndex         float64
	LoadAbsPerCore        float64
	LoadDeltaPerCore      float64
	ThermalRiseC          float64
	FrequencyDriftRatio   float64
	MemoryPressure        float64
	RailDriftRatio        float64
	ConfoundToStressScale float64
}

// globalCalibration holds the prior table used by AssessBatch and
// AssessBatchFromStreams when the caller does not supply one explicitly. It
// starts out nil, meaning DefaultCalibration(); SetGlobalCalibration swaps it
// atomically so a running process (e.g. under reload.Watcher) can pick up an
// on-disk calibration file without restarting.
var globalCalibration atomic.Pointer[PriorCalibration]

// SetGlobalCalibration installs cal as the prior table used by subsequent
// AssessBatch/AssessBatchFromStreams calls. Safe to call concurrently with
// assessment runs; a call already in flight keeps using whatever calibration
// it started with.
func SetGlobalCalibration(cal PriorCalibration) {
	globalCalibration.Store(&cal)
}

// CurrentCalibration returns the active global calibration, falling back to
// DefaultCalibration() if none has been set.
func CurrentCalibration() PriorCalibration {
	if p := globalCalibration.Load(); p != nil {
		return *p
	}
	return DefaultCalibration()
}

// AssessBatch runs the point-estimate model (no Monte-Carlo, deterministic
// CIs equal to the point estimate) from precomputed coupling stats and the
// active calibration (CurrentCalibration) -- the fallback path used when no
// raw streams are available for windowed uncertainty.
func AssessBatch(inputs []SourceInput, couplingByName map[string]CouplingStats, cfg AssessmentConfig) BatchReport {
	cal := CurrentCalibration()
	rows := make([]SourceResult, 0, len(inputs))
	for _, in := range inputs {
		stats := couplingByName[in.Name]
		row := assessOneDeterministic(in, stats, cfg, cal)
		rows = append(rows, row)
	}
	sortByScoreDesc(rows)

	agg := aggregateDeterministic(rows)
	ablation, sensitivity := buildAblationAndSensitivity(rows, cal.Global.Mean)

	return BatchReport{
		Config: cfg,
		Calibration: CalibrationSummary{
			GlobalPrior: cal.Global.Mean, GlobalPriorCILow: cal.Global.CILow, GlobalPriorCIHigh: cal.Global.CIHigh,
			CategoryEntries: len(cal.Categories), SourceEntries: len(cal.Sources),
		},
		Sources: rows, Aggregate: agg, Ablation: ablation, Sensitivity: sensitivity,
	}
}

// AssessBatchFromStreams computes pairwise coupling directly from raw
// streams and runs the full Monte-Carlo uncertainty model.
func AssessBatchFromStreams(inputs []SourceInput, streams []analysis.NamedStream, cfg AssessmentConfig, minPairSamples int) BatchReport {
	cal := CurrentCalibration()
	coupling := PairwiseCouplingByName(streams, minPairSamples, cfg)

	rows := make([]SourceResult, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, assessOneDeterministic(in, coupling[in.Name], cfg, cal))
	}
	sortByScoreDesc(rows)

	runMonteCarlo(rows, streams, cfg, minPairSamples, cal)
	sortByScoreDesc(rows)

	ablation, sensitivity := buildAblationAndSensitivity(rows, cal.Global.Mean)
	agg := aggregateWithCIs(rows)

	return BatchReport{
		Config: cfg,
		Calibration: CalibrationSummary{
			GlobalPrior: cal.Global.Mean, GlobalPriorCILow: cal.Global.CILow, GlobalPriorCIHigh: cal.Global.CIHigh,
			CategoryEntries: len(cal.Categories), SourceEntries: len(cal.Sources),
		},
		Sources: rows, Aggregate: agg, Ablation: ablation, Sensitivity: sensitivity,
	}
}

func assessOneDeterministic(in SourceInput, stats CouplingStats, cfg AssessmentConfig, cal PriorCalibration) SourceResult {
	penalty := CouplingPenalty(stats, cfg)

	var prior PriorEstimate
	if in.PhysicsPriorOverride != nil {
		p := clamp01(*in.PhysicsPriorOverride)
		prior = PriorEstimate{Mean: p, CILow: clamp01(p - 0.05), CIHigh: clamp01(p + 0.05)}
	} else {
		prior = PriorFromCalibration(in.Name, in.Category, cal)
	}

	q := AssessFromComponents(in.MinEntropyBits, ScoreComponents{
		PhysicsPrior: prior.Mean, QualityFactor: clamp01(in.QualityFactor),
		StressSensitivity: clamp01(in.StressSensitivity), CouplingPenalty: penalty,
	})

	category := in.Category
	if category == "" {
		category = "unknown"
	}

	return SourceResult{
		Name: in.Name, Category: category,
		MinEntropyBits: math.Max(in.MinEntropyBits, 0),
		PhysicsPrior: prior.Mean, PhysicsPriorCILow: prior.CILow, PhysicsPriorCIHigh: prior.CIHigh,
		PriorSourceSamples: prior.SourceNEff, PriorCategorySamples: prior.CategoryNEff,
		QualityFactor: clamp01(in.QualityFactor), StressSensitivity: clamp01(in.StressSensitivity),
		StressSensitivityEffective: clamp01(in.StressSensitivity),
		Coupling:                   stats,
		CouplingPenalty:            penalty,
		QuantumScore:               q.QuantumScore, QuantumScoreCILow: q.QuantumScore, QuantumScoreCIHigh: q.QuantumScore,
		ClassicalScore:             q.ClassicalScore,
		QuantumMinEntropyBits:      q.QuantumMinEntropyBits,
		QuantumMinEntropyBitsCILow: q.QuantumMinEntropyBits, QuantumMinEntropyBitsCIHigh: q.QuantumMinEntropyBits,
		ClassicalMinEntropyBits:      q.ClassicalMinEntropyBits,
		ClassicalMinEntropyBitsCILow: q.ClassicalMinEntropyBits, ClassicalMinEntropyBitsCIHigh: q.ClassicalMinEntropyBits,
	}
}

func sortByScoreDesc(rows []SourceResult) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].QuantumScore != rows[j].QuantumScore {
			return rows[i].QuantumScore > rows[j].QuantumScore
		}
		return rows[i].Name < rows[j].Name
	})
}

func aggregateDeterministic(rows []SourceResult) ClassicalRatio {
	var qBits, cBits float64
	for _, r := range rows {
		qBits += math.Max(r.QuantumMinEntropyBits, 0)
		cBits += math.Max(r.ClassicalMinEntropyBits, 0)
	}
	return ratioFromBits(qBits, cBits, qBits, qBits, cBits, cBits)
}

func aggregateWithCIs(rows []SourceResult) ClassicalRatio {
	var qBits, cBits, qLow, qHigh, cLow, cHigh float64
	for _, r := range rows {
		qBits += math.Max(r.QuantumMinEntropyBits, 0)
		cBits += math.Max(r.ClassicalMinEntropyBits, 0)
		qLow += math.Max(r.QuantumMinEntropyBitsCILow, 0)
		qHigh += math.Max(r.QuantumMinEntropyBitsCIHigh, 0)
		cLow += math.Max(r.ClassicalMinEntropyBitsCILow, 0)
		cHigh += math.Max(r.ClassicalMinEntropyBitsCIHigh, 0)
	}
	return ratioFromBits(qBits, cBits, qLow, qHigh, cLow, cHigh)
}

func ratioFromBits(qBits, cBits, qLow, qHigh, cLow, cHigh float64) ClassicalRatio {
	total := qBits + cBits
	qf, cf := 0.0, 0.0
	if total > 0 {
		qf = qBits / total
		cf = cBits / total
	}
	qToC := 0.0
	if cBits > 0 {
		qToC = qBits / cBits
	} else if qBits > 0 {
		qToC = math.Inf(1)
	}

	qfLow, qfHigh := 0.0, 0.0
	if qLow+cHigh > 0 {
		qfLow = qLow / (qLow + cHigh)
	}
	if qHigh+cLow > 0 {
		qfHigh = qHigh / (qHigh + cLow)
	}
	qToCLow, qToCHigh := 0.0, 0.0
	if cHigh > 0 {
		qToCLow = qLow / cHigh
	} else if qLow > 0 {
		qToCLow = math.Inf(1)
	}
	if cLow > 0 {
		qToCHigh = qHigh / cLow
	} else if qHigh > 0 {
		qToCHigh = math.Inf(1)
	}

	return ClassicalRatio{
		QuantumBits: qBits, ClassicalBits: cBits,
		QuantumFraction: qf, ClassicalFraction: cf, QuantumToClassical: qToC,
		QuantumBitsCILow: qLow, QuantumBitsCIHigh: qHigh,
		ClassicalBitsCILow: cLow, ClassicalBitsCIHigh: cHigh,
		QuantumFractionCILow: qfLow, QuantumFractionCIHigh: qfHigh,
		QuantumToClassicalCILow: qToCLow, QuantumToClassicalCIHigh: qToCHigh,
	}
}

// runMonteCarlo draws cfg.BootstrapRounds samples per source, perturbing
// prior/min-entropy/quality/stress/coupling from window-wise re-evaluation
// of the source's own streams, and fills in each row's CI fields in place.
func runMonteCarlo(rows []SourceResult, streams []analysis.NamedStream, cfg AssessmentConfig, minPairSamples int, cal PriorCalibration) {
	byName := make(map[string][]byte, len(streams))
	for _, s := range streams {
		byName[s.Name] = s.Bytes
	}

	rng := rand.New(rand.NewSource(0xC0FFEE))
	rounds := cfg.BootstrapRounds
	if rounds < 1 {
		rounds = 1
	}
	windows := cfg.BootstrapWindows
	if windows < 1 {
		windows = 1
	}

	for i := range rows {
		row := &rows[i]
		data := byName[row.Name]

		hMeans, qMeans := windowedStats(data, windows)
		hMean, hStd := meanStd(hMeans)
		qMean, qStd := meanStd(qMeans)
		if hMean == 0 {
			hMean = row.MinEntropyBits
		}
		if qMean == 0 {
			qMean = row.QualityFactor
		}

		priorStd := (row.PhysicsPriorCIHigh - row.PhysicsPriorCILow) / (2 * 1.96)
		stressStd := hStd / math.Max(cfg.StressDeltaBits, 1e-9)
		if len(hMeans) < 2 {
			stressStd = 0
		}

		qDraws := make([]float64, 0, rounds)
		qBitsDraws := make([]float64, 0, rounds)
		cBitsDraws := make([]float64, 0, rounds)

		for d := 0; d < rounds; d++ {
			prior := clamp01(truncNormal(rng, row.PhysicsPrior, priorStd, 0, 1))
			hMin := clampRange(normalDraw(rng, hMean, hStd), 0, 8)
			quality := clamp01(normalDraw(rng, qMean, qStd))
			stress := clamp01(normalDraw(rng, row.StressSensitivity, stressStd))
			coupling := clamp01(normalDraw(rng, row.CouplingPenalty, row.CouplingPenalty*0.15))

			a := AssessFromComponents(hMin, ScoreComponents{
				PhysicsPrior: prior, QualityFactor: quality, StressSensitivity: stress, CouplingPenalty: coupling,
			})
			qDraws = append(qDraws, a.QuantumScore)
			qBitsDraws = append(qBitsDraws, a.QuantumMinEntropyBits)
			cBitsDraws = append(cBitsDraws, a.ClassicalMinEntropyBits)
		}

		row.QuantumScoreCILow, row.QuantumScoreCIHigh = percentileCI(qDraws)
		row.QuantumMinEntropyBitsCILow, row.QuantumMinEntropyBitsCIHigh = percentileCI(qBitsDraws)
		row.ClassicalMinEntropyBitsCILow, row.ClassicalMinEntropyBitsCIHigh = percentileCI(cBitsDraws)
	}
}

func windowedStats(data []byte, windows int) (hMeans, qMeans []float64) {
	if len(data) < 64*2 {
		return nil, nil
	}
	winSize := len(data) / windows
	if winSize < 64 {
		winSize = 64
		windows = len(data) / winSize
	}
	for w := 0; w < windows; w++ {
		start := w * winSize
		end := start + winSize
		if end > len(data) {
			break
		}
		seg := data[start:end]
		hMeans = append(hMeans, minentropy.Quick(seg))
		qMeans = append(qMeans, QualityFactor(analysis.FullAnalysis("window", seg)))
	}
	return hMeans, qMeans
}

func percentileCI(draws []float64) (lo, hi float64) {
	if len(draws) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), draws...)
	sort.Float64s(sorted)
	loIdx := int(0.025 * float64(len(sorted)))
	hiIdx := int(0.975 * float64(len(sorted)))
	if hiIdx >= len(sorted) {
		hiIdx = len(sorted) - 1
	}
	return sorted[loIdx], sorted[hiIdx]
}

// normalDraw uses the Box-Muller transform to sample N(mean, std).
func normalDraw(rng *rand.Rand, mean, std float64) float64 {
	if std <= 0 {
		return mean
	}
	u1 := rng.Float64()
	u2 := rng.Float64()
	if u1 <= 1e-12 {
		u1 = 1e-12
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + std*z
}

func truncNormal(rng *rand.Rand, mean, std, lo, hi float64) float64 {
	for i := 0; i < 20; i++ {
		v := normalDraw(rng, mean, std)
		if v >= lo && v <= hi {
			return v
		}
	}
	return clampRange(mean, lo, hi)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// buildAblationAndSensitivity re-runs the aggregate under seven ablation
// scenarios and computes per-source component sensitivity.
func buildAblationAndSensitivity(rows []SourceResult, globalPrior float64) ([]AblationEntry, []SourceSensitivity) {
	scenarioFn := map[string]func(SourceResult) Assessment{
		"full": func(r SourceResult) Assessment {
			return AssessFromComponents(r.MinEntropyBits, ScoreComponents{r.PhysicsPrior, r.QualityFactor, r.StressSensitivityEffective, r.CouplingPenalty})
		},
		"without_prior": func(r SourceResult) Assessment {
			return AssessFromComponents(r.MinEntropyBits, ScoreComponents{globalPrior, r.QualityFactor, r.StressSensitivityEffective, r.CouplingPenalty})
		},
		"without_quality": func(r SourceResult) Assessment {
			return AssessFromComponents(r.MinEntropyBits, ScoreComponents{r.PhysicsPrior, 1, r.StressSensitivityEffective, r.CouplingPenalty})
		},
		"without_coupling": func(r SourceResult) Assessment {
			return AssessFromComponents(r.MinEntropyBits, ScoreComponents{r.PhysicsPrior, r.QualityFactor, r.StressSensitivityEffective, 0})
		},
		"without_stress": func(r SourceResult) Assessment {
			return AssessFromComponents(r.MinEntropyBits, ScoreComponents{r.PhysicsPrior, r.QualityFactor, 0, r.CouplingPenalty})
		},
		"prior_only": func(r SourceResult) Assessment {
			return AssessFromComponents(r.MinEntropyBits, ScoreComponents{r.PhysicsPrior, 1, 0, 0})
		},
		"measured_only": func(r SourceResult) Assessment {
			return AssessFromComponents(r.MinEntropyBits, ScoreComponents{1, r.QualityFactor, r.StressSensitivityEffective, r.CouplingPenalty})
		},
	}
	order := []string{"full", "without_prior", "without_quality", "without_coupling", "without_stress", "prior_only", "measured_only"}

	var fullQ, fullC float64
	var entries []AblationEntry
	for _, scenario := range order {
		var qBits, cBits float64
		for _, r := range rows {
			a := scenarioFn[scenario](r)
			qBits += a.QuantumMinEntropyBits
			cBits += a.ClassicalMinEntropyBits
		}
		if scenario == "full" {
			fullQ, fullC = qBits, cBits
		}
		entries = append(entries, AblationEntry{
			Scenario: scenario, QuantumBits: qBits, ClassicalBits: cBits,
			Delta: qBits - fullQ,
		})
	}
	_ = fullC

	var sensitivity []SourceSensitivity
	for _, r := range rows {
		full := scenarioFn["full"](r).QuantumScore
		sensitivity = append(sensitivity, SourceSensitivity{
			Name:                  r.Name,
			DeltaWithoutPrior:     math.Abs(scenarioFn["without_prior"](r).QuantumScore - full),
			DeltaWithoutQuality:   math.Abs(scenarioFn["without_quality"](r).QuantumScore - full),
			DeltaWithoutCoupling:  math.Abs(scenarioFn["without_coupling"](r).QuantumScore - full),
			DeltaWithoutStress:    math.Abs(scenarioFn["without_stress"](r).QuantumScore - full),
		})
	}
	return entries, sensitivity
}

// ApplyTelemetryConfound re-runs the decomposition with a telemetry-inflated
// effective stress sensitivity, shifting per-source and aggregate CIs by the
// same absolute change so their width is preserved, per §4.7.6.
func ApplyTelemetryConfound(report BatchReport, window *telemetry.WindowReport, cfg TelemetryConfoundConfig) BatchReport {
	if window == nil {
		return report
	}
	confound := telemetryConfoundFromWindow(*window, cfg)
	report.TelemetryConfound = &confound

	basePenalty := clamp01(confound.ConfoundIndex * cfg.ConfoundToStressScale)
	if basePenalty <= 0 {
		return report
	}

	for i := range report.Sources {
		row := &report.Sources[i]
		catScale := categoryTelemetryScale(row.Category)
		penalty := clamp01(basePenalty * catScale)
		stressEffective := clamp01(row.StressSensitivity + penalty)

		q := AssessFromComponents(row.MinEntropyBits, ScoreComponents{
			PhysicsPrior: row.PhysicsPrior, QualityFactor: row.QualityFactor,
			StressSensitivity: stressEffective, CouplingPenalty: row.CouplingPenalty,
		})

		qLow, qHigh := ciShifted(row.QuantumScore, row.QuantumScoreCILow, row.QuantumScoreCIHigh, q.QuantumScore, 0, 1)
		bLow, bHigh := ciShifted(row.QuantumMinEntropyBits, row.QuantumMinEntropyBitsCILow, row.QuantumMinEntropyBitsCIHigh, q.QuantumMinEntropyBits, 0, row.MinEntropyBits)

		row.TelemetryConfoundPenalty = penalty
		row.StressSensitivityEffective = stressEffective
		row.QuantumScore = q.QuantumScore
		row.ClassicalScore = q.ClassicalScore
		row.QuantumMinEntropyBits = q.QuantumMinEntropyBits
		row.ClassicalMinEntropyBits = q.ClassicalMinEntropyBits
		row.QuantumScoreCILow, row.QuantumScoreCIHigh = qLow, qHigh
		row.QuantumMinEntropyBitsCILow, row.QuantumMinEntropyBitsCIHigh = bLow, bHigh
		cCenter := q.ClassicalMinEntropyBits
		cLow := math.Max(row.MinEntropyBits-bHigh, 0)
		cHigh := row.MinEntropyBits - bLow
		row.ClassicalMinEntropyBitsCILow = math.Min(cLow, cCenter)
		row.ClassicalMinEntropyBitsCIHigh = math.Max(cHigh, cCenter)
	}

	sortByScoreDesc(report.Sources)
	report.Aggregate = aggregateWithCIs(report.Sources)
	report.Ablation, report.Sensitivity = buildAblationAndSensitivity(report.Sources, report.Calibration.GlobalPrior)
	return report
}

func ciShifted(oldCenter, oldLow, oldHigh, newCenter, lo, hi float64) (float64, float64) {
	shift := newCenter - oldCenter
	newLow := clampRange(oldLow+shift, lo, hi)
	newHigh := clampRange(oldHigh+shift, lo, hi)
	return newLow, newHigh
}

func categoryTelemetryScale(category string) float64 {
	switch category {
	case "microarch", "gpu", "silicon":
		return 1.1
	case "sensor", "signal":
		return 0.8
	default:
		return 1.0
	}
}

func telemetryConfoundFromWindow(window telemetry.WindowReport, cfg TelemetryConfoundConfig) TelemetryConfoundReport {
	loadAbs := lookupDeltaEnd(window, "scheduling", "goroutine_count")
	loadDelta := lookupDelta(window, "scheduling", "goroutine_count")
	thermalRise := lookupDelta(window, "thermal", "zone0_celsius")
	memPressure := normalizeRatio(lookupDeltaEnd(window, "memory", "heap_alloc_bytes"), lookupDeltaEnd(window, "memory", "heap_sys_bytes"))

	loadTerm := clamp01(loadAbs / math.Max(cfg.LoadFullScalePerCore, 1e-9))
	loadDeltaTerm := clamp01(math.Abs(loadDelta) / math.Max(cfg.LoadFullScalePerCore, 1e-9))
	thermalTerm := clamp01(thermalRise / math.Max(cfg.ThermalFullScaleC, 1e-9))
	freqTerm := 0.0 // no frequency probe available cross-platform; omitted, not invented.
	memTerm := clamp01(memPressure)
	railTerm := 0.0 // no rail/power probe available cross-platform; omitted, not invented.

	wSum := cfg.WeightLoadAbs + cfg.WeightLoadDelta + cfg.WeightThermalRise + cfg.WeightFrequencyDrift + cfg.WeightMemoryPressure + cfg.WeightRailDrift
	var confound float64
	if wSum > 0 {
		confound = (cfg.WeightLoadAbs*loadTerm + cfg.WeightLoadDelta*loadDeltaTerm + cfg.WeightThermalRise*thermalTerm +
			cfg.WeightFrequencyDrift*freqTerm + cfg.WeightMemoryPressure*memTerm + cfg.WeightRailDrift*railTerm) / wSum
	}

	return TelemetryConfoundReport{
		ConfoundIndex: clamp01(confound), LoadAbsPerCore: loadAbs, LoadDeltaPerCore: loadDelta,
		ThermalRiseC: thermalRise, FrequencyDriftRatio: freqTerm, MemoryPressure: memPressure,
		RailDriftRatio: railTerm, ConfoundToStressScale: cfg.ConfoundToStressScale,
	}
}

func lookupDelta(window telemetry.WindowReport, domain, name string) float64 {
	for _, d := range window.Deltas {
		if d.Domain == domain && d.Name == name {
			return d.DeltaValue
		}
	}
	return 0
}

func lookupDeltaEnd(window telemetry.WindowReport, domain, name string) float64 {
	for _, d := range window.Deltas {
		if d.Domain == domain && d.Name == name {
			return d.EndValue
		}
	}
	return 0
}

func normalizeRatio(num, denom float64) float64 {
	if denom <= 0 {
		return 0
	}
	return clamp01(num / denom)
}
