package battery

import (
	"math/rand"
	"testing"
)

func pseudoRandomBytes(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	r.Read(b)
	return b
}

func constantBytes(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestRunAllReturnsThirtyOneResults(t *testing.T) {
	data := pseudoRandomBytes(100000, 1)
	results := RunAll(data)
	if len(results) != 31 {
		t.Fatalf("expected 31 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Name == "" {
			t.Errorf("result has empty name")
		}
		switch r.Grade {
		case 'A', 'B', 'C', 'D', 'F':
		default:
			t.Errorf("%s: unexpected grade %q", r.Name, r.Grade)
		}
	}
}

func TestRunAllPseudoRandomMostlyPasses(t *testing.T) {
	data := pseudoRandomBytes(200000, 42)
	results := RunAll(data)
	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	if passed < len(results)/2 {
		t.Errorf("expected pseudo-random data to pass more than half the battery, got %d/%d", passed, len(results))
	}
}

func TestConstantDataMostlyFails(t *testing.T) {
	data := constantBytes(50000, 0xAA)
	results := RunAll(data)
	failed := 0
	for _, r := range results {
		if !r.Passed {
			failed++
		}
	}
	if failed < len(results)/2 {
		t.Errorf("expected constant data to fail more than half the battery, got %d/%d", failed, len(results))
	}
}

func TestQualityScoreRange(t *testing.T) {
	data := pseudoRandomBytes(100000, 7)
	results := RunAll(data)
	score := QualityScore(results)
	if score < 0 || score > 100 {
		t.Fatalf("quality score %f out of range", score)
	}
}

func TestShannonEntropyOfConstantIsZero(t *testing.T) {
	r := ShannonEntropy(constantBytes(1000, 0x42))
	if r.Statistic > 0.01 {
		t.Errorf("expected near-zero entropy for constant data, got %f", r.Statistic)
	}
}

func TestMonobitFrequencyInsufficientData(t *testing.T) {
	r := MonobitFrequency([]byte{1, 2, 3})
	if r.Passed {
		t.Errorf("expected insufficient-data result to not pass")
	}
}

func TestCompressionRatioDetectsRepetition(t *testing.T) {
	repetitive := constantBytes(10000, 0x00)
	random := pseudoRandomBytes(10000, 99)
	rRep := CompressionRatio(repetitive)
	rRand := CompressionRatio(random)
	if rRep.Statistic >= rRand.Statistic {
		t.Errorf("expected repetitive data to compress better: rep=%f random=%f", rRep.Statistic, rRand.Statistic)
	}
}

func TestGF2RankFullRankIdentity(t *testing.T) {
	n := 8
	m := make([]byte, n*n)
	for i := 0; i < n; i++ {
		m[i*n+i] = 1
	}
	rank := gf2Rank(m, n, n)
	if rank != n {
		t.Errorf("expected identity matrix rank %d, got %d", n, rank)
	}
}

func TestBerlekampMasseyAllZeros(t *testing.T) {
	seq := make([]byte, 20)
	l := berlekampMassey(seq)
	if l != 0 {
		t.Errorf("expected zero linear complexity for all-zero sequence, got %d", l)
	}
}
