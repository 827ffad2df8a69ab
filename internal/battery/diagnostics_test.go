package battery

import "testing"

func TestBlake2bAvalancheDiagnosticOnRandomData(t *testing.T) {
	data := pseudoRandomBytes(64*200, 7)
	r := Blake2bAvalancheDiagnostic(data)
	if r.Name != "BLAKE2b Avalanche" {
		t.Fatalf("unexpected result name %q", r.Name)
	}
	if r.PValue == nil {
		t.Fatal("expected a p-value for sufficient data")
	}
	if r.Statistic < 0 || r.Statistic > 256 {
		t.Errorf("mean diff bits out of range: %f", r.Statistic)
	}
}

func TestBlake2bAvalancheDiagnosticInsufficientData(t *testing.T) {
	r := Blake2bAvalancheDiagnostic(make([]byte, 10))
	if r.PValue != nil {
		t.Error("expected nil p-value for insufficient data")
	}
	if r.Grade != 'F' {
		t.Errorf("grade = %q, want F for insufficient data", r.Grade)
	}
}
