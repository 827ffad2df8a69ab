package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sessionDir := filepath.Join(dir, "sess1")

	w, err := Open(sessionDir, "sess1", "sha256_chain")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	raw1 := []byte{1, 2, 3, 4}
	raw2 := []byte{5, 6, 7, 8, 9}

	if err := w.RecordSample(1, SampleRow{
		Round: 1, SourceName: "source_a", Category: "sensor", RawBytes: len(raw1),
		ShannonBits: 7.8, MinEntropyBits: 6.5, Healthy: true, CollectedAt: time.Now(),
	}, raw1); err != nil {
		t.Fatalf("RecordSample 1: %v", err)
	}
	if err := w.RecordSample(1, SampleRow{
		Round: 1, SourceName: "source_b", Category: "signal", RawBytes: len(raw2),
		ShannonBits: 7.2, MinEntropyBits: 5.1, Healthy: false, CollectedAt: time.Now(),
	}, raw2); err != nil {
		t.Fatalf("RecordSample 2: %v", err)
	}
	w.RecordOutputBytes(32)

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, f := range []string{"session.json", "samples.csv", "raw_index.csv", "raw.bin"} {
		if _, err := os.Stat(filepath.Join(sessionDir, f)); err != nil {
			t.Errorf("expected %s to exist: %v", f, err)
		}
	}

	r, err := Load(sessionDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.Meta.SessionID != "sess1" {
		t.Errorf("SessionID = %q, want sess1", r.Meta.SessionID)
	}
	if r.Meta.Conditioning != "sha256_chain" {
		t.Errorf("Conditioning = %q, want sha256_chain", r.Meta.Conditioning)
	}
	if r.Meta.TotalOutBytes != 32 {
		t.Errorf("TotalOutBytes = %d, want 32", r.Meta.TotalOutBytes)
	}
	if len(r.Samples) != 2 {
		t.Fatalf("expected 2 sample rows, got %d", len(r.Samples))
	}
	if r.Samples[0].SourceName != "source_a" || r.Samples[1].SourceName != "source_b" {
		t.Errorf("unexpected sample ordering: %+v", r.Samples)
	}
	if len(r.RawIndex) != 2 {
		t.Fatalf("expected 2 raw index rows, got %d", len(r.RawIndex))
	}

	got1, err := r.RawBytes(r.RawIndex[0])
	if err != nil {
		t.Fatalf("RawBytes 1: %v", err)
	}
	if string(got1) != string(raw1) {
		t.Errorf("raw bytes 1 = %v, want %v", got1, raw1)
	}
	got2, err := r.RawBytes(r.RawIndex[1])
	if err != nil {
		t.Fatalf("RawBytes 2: %v", err)
	}
	if string(got2) != string(raw2) {
		t.Errorf("raw bytes 2 = %v, want %v", got2, raw2)
	}
}

func TestWriterTags(t *testing.T) {
	dir := t.TempDir()
	tagsPath := filepath.Join(dir, "tags.yaml")
	if err := os.WriteFile(tagsPath, []byte("environment: ci\noperator: jdoe\n"), 0o600); err != nil {
		t.Fatalf("write tags file: %v", err)
	}

	tags, err := LoadTagsFile(tagsPath)
	if err != nil {
		t.Fatalf("LoadTagsFile: %v", err)
	}
	if tags["environment"] != "ci" || tags["operator"] != "jdoe" {
		t.Errorf("unexpected tags: %+v", tags)
	}

	sessionDir := filepath.Join(dir, "sess3")
	w, err := Open(sessionDir, "sess3", "raw")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	w.SetTags(tags)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Load(sessionDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.Meta.Tags["environment"] != "ci" {
		t.Errorf("loaded session tags = %+v, want environment=ci", r.Meta.Tags)
	}
}

func TestLoadTagsFileMissing(t *testing.T) {
	if _, err := LoadTagsFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing tags file")
	}
}

func TestRecordSampleSurvivesWithoutClose(t *testing.T) {
	dir := t.TempDir()
	sessionDir := filepath.Join(dir, "sess4")

	w, err := Open(sessionDir, "sess4", "sha256_chain")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	raw := []byte{9, 8, 7, 6}
	if err := w.RecordSample(1, SampleRow{
		Round: 1, SourceName: "source_a", Category: "sensor", RawBytes: len(raw),
		ShannonBits: 7.1, MinEntropyBits: 6.0, Healthy: true, CollectedAt: time.Now(),
	}, raw); err != nil {
		t.Fatalf("RecordSample: %v", err)
	}
	// Deliberately skip Close to simulate a process kill right after the
	// record was written: samples.csv, raw_index.csv, and session.json
	// must already be readable on disk without it.

	r, err := Load(sessionDir)
	if err != nil {
		t.Fatalf("Load without Close: %v", err)
	}
	if len(r.Samples) != 1 || r.Samples[0].SourceName != "source_a" {
		t.Fatalf("unexpected samples after unclean shutdown: %+v", r.Samples)
	}
	if len(r.RawIndex) != 1 {
		t.Fatalf("expected 1 raw index row after unclean shutdown, got %d", len(r.RawIndex))
	}
	got, err := r.RawBytes(r.RawIndex[0])
	if err != nil {
		t.Fatalf("RawBytes: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("raw bytes = %v, want %v", got, raw)
	}
}

func TestWriterRecordSampleWithoutRawBytes(t *testing.T) {
	dir := t.TempDir()
	sessionDir := filepath.Join(dir, "sess2")
	w, err := Open(sessionDir, "sess2", "xor")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.RecordSample(1, SampleRow{Round: 1, SourceName: "s", RawBytes: 0}, nil); err != nil {
		t.Fatalf("RecordSample: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	r, err := Load(sessionDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(r.RawIndex) != 0 {
		t.Errorf("expected no raw index rows when raw bytes are empty, got %d", len(r.RawIndex))
	}
}
