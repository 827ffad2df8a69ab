// Package session writes and reads on-disk analysis sessions: a directory
// holding session.json (run metadata), samples.csv (one row per analyzed
// source), raw.bin (the concatenated raw byte captures), and raw_index.csv
// (byte-offset index into raw.bin per source per collection round).
package session

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Meta is the session.json payload.
type Meta struct {
	SessionID      string    `json:"session_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Conditioning   string    `json:"conditioning"`
	SourceCount    int       `json:"source_count"`
	TotalRawBytes  uint64    `json:"total_raw_bytes"`
	TotalOutBytes  uint64    `json:"total_out_bytes"`
	Hostname       string    `json:"hostname"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// LoadTagsFile reads a YAML document of free-form string tags (e.g.
// `environment: ci`, `operator: jdoe`) to attach to a session's metadata.
// Accepted via the CLI as `--tags-file x.yaml`.
func LoadTagsFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tags file: %w", err)
	}
	var tags map[string]string
	if err := yaml.Unmarshal(raw, &tags); err != nil {
		return nil, fmt.Errorf("parse tags file: %w", err)
	}
	return tags, nil
}

// SetTags attaches tags to the session's metadata; it overwrites any tags
// set by a previous call.
func (w *Writer) SetTags(tags map[string]string) {
	w.meta.Tags = tags
}

// SampleRow is one samples.csv record: a single source's result for one
// collection round.
type SampleRow struct {
	Round          int
	SourceName     string
	Category       string
	RawBytes       int
	ShannonBits    float64
	MinEntropyBits float64
	Healthy        bool
	CollectedAt    time.Time
}

// RawIndexRow records the byte range in raw.bin contributed by one source in
// one round.
type RawIndexRow struct {
	Round      int
	SourceName string
	Offset     int64
	Length     int64
}

// Writer accumulates samples and raw bytes for one session, flushing each
// record to disk as it arrives so a process kill mid-session only loses the
// sample currently in flight, never the ones already recorded.
type Writer struct {
	dir       string
	meta      Meta
	samples   []SampleRow
	rawIndex  []RawIndexRow
	rawOffset int64

	rawFile      *os.File
	samplesFile  *os.File
	samplesCSV   *csv.Writer
	rawIndexFile *os.File
	rawIndexCSV  *csv.Writer
}

// Open creates (or truncates) a session directory at dir and opens raw.bin,
// samples.csv, and raw_index.csv for incremental, flush-per-record writes.
func Open(dir string, sessionID string, conditioning string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	rawFile, err := os.OpenFile(filepath.Join(dir, "raw.bin"), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open raw.bin: %w", err)
	}
	samplesFile, err := os.OpenFile(filepath.Join(dir, "samples.csv"), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		rawFile.Close()
		return nil, fmt.Errorf("open samples.csv: %w", err)
	}
	rawIndexFile, err := os.OpenFile(filepath.Join(dir, "raw_index.csv"), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		rawFile.Close()
		samplesFile.Close()
		return nil, fmt.Errorf("open raw_index.csv: %w", err)
	}

	samplesCSV := csv.NewWriter(samplesFile)
	rawIndexCSV := csv.NewWriter(rawIndexFile)
	if err := samplesCSV.Write([]string{"round", "source_name", "category", "raw_bytes", "shannon_bits", "min_entropy_bits", "healthy", "collected_at"}); err != nil {
		return nil, fmt.Errorf("write samples.csv header: %w", err)
	}
	if err := rawIndexCSV.Write([]string{"round", "source_name", "offset", "length"}); err != nil {
		return nil, fmt.Errorf("write raw_index.csv header: %w", err)
	}
	samplesCSV.Flush()
	rawIndexCSV.Flush()
	if err := samplesFile.Sync(); err != nil {
		return nil, fmt.Errorf("sync samples.csv: %w", err)
	}
	if err := rawIndexFile.Sync(); err != nil {
		return nil, fmt.Errorf("sync raw_index.csv: %w", err)
	}

	hostname, _ := os.Hostname()
	w := &Writer{
		dir:          dir,
		rawFile:      rawFile,
		samplesFile:  samplesFile,
		samplesCSV:   samplesCSV,
		rawIndexFile: rawIndexFile,
		rawIndexCSV:  rawIndexCSV,
		meta: Meta{
			SessionID:    sessionID,
			StartedAt:    time.Now(),
			Conditioning: conditioning,
			Hostname:     hostname,
		},
	}
	if err := writeJSON(filepath.Join(dir, "session.json"), w.meta); err != nil {
		return nil, err
	}
	return w, nil
}

// RecordSample appends a sample row and, if raw is non-empty, the
// corresponding raw bytes and index row, flushing samples.csv,
// raw_index.csv, and session.json to disk before returning so a partial
// session (process kill right after this call) is always reconstructible
// from what has been recorded so far.
func (w *Writer) RecordSample(round int, row SampleRow, raw []byte) error {
	w.samples = append(w.samples, row)
	w.meta.SourceCount = maxInt(w.meta.SourceCount, round)
	w.meta.TotalRawBytes += uint64(row.RawBytes)

	if err := writeSampleRow(w.samplesCSV, row); err != nil {
		return fmt.Errorf("append samples.csv: %w", err)
	}
	if err := syncFlush(w.samplesCSV, w.samplesFile); err != nil {
		return fmt.Errorf("flush samples.csv: %w", err)
	}

	if len(raw) > 0 {
		n, err := w.rawFile.Write(raw)
		if err != nil {
			return fmt.Errorf("append raw.bin: %w", err)
		}
		if err := w.rawFile.Sync(); err != nil {
			return fmt.Errorf("sync raw.bin: %w", err)
		}
		idx := RawIndexRow{Round: round, SourceName: row.SourceName, Offset: w.rawOffset, Length: int64(n)}
		w.rawIndex = append(w.rawIndex, idx)
		w.rawOffset += int64(n)

		if err := writeRawIndexRow(w.rawIndexCSV, idx); err != nil {
			return fmt.Errorf("append raw_index.csv: %w", err)
		}
		if err := syncFlush(w.rawIndexCSV, w.rawIndexFile); err != nil {
			return fmt.Errorf("flush raw_index.csv: %w", err)
		}
	}

	if err := writeJSON(filepath.Join(w.dir, "session.json"), w.meta); err != nil {
		return fmt.Errorf("update session.json: %w", err)
	}
	return nil
}

func syncFlush(w *csv.Writer, f *os.File) error {
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// RecordOutputBytes updates the running output-byte total after the
// conditioning gateway produces a chunk.
func (w *Writer) RecordOutputBytes(n int) {
	w.meta.TotalOutBytes += uint64(n)
}

// Meta returns the session's metadata as it stands so far (FinishedAt is
// only set once Close runs).
func (w *Writer) Meta() Meta {
	return w.meta
}

// Samples returns the sample rows recorded so far.
func (w *Writer) Samples() []SampleRow {
	return w.samples
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Close writes the final session.json (with FinishedAt set) and closes
// raw.bin, samples.csv, and raw_index.csv. samples.csv and raw_index.csv
// were already flushed incrementally by RecordSample, so this only has to
// finalize the metadata and release file handles.
func (w *Writer) Close() error {
	w.meta.FinishedAt = time.Now()
	defer w.rawFile.Close()
	defer w.samplesFile.Close()
	defer w.rawIndexFile.Close()

	return writeJSON(filepath.Join(w.dir, "session.json"), w.meta)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Sync()
}

func writeSampleRow(w *csv.Writer, r SampleRow) error {
	rec := []string{
		strconv.Itoa(r.Round), r.SourceName, r.Category, strconv.Itoa(r.RawBytes),
		strconv.FormatFloat(r.ShannonBits, 'f', 6, 64),
		strconv.FormatFloat(r.MinEntropyBits, 'f', 6, 64),
		strconv.FormatBool(r.Healthy), r.CollectedAt.Format(time.RFC3339Nano),
	}
	return w.Write(rec)
}

func writeRawIndexRow(w *csv.Writer, r RawIndexRow) error {
	rec := []string{
		strconv.Itoa(r.Round), r.SourceName,
		strconv.FormatInt(r.Offset, 10), strconv.FormatInt(r.Length, 10),
	}
	return w.Write(rec)
}

// Reader loads a previously written session directory back into memory.
type Reader struct {
	Meta     Meta
	Samples  []SampleRow
	RawIndex []RawIndexRow
	dir      string
}

// Load reads session.json, samples.csv, and raw_index.csv from dir.
func Load(dir string) (*Reader, error) {
	r := &Reader{dir: dir}

	metaBytes, err := os.ReadFile(filepath.Join(dir, "session.json"))
	if err != nil {
		return nil, fmt.Errorf("read session.json: %w", err)
	}
	if err := json.Unmarshal(metaBytes, &r.Meta); err != nil {
		return nil, fmt.Errorf("parse session.json: %w", err)
	}

	samples, err := readSamplesCSV(filepath.Join(dir, "samples.csv"))
	if err != nil {
		return nil, err
	}
	r.Samples = samples

	rawIndex, err := readRawIndexCSV(filepath.Join(dir, "raw_index.csv"))
	if err != nil {
		return nil, err
	}
	r.RawIndex = rawIndex
	return r, nil
}

// RawBytes reads the raw bytes for one RawIndexRow directly from raw.bin.
func (r *Reader) RawBytes(idx RawIndexRow) ([]byte, error) {
	f, err := os.Open(filepath.Join(r.dir, "raw.bin"))
	if err != nil {
		return nil, fmt.Errorf("open raw.bin: %w", err)
	}
	defer f.Close()
	buf := make([]byte, idx.Length)
	if _, err := f.ReadAt(buf, idx.Offset); err != nil {
		return nil, fmt.Errorf("read raw.bin range: %w", err)
	}
	return buf, nil
}

func readSamplesCSV(path string) ([]SampleRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open samples.csv: %w", err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse samples.csv: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	rows := make([]SampleRow, 0, len(recs)-1)
	for _, rec := range recs[1:] {
		if len(rec) < 8 {
			continue
		}
		round, _ := strconv.Atoi(rec[0])
		rawBytes, _ := strconv.Atoi(rec[3])
		shannon, _ := strconv.ParseFloat(rec[4], 64)
		minH, _ := strconv.ParseFloat(rec[5], 64)
		healthy, _ := strconv.ParseBool(rec[6])
		collectedAt, _ := time.Parse(time.RFC3339Nano, rec[7])
		rows = append(rows, SampleRow{
			Round: round, SourceName: rec[1], Category: rec[2], RawBytes: rawBytes,
			ShannonBits: shannon, MinEntropyBits: minH, Healthy: healthy, CollectedAt: collectedAt,
		})
	}
	return rows, nil
}

func readRawIndexCSV(path string) ([]RawIndexRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw_index.csv: %w", err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse raw_index.csv: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	rows := make([]RawIndexRow, 0, len(recs)-1)
	for _, rec := range recs[1:] {
		if len(rec) < 4 {
			continue
		}
		round, _ := strconv.Atoi(rec[0])
		offset, _ := strconv.ParseInt(rec[2], 10, 64)
		length, _ := strconv.ParseInt(rec[3], 10, 64)
		rows = append(rows, RawIndexRow{Round: round, SourceName: rec[1], Offset: offset, Length: length})
	}
	return rows, nil
}
