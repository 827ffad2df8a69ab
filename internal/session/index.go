package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Index is a cross-session SQLite catalog, letting a long-running deployment
// list, filter, and aggregate over many analysis sessions without opening
// every directory's CSVs.
const indexSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id       TEXT PRIMARY KEY,
    dir              TEXT NOT NULL,
    started_at       INTEGER NOT NULL,
    finished_at      INTEGER,
    conditioning     TEXT NOT NULL,
    source_count     INTEGER NOT NULL,
    total_raw_bytes  INTEGER NOT NULL,
    total_out_bytes  INTEGER NOT NULL,
    hostname         TEXT
);

CREATE TABLE IF NOT EXISTS session_sources (
    session_id       TEXT NOT NULL REFERENCES sessions(session_id),
    source_name      TEXT NOT NULL,
    category         TEXT NOT NULL,
    min_entropy_bits REAL NOT NULL,
    healthy          INTEGER NOT NULL,
    PRIMARY KEY (session_id, source_name)
);

CREATE INDEX IF NOT EXISTS idx_session_sources_name ON session_sources(source_name);
`

// Index wraps the catalog database.
type Index struct {
	db *sql.DB
}

// OpenIndex opens or creates the session index database at path.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open session index: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply session index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying database.
func (idx *Index) Close() error {
	if idx.db != nil {
		return idx.db.Close()
	}
	return nil
}

// Record upserts a session's metadata and per-source summary into the
// index, typically called right after Writer.Close.
func (idx *Index) Record(meta Meta, samples []SampleRow) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("begin index transaction: %w", err)
	}
	defer tx.Rollback()

	dir := ""
	_, err = tx.Exec(`
		INSERT INTO sessions (session_id, dir, started_at, finished_at, conditioning, source_count, total_raw_bytes, total_out_bytes, hostname)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			source_count = excluded.source_count,
			total_raw_bytes = excluded.total_raw_bytes,
			total_out_bytes = excluded.total_out_bytes`,
		meta.SessionID, dir, meta.StartedAt.Unix(), meta.FinishedAt.Unix(), meta.Conditioning,
		meta.SourceCount, meta.TotalRawBytes, meta.TotalOutBytes, meta.Hostname,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	latest := make(map[string]SampleRow)
	for _, s := range samples {
		latest[s.SourceName] = s
	}
	for _, s := range latest {
		if _, err := tx.Exec(`
			INSERT INTO session_sources (session_id, source_name, category, min_entropy_bits, healthy)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(session_id, source_name) DO UPDATE SET
				min_entropy_bits = excluded.min_entropy_bits,
				healthy = excluded.healthy`,
			meta.SessionID, s.SourceName, s.Category, s.MinEntropyBits, s.Healthy,
		); err != nil {
			return fmt.Errorf("insert session source: %w", err)
		}
	}

	return tx.Commit()
}

// SessionSummary is one row of ListSessions output.
type SessionSummary struct {
	SessionID     string
	StartedAt     time.Time
	FinishedAt    time.Time
	Conditioning  string
	SourceCount   int
	TotalRawBytes int64
	TotalOutBytes int64
}

// ListSessions returns up to limit recorded sessions ordered by start time,
// most recent first.
func (idx *Index) ListSessions(limit int) ([]SessionSummary, error) {
	rows, err := idx.db.Query(`
		SELECT session_id, started_at, finished_at, conditioning, source_count, total_raw_bytes, total_out_bytes
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var started, finished int64
		if err := rows.Scan(&s.SessionID, &started, &finished, &s.Conditioning, &s.SourceCount, &s.TotalRawBytes, &s.TotalOutBytes); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		s.StartedAt = time.Unix(started, 0)
		s.FinishedAt = time.Unix(finished, 0)
		out = append(out, s)
	}
	return out, rows.Err()
}

// SourceHistory returns the min-entropy trend for one source name across
// every recorded session, most recent first.
func (idx *Index) SourceHistory(sourceName string, limit int) ([]float64, error) {
	rows, err := idx.db.Query(`
		SELECT ss.min_entropy_bits FROM session_sources ss
		JOIN sessions s ON s.session_id = ss.session_id
		WHERE ss.source_name = ?
		ORDER BY s.started_at DESC LIMIT ?`, sourceName, limit)
	if err != nil {
		return nil, fmt.Errorf("query source history: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan source history row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
