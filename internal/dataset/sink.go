package dataset

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Sink receives generated samples
type Sink interface {
	Write(ctx context.Context, samples []Sample) error
	Close() error
}

// Counter is implemented by sinks that can count the samples they hold
// per label, across every run that wrote to them.
type Counter interface {
	Counts(ctx context.Context) (map[string]int, error)
}

var _ Counter = (*SQLiteSink)(nil)

// OpenSink creates a sink of the given format at path
func OpenSink(format, path string) (Sink, error) {
	switch format {
	case "sqlite":
		return NewSQLiteSink(path)
	case "csv":
		return NewCSVSink(path)
	case "jsonl":
		return NewJSONLSink(path)
	default:
		return nil, fmt.Errorf("unknown dataset format %q", format)
	}
}

// SQLiteSink stores samples in a SQLite database
type SQLiteSink struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteSink opens (or creates) the database and runs migrations
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("sqlite dataset opened", "path", path)
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS samples (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT NOT NULL,
			start_ts   INTEGER NOT NULL,
			end_ts     INTEGER NOT NULL,
			label      TEXT NOT NULL,
			class      INTEGER NOT NULL,
			bars       INTEGER NOT NULL,
			ohlc       TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_symbol ON samples(symbol, end_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_label ON samples(label)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Write inserts samples in one transaction
func (s *SQLiteSink) Write(ctx context.Context, samples []Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples
		(symbol, start_ts, end_ts, label, class, bars, ohlc, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, sm := range samples {
		ohlc, err := json.Marshal(sm.OHLC)
		if err != nil {
			return fmt.Errorf("encode window: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			sm.Symbol, sm.Start.Unix(), sm.End.Unix(),
			sm.Label.String(), sm.Class, len(sm.OHLC), string(ohlc), now,
		); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// Counts returns the number of stored samples per label
func (s *SQLiteSink) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label, COUNT(*) FROM samples GROUP BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

// Close closes the database
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// CSVSink writes one row per sample with the window flattened as
// open_0, high_0, low_0, close_0, open_1, ...
type CSVSink struct {
	f      *os.File
	w      *csv.Writer
	header bool
	mu     sync.Mutex
}

// NewCSVSink creates or truncates the file at path
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv: %w", err)
	}
	return &CSVSink{f: f, w: csv.NewWriter(f)}, nil
}

func csvHeader(bars int) []string {
	header := []string{"symbol", "start", "end", "label", "class"}
	for i := 0; i < bars; i++ {
		n := strconv.Itoa(i)
		header = append(header, "open_"+n, "high_"+n, "low_"+n, "close_"+n)
	}
	return header
}

// Write appends samples. The header is sized by the first sample.
func (s *CSVSink) Write(_ context.Context, samples []Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sm := range samples {
		if !s.header {
			if err := s.w.Write(csvHeader(len(sm.OHLC))); err != nil {
				return err
			}
			s.header = true
		}
		record := []string{
			sm.Symbol,
			sm.Start.Format(time.DateOnly),
			sm.End.Format(time.DateOnly),
			sm.Label.String(),
			strconv.Itoa(sm.Class),
		}
		for _, bar := range sm.OHLC {
			for _, x := range bar {
				record = append(record, strconv.FormatFloat(x, 'f', -1, 64))
			}
		}
		if err := s.w.Write(record); err != nil {
			return err
		}
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the file
func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// JSONLSink writes one JSON object per line
type JSONLSink struct {
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
	mu  sync.Mutex
}

// NewJSONLSink creates or truncates the file at path
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create jsonl: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &JSONLSink{f: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Write appends samples
func (s *JSONLSink) Write(_ context.Context, samples []Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sm := range samples {
		if err := s.enc.Encode(sm); err != nil {
			return err
		}
	}
	return s.buf.Flush()
}

// Close flushes and closes the file
func (s *JSONLSink) Close() error {
	if err := s.buf.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
