package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/you/go-flightgrid/internal/results"
	"github.com/you/go-flightgrid/internal/service"
	_ "modernc.org/sqlite"
)

var _ service.RunStore = (*SQLiteStore)(nil)

// SQLiteStore keeps sweeps and their rows in a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	mu    sync.Mutex
	saved map[string]int // rows already written per run
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, saved: make(map[string]int)}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			constraints  TEXT NOT NULL,
			status       TEXT NOT NULL,
			summary      TEXT,
			error        TEXT,
			started_at   TEXT NOT NULL,
			finished_at  TEXT
		);

		CREATE TABLE IF NOT EXISTS result_rows (
			run_id          TEXT NOT NULL,
			seq             INTEGER NOT NULL,
			price           REAL NOT NULL,
			departure_date  TEXT NOT NULL,
			data            TEXT NOT NULL,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
		CREATE INDEX IF NOT EXISTS idx_result_rows_price ON result_rows(run_id, price);
	`)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) StartRun(ctx context.Context, info service.RunInfo) error {
	constraints, err := json.Marshal(info.Constraints)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, constraints, status, started_at)
		VALUES (?, ?, ?, ?)
	`, info.ID, string(constraints), string(info.Status), info.StartedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: start run %s: %w", info.ID, err)
	}
	return nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, info service.RunInfo) error {
	summary, err := json.Marshal(info.Summary)
	if err != nil {
		return err
	}
	var finished sql.NullString
	if info.FinishedAt != nil {
		finished = sql.NullString{String: info.FinishedAt.Format(time.RFC3339Nano), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, summary = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, string(info.Status), string(summary), info.Error, finished, info.ID)
	if err != nil {
		return fmt.Errorf("sqlite: finish run %s: %w", info.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlite: finish run %s: %w", info.ID, service.ErrRunNotFound)
	}

	s.mu.Lock()
	delete(s.saved, info.ID)
	s.mu.Unlock()
	return nil
}

// Sink returns a sink appending the rows of runID that are not stored yet.
func (s *SQLiteStore) Sink(runID string) results.Sink {
	return results.SinkFunc(func(ctx context.Context, rows []results.Row) error {
		return s.appendRows(ctx, runID, rows)
	})
}

func (s *SQLiteStore) appendRows(ctx context.Context, runID string, rows []results.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.saved[runID]
	if from >= len(rows) {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO result_rows (run_id, seq, price, departure_date, data)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := from; i < len(rows); i++ {
		data, err := json.Marshal(rows[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, runID, i, rows[i].Price, rows[i].DepartureDateOutgoing, string(data)); err != nil {
			return fmt.Errorf("sqlite: insert row %d of run %s: %w", i, runID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.saved[runID] = len(rows)
	return nil
}

func (s *SQLiteStore) LoadRun(ctx context.Context, runID string) (service.RunInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, constraints, status, summary, error, started_at, finished_at
		FROM runs WHERE id = ?
	`, runID)
	info, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return service.RunInfo{}, service.ErrRunNotFound
	}
	return info, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]service.RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, constraints, status, summary, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []service.RunInfo
	for rows.Next() {
		info, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LoadRows(ctx context.Context, runID string) ([]results.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM result_rows WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []results.Row
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r results.Row
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("sqlite: decode row of run %s: %w", runID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (service.RunInfo, error) {
	var (
		info                service.RunInfo
		constraints, status string
		summary, errText    sql.NullString
		startedAt           string
		finishedAt          sql.NullString
	)
	if err := sc.Scan(&info.ID, &constraints, &status, &summary, &errText, &startedAt, &finishedAt); err != nil {
		return service.RunInfo{}, err
	}
	if err := json.Unmarshal([]byte(constraints), &info.Constraints); err != nil {
		return service.RunInfo{}, fmt.Errorf("sqlite: decode constraints of run %s: %w", info.ID, err)
	}
	if summary.Valid && summary.String != "" {
		if err := json.Unmarshal([]byte(summary.String), &info.Summary); err != nil {
			return service.RunInfo{}, fmt.Errorf("sqlite: decode summary of run %s: %w", info.ID, err)
		}
	}
	info.Status = service.RunStatus(status)
	info.Error = errText.String
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		info.StartedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			info.FinishedAt = &t
		}
	}
	return info, nil
}
