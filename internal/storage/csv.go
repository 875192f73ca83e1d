package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/you/go-flightgrid/internal/results"
	"github.com/you/go-flightgrid/internal/service"
)

// FileName returns the CSV file name of a sweep, e.g.
// roundtrip_flights_FRA_BKK.csv.
func FileName(c service.Constraints) string {
	mode := "oneway"
	if c.RoundTrip {
		mode = "roundtrip"
	}
	return fmt.Sprintf("%s_flights_%s_%s.csv", mode,
		strings.ToUpper(c.DepartureID), strings.ToUpper(c.ArrivalID))
}

// WriteCSV writes the header and one record per row.
func WriteCSV(w io.Writer, rows []results.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(results.Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVSink rewrites a CSV file with the full table on every save. The file
// is replaced atomically, so readers never see a half-written table.
type CSVSink struct {
	mu   sync.Mutex
	path string
}

func NewCSVSink(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &CSVSink{path: path}, nil
}

func (s *CSVSink) Path() string { return s.path }

func (s *CSVSink) Save(ctx context.Context, rows []results.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("csv: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("csv: chmod %s: %w", tmp.Name(), err)
	}
	if err := WriteCSV(tmp, rows); err != nil {
		tmp.Close()
		return fmt.Errorf("csv: write %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("csv: close %s: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("csv: replace %s: %w", s.path, err)
	}
	return nil
}

// CSVSinks returns a sink factory writing each sweep to FileName(c) under dir.
func CSVSinks(dir string) service.SinkFactory {
	return func(_ string, c service.Constraints) (results.Sink, error) {
		return NewCSVSink(filepath.Join(dir, FileName(c)))
	}
}
