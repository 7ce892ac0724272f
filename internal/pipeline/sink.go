package pipeline

import (
	"encoding/csv"
	"os"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/roster-cli/internal/model"
)

// CSVSink is an append-only CSV output. Every Append is flushed and synced to
// disk before it returns, so a crash never loses a completed hospital.
type CSVSink struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

var _ Sink = (*CSVSink)(nil)

// CreateCSVSink truncates path and writes the output header.
func CreateCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create output")
	}

	s := &CSVSink{f: f, w: csv.NewWriter(f)}
	if err := s.write(func() error { return s.w.Write(model.OutputColumns) }); err != nil {
		_ = f.Close()
		return nil, eris.Wrap(err, "pipeline: write header")
	}
	return s, nil
}

// Append writes results as rows in model.OutputColumns order.
func (s *CSVSink) Append(results []model.ReconciliationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.write(func() error {
		for _, r := range results {
			if err := s.w.Write(r.Row()); err != nil {
				return err
			}
		}
		return nil
	})
	return eris.Wrap(err, "pipeline: append results")
}

// Close flushes and closes the underlying file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.f.Close()
		return eris.Wrap(err, "pipeline: flush output")
	}
	return eris.Wrap(s.f.Close(), "pipeline: close output")
}

func (s *CSVSink) write(fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	return s.f.Sync()
}
