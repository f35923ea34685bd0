package resultlog

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"league-signup/internal/models"
)

// CSVSink appends outcomes to a delimited file. Every append is rendered into a
// single buffer, written with one write call and fsynced while holding the sink
// mutex, so lines from different workers never interleave.
type CSVSink struct {
	path string

	mu   sync.Mutex
	file *os.File
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Path() string { return s.path }

// EnsureHeader creates the file with the header row only if it does not exist yet.
func (s *CSVSink) EnsureHeader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("create result log %s: %w", s.path, err)
	}
	defer f.Close()

	line, err := encodeLine(Header)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return f.Sync()
}

func (s *CSVSink) AppendOutcome(ctx context.Context, outcome models.SignupOutcome) error {
	line, err := encodeLine(Row(outcome))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open result log %s: %w", s.path, err)
		}
		s.file = f
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("append outcome for %s: %w", outcome.Email, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync result log: %w", err)
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func encodeLine(fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, fmt.Errorf("encode line: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode line: %w", err)
	}
	return buf.Bytes(), nil
}
