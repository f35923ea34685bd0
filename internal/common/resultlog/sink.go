// Package resultlog holds the append-only destinations for successful signups.
package resultlog

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	stderrors "league-signup/internal/common/errors"
	"league-signup/internal/models"
)

// Header is the column list of the delimited result log.
var Header = []string{"email", "timestamp", "index", "worker"}

// Sink is a durable, append-only log of successful signups. Implementations must
// allow concurrent AppendOutcome calls and must not return before the outcome is
// durable.
type Sink interface {
	Name() string
	// EnsureHeader prepares the store. It is idempotent and is called once before
	// any worker starts.
	EnsureHeader(ctx context.Context) error
	AppendOutcome(ctx context.Context, outcome models.SignupOutcome) error
	Close() error
}

// Row renders an outcome in Header order.
func Row(o models.SignupOutcome) []string {
	return []string{
		o.Email,
		o.Timestamp.UTC().Format(time.RFC3339),
		strconv.Itoa(o.SourceIndex),
		o.WorkerIdentity,
	}
}

// MultiSink fans every call out to all of its sinks. The first sink is the primary
// log; failures of any sink are joined into the returned error.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Name() string {
	name := "multi("
	for i, s := range m.sinks {
		if i > 0 {
			name += ","
		}
		name += s.Name()
	}
	return name + ")"
}

func (m *MultiSink) EnsureHeader(ctx context.Context) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.EnsureHeader(ctx); err != nil {
			errs = append(errs, stderrors.NewResultSinkError(s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) AppendOutcome(ctx context.Context, outcome models.SignupOutcome) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.AppendOutcome(ctx, outcome); err != nil {
			errs = append(errs, stderrors.NewResultSinkError(s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// MemorySink keeps outcomes in memory. It backs tests and dry runs.
type MemorySink struct {
	mu       sync.Mutex
	headers  int
	outcomes []models.SignupOutcome
	failOn   map[string]error
}

func NewMemorySink() *MemorySink {
	return &MemorySink{failOn: map[string]error{}}
}

func (m *MemorySink) Name() string { return "memory" }

func (m *MemorySink) EnsureHeader(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.headers == 0 {
		m.headers = 1
	}
	return nil
}

// FailFor makes AppendOutcome return err for email.
func (m *MemorySink) FailFor(email string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[email] = err
}

func (m *MemorySink) AppendOutcome(ctx context.Context, outcome models.SignupOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failOn[outcome.Email]; ok {
		return err
	}
	m.outcomes = append(m.outcomes, outcome)
	return nil
}

// Outcomes returns a copy of the recorded outcomes in append order.
func (m *MemorySink) Outcomes() []models.SignupOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SignupOutcome, len(m.outcomes))
	copy(out, m.outcomes)
	return out
}

// HeaderCount reports how many header rows the store holds.
func (m *MemorySink) HeaderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.headers
}

func (m *MemorySink) Close() error { return nil }
