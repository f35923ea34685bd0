package batchsignup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"league-signup/internal/common/camunda"
	stderrors "league-signup/internal/common/errors"
	"league-signup/internal/common/logger"
	"league-signup/internal/common/resultlog"
	"league-signup/internal/models"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, report models.RunReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

const inputCSV = `first_name,last_name,email,phone,date_of_birth
Ava,Stone,ava@example.com,555-0100,2014-05-01
Ben,Stone,ben@example.com,555-0101,2013-02-11
short,row
Cal,Reyes,cal@example.com,555-0102,2012-09-30
Dup,Reyes,ben@example.com,555-0103,2012-09-30
`

func writeInput(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "players.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newTestHandler(t *testing.T, unit UnitOfWork, sink resultlog.Sink, notifier Notifier) *Handler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.InterWindowPause = 0
	h, err := NewHandler(HandlerOptions{
		Config:   cfg,
		Logger:   logger.NewNoOpLogger(),
		Sink:     sink,
		Unit:     unit,
		Notifier: notifier,
	})
	require.NoError(t, err)
	return h
}

func TestNewHandler_RequiresCollaborators(t *testing.T) {
	_, err := NewHandler(HandlerOptions{Logger: logger.NewNoOpLogger()})
	assert.Error(t, err)

	bad := DefaultConfig()
	bad.BatchSize = 0
	_, err = NewHandler(HandlerOptions{
		Config: bad,
		Sink:   resultlog.NewMemorySink(),
		Unit:   newFakeUnit(),
	})
	assert.ErrorContains(t, err, "batch_size")
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name      string
		variables map[string]interface{}
		wantErr   bool
		batchSize *int
	}{
		{
			name:      "path only",
			variables: map[string]interface{}{"inputPath": "/data/players.csv"},
		},
		{
			name:      "with overrides",
			variables: map[string]interface{}{"inputPath": "/data/players.csv", "batchSize": float64(4), "perBatchTimeoutMs": float64(60000)},
			batchSize: intPtr(4),
		},
		{
			name:      "missing path",
			variables: map[string]interface{}{"batchSize": float64(4)},
			wantErr:   true,
		},
		{
			name:      "zero batch size",
			variables: map[string]interface{}{"inputPath": "/data/players.csv", "batchSize": float64(0)},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := ParseInput(tt.variables)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, stderrors.ErrCodeInvalidJobInput, stderrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "/data/players.csv", input.InputPath)
			assert.Equal(t, tt.batchSize, input.BatchSize)
		})
	}
}

func TestExecute_RunsLoadedRecords(t *testing.T) {
	unit := newFakeUnit()
	unit.fail["cal@example.com"] = errors.New("otp rejected")
	sink := resultlog.NewMemorySink()
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(r models.RunReport) bool {
		return r.Total == 3 && r.Failed == 1
	})).Return(nil).Once()
	h := newTestHandler(t, unit, sink, notifier)

	out, err := h.Execute(context.Background(), &Input{InputPath: writeInput(t, inputCSV), BatchSize: intPtr(2)})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Total)
	assert.Equal(t, 2, out.Succeeded)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 2, out.Windows)
	assert.Equal(t, 0, out.IncompleteWindows)
	assert.Equal(t, 2, out.SkippedRows)
	assert.Equal(t, []int{2}, out.FailedIndices)
	assert.NotEmpty(t, out.RunID)
	assert.Len(t, sink.Outcomes(), 2)
	notifier.AssertExpectations(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.True(t, h.AwaitStragglers(ctx))
}

func TestExecute_NotifierFailureDoesNotFailTheJob(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("ses throttled"))
	h := newTestHandler(t, newFakeUnit(), resultlog.NewMemorySink(), notifier)

	out, err := h.Execute(context.Background(), &Input{InputPath: writeInput(t, inputCSV)})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Succeeded)
}

func TestExecute_InputErrors(t *testing.T) {
	h := newTestHandler(t, newFakeUnit(), resultlog.NewMemorySink(), nil)

	_, err := h.Execute(context.Background(), &Input{InputPath: filepath.Join(t.TempDir(), "missing.csv")})
	assert.Equal(t, stderrors.ErrCodeInputLoadFailed, stderrors.CodeOf(err))

	_, err = h.Execute(context.Background(), &Input{InputPath: writeInput(t, "first_name,last_name,email,phone,date_of_birth\n")})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestExecute_TimeoutOverride(t *testing.T) {
	unit := newFakeUnit()
	for _, email := range []string{"ava@example.com", "ben@example.com", "cal@example.com"} {
		unit.hang[email] = true
	}
	t.Cleanup(func() { close(unit.release) })
	h := newTestHandler(t, unit, resultlog.NewMemorySink(), nil)
	ms := int64(20)

	out, err := h.Execute(context.Background(), &Input{InputPath: writeInput(t, inputCSV), PerBatchTimeoutMs: &ms})
	require.NoError(t, err)
	assert.Equal(t, 3, out.TimedOut)
	assert.Equal(t, 1, out.IncompleteWindows)
}

func intPtr(v int) *int { return &v }

func TestAwaitStragglers_CoversEveryRun(t *testing.T) {
	unit := newFakeUnit()
	unit.hang["ava@example.com"] = true
	h := newTestHandler(t, unit, resultlog.NewMemorySink(), nil)
	ms := int64(20)

	first, err := h.Execute(context.Background(), &Input{InputPath: writeInput(t, inputCSV), PerBatchTimeoutMs: &ms})
	require.NoError(t, err)
	assert.Equal(t, 1, first.TimedOut)

	unit.mu.Lock()
	delete(unit.hang, "ava@example.com")
	unit.mu.Unlock()
	second, err := h.Execute(context.Background(), &Input{InputPath: writeInput(t, inputCSV)})
	require.NoError(t, err)
	assert.Equal(t, 0, second.TimedOut)

	short, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.False(t, h.AwaitStragglers(short), "the first run still has a wedged worker")

	close(unit.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.True(t, h.AwaitStragglers(ctx))
}

func TestComplete_RetriesTransientFailures(t *testing.T) {
	cfg := DefaultConfig()
	h, err := NewHandler(HandlerOptions{
		Config: cfg,
		Logger: logger.NewNoOpLogger(),
		Sink:   resultlog.NewMemorySink(),
		Unit:   newFakeUnit(),
		Retry:  &camunda.RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})
	require.NoError(t, err)

	calls := 0
	err = h.complete(context.Background(), 42, func(context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("rpc error: code = Unavailable desc = connection refused")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = h.complete(context.Background(), 42, func(context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("rpc error: code = NotFound desc = job 42 not found")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, stderrors.ErrCodeWorkflowEngine, stderrors.CodeOf(err))
}

func TestExecute_BuildsSinkPerRun(t *testing.T) {
	var runIDs []string
	sink := resultlog.NewMemorySink()
	h, err := NewHandler(HandlerOptions{
		Logger: logger.NewNoOpLogger(),
		SinkFor: func(runID string) resultlog.Sink {
			runIDs = append(runIDs, runID)
			return sink
		},
		Unit: newFakeUnit(),
	})
	require.NoError(t, err)
	h.config.InterWindowPause = 0

	first, err := h.Execute(context.Background(), &Input{InputPath: writeInput(t, inputCSV)})
	require.NoError(t, err)
	second, err := h.Execute(context.Background(), &Input{InputPath: writeInput(t, inputCSV)})
	require.NoError(t, err)

	assert.Equal(t, []string{first.RunID, second.RunID}, runIDs)
	assert.NotEqual(t, first.RunID, second.RunID)
}
