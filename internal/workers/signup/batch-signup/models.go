package batchsignup

import (
	"context"

	"league-signup/internal/common/logger"
	"league-signup/internal/common/observability"
	"league-signup/internal/common/resultlog"
	"league-signup/internal/models"
)

// UnitOfWork signs up one record. It owns its browser session for the whole call
// and must release it on every return path. ctx is cancelled when the window
// times out.
type UnitOfWork interface {
	Execute(ctx context.Context, record models.SignupRecord) error
}

// UnitOfWorkFunc adapts a function to UnitOfWork.
type UnitOfWorkFunc func(ctx context.Context, record models.SignupRecord) error

func (f UnitOfWorkFunc) Execute(ctx context.Context, record models.SignupRecord) error {
	return f(ctx, record)
}

// Window is one contiguous slice of the input, processed by its own pool.
type Window struct {
	Index   int
	Start   int // source index of Records[0]
	Records []models.SignupRecord
}

type ServiceDependencies struct {
	Logger logger.Logger
	Sink   resultlog.Sink
	Unit   UnitOfWork
	// Observability is optional.
	Observability *observability.Observability
	RunID         string
}

// Notifier is told about every finished run.
type Notifier interface {
	Notify(ctx context.Context, report models.RunReport) error
}

// Input is the variable set of a "signup-batch-run" job.
type Input struct {
	InputPath         string `json:"inputPath"`
	BatchSize         *int   `json:"batchSize,omitempty"`
	PerBatchTimeoutMs *int64 `json:"perBatchTimeoutMs,omitempty"`
}

type Output struct {
	RunID             string `json:"runId"`
	Total             int    `json:"total"`
	Succeeded         int    `json:"succeeded"`
	Failed            int    `json:"failed"`
	TimedOut          int    `json:"timedOut"`
	SinkErrors        int    `json:"sinkErrors"`
	Windows           int    `json:"windows"`
	IncompleteWindows int    `json:"incompleteWindows"`
	SkippedRows       int    `json:"skippedRows"`
	FailedIndices     []int  `json:"failedIndices,omitempty"`
}

// GetInputSchema describes the variables a "signup-batch-run" job must carry.
func GetInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"inputPath"},
		"properties": map[string]interface{}{
			"inputPath":         map[string]interface{}{"type": "string", "minLength": 1},
			"batchSize":         map[string]interface{}{"type": "integer", "minimum": 1},
			"perBatchTimeoutMs": map[string]interface{}{"type": "integer", "minimum": 0},
		},
	}
}

type unitResult struct {
	index   int
	email   string
	err     error
	sinkErr bool
	elapsed float64
}
