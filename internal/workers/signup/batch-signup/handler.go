package batchsignup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"league-signup/internal/common/camunda"
	"league-signup/internal/common/errors"
	"league-signup/internal/common/logger"
	"league-signup/internal/common/metrics"
	"league-signup/internal/common/observability"
	"league-signup/internal/common/records"
	"league-signup/internal/common/resultlog"
	"league-signup/internal/common/validation"
	"league-signup/internal/models"
)

const TaskType = "signup-batch-run"

// Handler runs one orchestrator pass per "signup-batch-run" job.
type Handler struct {
	config       *Config
	logger       logger.Logger
	sink         resultlog.Sink
	sinkFor      func(runID string) resultlog.Sink
	unit         UnitOfWork
	obs          *observability.Observability
	notifier     Notifier
	retry        *camunda.RetryConfig
	errorHandler *errors.ErrorHandler

	// live holds every finished run whose timed-out workers are still running,
	// so shutdown can wait for all of them.
	mu   sync.Mutex
	live map[*Orchestrator]struct{}
}

type HandlerOptions struct {
	Config *Config
	Logger logger.Logger
	Sink   resultlog.Sink
	// SinkFor builds a per-run sink and takes precedence over Sink.
	SinkFor       func(runID string) resultlog.Sink
	Unit          UnitOfWork
	Observability *observability.Observability
	// Notifier is optional.
	Notifier Notifier
	// Retry governs job completion; nil means camunda.DefaultRetryConfig.
	Retry *camunda.RetryConfig
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if (opts.Sink == nil && opts.SinkFor == nil) || opts.Unit == nil {
		return nil, fmt.Errorf("%s needs a result sink and a unit of work", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}

	return &Handler{
		config:       cfg,
		logger:       log,
		sink:         opts.Sink,
		sinkFor:      opts.SinkFor,
		unit:         opts.Unit,
		obs:          opts.Observability,
		notifier:     opts.Notifier,
		retry:        opts.Retry,
		errorHandler: errors.NewErrorHandler(log),
		live:         map[*Orchestrator]struct{}{},
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.JobTimeout)
	defer cancel()

	h.logger.Info("Processing signup batch run", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"worker":             TaskType,
	})

	input, err := h.parseInput(job)
	if err != nil {
		return h.fail(ctx, client, job, err)
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		return h.fail(ctx, client, job, err)
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		return h.fail(ctx, client, job, errors.NewWorkflowEngineError("complete job", err, false))
	}
	send := func(ctx context.Context) (interface{}, error) { return cmd.Send(ctx) }
	if err := h.complete(ctx, job.GetKey(), send); err != nil {
		return err
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("Signup batch run completed", map[string]interface{}{
		"jobKey":    job.GetKey(),
		"runId":     output.RunID,
		"succeeded": output.Succeeded,
		"failed":    output.Failed,
		"timedOut":  output.TimedOut,
	})
	return nil
}

// complete sends the completion with retries. Losing it after a long run would
// make the broker hand the whole batch out again.
func (h *Handler) complete(ctx context.Context, jobKey int64, send func(context.Context) (interface{}, error)) error {
	if _, err := camunda.ExecuteWithRetry(ctx, h.retry, send, "complete job"); err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": jobKey,
			"error":  err,
			"worker": TaskType,
		})
		return err
	}
	return nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) error {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
	return err
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidJobInputError(err.Error())
	}
	return ParseInput(variables)
}

// ParseInput validates job variables against GetInputSchema.
func ParseInput(variables map[string]interface{}) (*Input, error) {
	result, err := validation.ValidateDocument(GetInputSchema(), variables)
	if err != nil {
		return nil, errors.NewInvalidJobInputError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewInvalidJobInputError(result.Summary())
	}

	input := &Input{InputPath: variables["inputPath"].(string)}
	if v, ok := variables["batchSize"].(float64); ok {
		size := int(v)
		input.BatchSize = &size
	}
	if v, ok := variables["perBatchTimeoutMs"].(float64); ok {
		ms := int64(v)
		input.PerBatchTimeoutMs = &ms
	}
	return input, nil
}

// Execute loads the input file and runs it through a fresh orchestrator. Job
// variables override the configured batch size and window timeout.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	loaded, err := records.Load(input.InputPath, records.Options{Validate: true, Logger: h.logger})
	if err != nil {
		return nil, err
	}

	batchSize := h.config.BatchSize
	if input.BatchSize != nil {
		batchSize = *input.BatchSize
	}
	timeout := h.config.PerBatchTimeout
	if input.PerBatchTimeoutMs != nil {
		timeout = time.Duration(*input.PerBatchTimeoutMs) * time.Millisecond
	}

	runID := uuid.NewString()
	sink := h.sink
	if h.sinkFor != nil {
		sink = h.sinkFor(runID)
	}

	orch := NewOrchestrator(ServiceDependencies{
		Logger:        h.logger,
		Sink:          sink,
		Unit:          h.unit,
		Observability: h.obs,
		RunID:         runID,
	}, h.config)
	report, err := orch.Run(ctx, loaded.Records, batchSize, timeout)
	h.track(orch)
	if err != nil {
		return nil, err
	}

	if h.notifier != nil {
		if err := h.notifier.Notify(ctx, report); err != nil {
			h.logger.Warn("run summary not delivered", map[string]interface{}{
				"runId": report.RunID,
				"error": err,
			})
		}
	}

	out := &Output{
		RunID:       report.RunID,
		Total:       report.Total,
		Succeeded:   report.Succeeded,
		Failed:      report.Failed,
		TimedOut:    report.TimedOut,
		SinkErrors:  report.SinkErrors,
		Windows:     len(report.Windows),
		SkippedRows: len(loaded.Warnings) + loaded.Short,
	}
	for _, w := range report.Windows {
		if w.Status != models.WindowComplete {
			out.IncompleteWindows++
		}
		out.FailedIndices = append(out.FailedIndices, w.FailedIdx...)
	}
	return out, nil
}

// track keeps orch in live until its stragglers are gone. It is called once
// Run has returned, when no more workers can be added.
func (h *Handler) track(orch *Orchestrator) {
	h.mu.Lock()
	h.live[orch] = struct{}{}
	h.mu.Unlock()
	go func() {
		orch.AwaitStragglers(context.Background())
		h.mu.Lock()
		delete(h.live, orch)
		h.mu.Unlock()
	}()
}

// AwaitStragglers waits for workers left running by the timed-out windows of
// every run this handler executed, up to ctx.
func (h *Handler) AwaitStragglers(ctx context.Context) bool {
	h.mu.Lock()
	runs := make([]*Orchestrator, 0, len(h.live))
	for orch := range h.live {
		runs = append(runs, orch)
	}
	h.mu.Unlock()
	for _, orch := range runs {
		if !orch.AwaitStragglers(ctx) {
			return false
		}
	}
	return true
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) GetConfig() *Config {
	return h.config
}
