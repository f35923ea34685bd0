package batchsignup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	stderrors "league-signup/internal/common/errors"
	"league-signup/internal/common/logger"
	"league-signup/internal/common/metrics"
	"league-signup/internal/common/observability"
	"league-signup/internal/common/resultlog"
	"league-signup/internal/models"
)

// ErrEmptyInput aborts a run that was given no records.
var ErrEmptyInput = stderrors.NewEmptyInputError()

// Orchestrator drives signup records through sequential windows. Within a window
// every record gets its own goroutine; windows never overlap.
type Orchestrator struct {
	config *Config
	logger logger.Logger
	sink   resultlog.Sink
	unit   UnitOfWork
	obs    *observability.Observability
	runID  string

	// stragglers tracks workers abandoned by a timed-out window.
	stragglers sync.WaitGroup
}

func NewOrchestrator(deps ServiceDependencies, config *Config) *Orchestrator {
	runID := deps.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Orchestrator{
		config: config,
		logger: deps.Logger.WithFields(map[string]interface{}{"runId": runID}),
		sink:   deps.Sink,
		unit:   deps.Unit,
		obs:    deps.Observability,
		runID:  runID,
	}
}

func (o *Orchestrator) RunID() string { return o.runID }

// Run signs up every record, batchSize at a time, giving each window at most
// perBatchTimeout (zero means no limit). Individual failures are logged and
// counted, never returned: the only errors are ErrEmptyInput and an invalid
// batch size. Cancelling ctx stops the current window and skips the rest.
func (o *Orchestrator) Run(ctx context.Context, records []models.SignupRecord, batchSize int, perBatchTimeout time.Duration) (models.RunReport, error) {
	report := models.RunReport{RunID: o.runID, Total: len(records), StartedAt: time.Now().UTC()}

	if len(records) == 0 {
		o.logger.Error("no signup records to process", nil)
		return report, ErrEmptyInput
	}
	if batchSize < 1 {
		return report, stderrors.NewInvalidBatchSizeError(batchSize)
	}

	if err := o.sink.EnsureHeader(ctx); err != nil {
		metrics.ResultSinkErrors.WithLabelValues(o.sink.Name()).Inc()
		o.logger.Error("result sink header failed", map[string]interface{}{
			"sink":  o.sink.Name(),
			"error": err,
		})
	}

	windows := Partition(records, batchSize)
	o.logger.Info("run started", map[string]interface{}{
		"records":         len(records),
		"windows":         len(windows),
		"batchSize":       batchSize,
		"perBatchTimeout": perBatchTimeout.String(),
	})

	for i, w := range windows {
		if ctx.Err() != nil {
			report.Add(models.WindowReport{
				Window: w.Index,
				Start:  w.Start,
				Size:   len(w.Records),
				Status: models.WindowSkipped,
			})
			metrics.SignupWindowsTotal.WithLabelValues(statusLabel(models.WindowSkipped)).Inc()
			continue
		}

		report.Add(o.runWindow(ctx, w, perBatchTimeout))

		if i < len(windows)-1 && o.config.InterWindowPause > 0 {
			o.pause(ctx)
		}
	}

	report.FinishedAt = time.Now().UTC()
	o.logger.Info("run finished", map[string]interface{}{
		"total":      report.Total,
		"succeeded":  report.Succeeded,
		"failed":     report.Failed,
		"timedOut":   report.TimedOut,
		"sinkErrors": report.SinkErrors,
		"duration":   report.FinishedAt.Sub(report.StartedAt).String(),
	})
	return report, nil
}

func (o *Orchestrator) pause(ctx context.Context) {
	timer := time.NewTimer(o.config.InterWindowPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (o *Orchestrator) runWindow(ctx context.Context, w Window, timeout time.Duration) models.WindowReport {
	started := time.Now()
	wr := models.WindowReport{Window: w.Index, Start: w.Start, Size: len(w.Records)}

	if o.obs != nil {
		var span trace.Span
		ctx, span = o.obs.StartWindow(ctx, w.Index, w.Start, len(w.Records))
		defer span.End()
	}

	var (
		winCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		winCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		winCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	o.logger.Info("batch started", map[string]interface{}{
		"window": w.Index,
		"start":  w.Start,
		"size":   len(w.Records),
	})

	// Buffered so a worker finishing after the timeout never blocks.
	results := make(chan unitResult, len(w.Records))
	pending := make(map[int]string, len(w.Records))
	for slot, rec := range w.Records {
		index := w.Start + slot
		pending[index] = rec.Email
		o.stragglers.Add(1)
		go func(slot, index int, rec models.SignupRecord) {
			defer o.stragglers.Done()
			results <- o.runUnit(winCtx, slot, index, rec)
		}(slot, index, rec)
	}

collect:
	for len(pending) > 0 {
		select {
		case r := <-results:
			delete(pending, r.index)
			o.tally(&wr, r)
		case <-winCtx.Done():
			// take whatever already finished before giving up on the rest
			for {
				select {
				case r := <-results:
					delete(pending, r.index)
					o.tally(&wr, r)
				default:
					break collect
				}
			}
		}
	}

	wr.Status = models.WindowComplete
	if len(pending) > 0 {
		wr.Status = models.WindowIncomplete
		for index := range pending {
			wr.PendingIdx = append(wr.PendingIdx, index)
		}
		sort.Ints(wr.PendingIdx)
		wr.TimedOut = len(wr.PendingIdx)
		metrics.SignupUnitsTotal.WithLabelValues(strings.ToLower(string(models.RecordTimedOut))).Add(float64(wr.TimedOut))

		reason := "timeout"
		if ctx.Err() != nil {
			reason = "run cancelled"
		}
		timeoutErr := stderrors.NewBatchTimeoutError(w.Index, timeout, wr.PendingIdx)
		o.logger.Warn("batch incomplete", map[string]interface{}{
			"window":  w.Index,
			"reason":  reason,
			"timeout": timeout.String(),
			"pending": wr.PendingIdx,
			"emails":  pendingEmails(pending, wr.PendingIdx),
			"error":   timeoutErr,
		})
	}
	sort.Ints(wr.FailedIdx)
	wr.Duration = time.Since(started)

	metrics.SignupWindowsTotal.WithLabelValues(statusLabel(wr.Status)).Inc()
	if o.obs != nil {
		o.obs.RecordWindow(ctx, statusLabel(wr.Status))
	}

	o.logger.Info("batch finished", map[string]interface{}{
		"window":     w.Index,
		"status":     string(wr.Status),
		"succeeded":  wr.Succeeded,
		"failed":     wr.Failed,
		"timedOut":   wr.TimedOut,
		"sinkErrors": wr.SinkErrors,
		"duration":   wr.Duration.String(),
	})
	return wr
}

func (o *Orchestrator) tally(wr *models.WindowReport, r unitResult) {
	status := models.RecordSucceeded
	if r.err != nil {
		status = models.RecordFailed
		wr.Failed++
		wr.FailedIdx = append(wr.FailedIdx, r.index)
	} else {
		wr.Succeeded++
	}
	if r.sinkErr {
		wr.SinkErrors++
	}
	label := strings.ToLower(string(status))
	metrics.SignupUnitsTotal.WithLabelValues(label).Inc()
	metrics.SignupUnitDuration.WithLabelValues(label).Observe(r.elapsed)
}

// runUnit executes one record and records its outcome. It never panics and
// never returns before a success has been handed to the sink.
func (o *Orchestrator) runUnit(ctx context.Context, slot, index int, rec models.SignupRecord) unitResult {
	worker := fmt.Sprintf("%s-w%d", o.config.WorkerLabelPrefix, slot)
	log := o.logger.WithFields(map[string]interface{}{
		"index":  index,
		"email":  rec.Email,
		"worker": worker,
	})

	metrics.SignupWorkersActive.Inc()
	defer metrics.SignupWorkersActive.Dec()

	if o.obs != nil {
		var span trace.Span
		ctx, span = o.obs.StartUnit(ctx, index, worker)
		defer span.End()
	}

	started := time.Now()
	err := o.execute(ctx, index, rec)
	elapsed := time.Since(started)
	res := unitResult{index: index, email: rec.Email, err: err, elapsed: elapsed.Seconds()}

	if o.obs != nil {
		status := "succeeded"
		if err != nil {
			status = "failed"
		}
		o.obs.RecordUnit(ctx, status, elapsed)
	}

	if err != nil {
		log.Error("signup failed", map[string]interface{}{
			"error":     err,
			"errorCode": string(stderrors.CodeOf(err)),
			"cancelled": ctx.Err() != nil,
			"duration":  elapsed.String(),
		})
		return res
	}

	outcome := models.SignupOutcome{
		Email:          rec.Email,
		Timestamp:      time.Now().UTC(),
		SourceIndex:    index,
		WorkerIdentity: worker,
	}
	// The account exists now, so the outcome is written even if the window has
	// just timed out.
	if err := o.sink.AppendOutcome(context.WithoutCancel(ctx), outcome); err != nil {
		res.sinkErr = true
		metrics.ResultSinkErrors.WithLabelValues(o.sink.Name()).Inc()
		log.Error("result sink append failed", map[string]interface{}{
			"error": stderrors.NewResultSinkError(o.sink.Name(), err),
		})
		return res
	}

	log.Info("signup succeeded", map[string]interface{}{
		"duration": elapsed.String(),
	})
	return res
}

// execute turns both errors and panics of the unit of work into a StandardError.
func (o *Orchestrator) execute(ctx context.Context, index int, rec models.SignupRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = stderrors.NewUnitOfWorkPanicError(index, rec.Email, r)
		}
	}()
	if uowErr := o.unit.Execute(ctx, rec); uowErr != nil {
		return stderrors.NewUnitOfWorkError(index, rec.Email, uowErr)
	}
	return nil
}

// AwaitStragglers waits for workers abandoned by timed-out windows, up to ctx.
// It reports whether all of them finished.
func (o *Orchestrator) AwaitStragglers(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		o.stragglers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func pendingEmails(pending map[int]string, order []int) []string {
	emails := make([]string, 0, len(order))
	for _, i := range order {
		emails = append(emails, pending[i])
	}
	return emails
}

func statusLabel(s models.WindowStatus) string {
	return strings.ToLower(string(s))
}
