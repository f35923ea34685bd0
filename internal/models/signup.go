package models

import "time"

// SignupRecord is one candidate account to create. Email is the correlation key for
// the whole flow and for the inbox lookup; it is unique within one input set.
type SignupRecord struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"dateOfBirth"`
}

// FullName returns "First Last".
func (r SignupRecord) FullName() string {
	return r.FirstName + " " + r.LastName
}

// SignupOutcome is recorded once per successful record by the worker that completed it.
type SignupOutcome struct {
	Email          string    `json:"email"`
	Timestamp      time.Time `json:"timestamp"`
	SourceIndex    int       `json:"sourceIndex"`
	WorkerIdentity string    `json:"workerIdentity"`
}

// RecordStatus is the terminal state of one record within a run.
type RecordStatus string

const (
	RecordSucceeded RecordStatus = "SUCCEEDED"
	RecordFailed    RecordStatus = "FAILED"
	RecordTimedOut  RecordStatus = "TIMED_OUT"
)

// WindowStatus summarises how a window ended.
type WindowStatus string

const (
	WindowComplete   WindowStatus = "COMPLETE"
	WindowIncomplete WindowStatus = "INCOMPLETE"
	WindowSkipped    WindowStatus = "SKIPPED"
)

// WindowReport aggregates the outcome of one batch window.
type WindowReport struct {
	Window     int           `json:"window"`
	Start      int           `json:"start"` // source index of the first record
	Size       int           `json:"size"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	TimedOut   int           `json:"timedOut"`
	SinkErrors int           `json:"sinkErrors"`
	Status     WindowStatus  `json:"status"`
	Duration   time.Duration `json:"duration"`
	FailedIdx  []int         `json:"failedIndices,omitempty"`
	PendingIdx []int         `json:"pendingIndices,omitempty"`
}

// RunReport aggregates a whole orchestrator run.
type RunReport struct {
	RunID      string         `json:"runId"`
	Total      int            `json:"total"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	TimedOut   int            `json:"timedOut"`
	SinkErrors int            `json:"sinkErrors"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Windows    []WindowReport `json:"windows"`
}

// Add folds a window report into the run totals.
func (r *RunReport) Add(w WindowReport) {
	r.Succeeded += w.Succeeded
	r.Failed += w.Failed
	r.TimedOut += w.TimedOut
	r.SinkErrors += w.SinkErrors
	r.Windows = append(r.Windows, w)
}

// Missing returns how many submitted records have no recorded outcome.
func (r RunReport) Missing() int {
	return r.Total - r.Succeeded
}
