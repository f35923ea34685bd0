package runsummary

import (
	"context"
	stderrs "errors"
	"fmt"
	"strings"
	"time"

	"league-signup/internal/common/errors"
	"league-signup/internal/common/logger"
	"league-signup/internal/models"
)

// Service reports finished runs by email and, when something failed, by SMS.
type Service struct {
	config  *Config
	logger  logger.Logger
	email   EmailSender
	sms     SMSSender
	counter OutcomeCounter
}

func NewService(deps ServiceDependencies, config *Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.EmailEnabled && deps.Email == nil {
		return nil, fmt.Errorf("email summaries enabled without an email sender")
	}
	if config.SMSEnabled && deps.SMS == nil {
		return nil, fmt.Errorf("sms alerts enabled without an sms sender")
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{config: config, logger: log, email: deps.Email, sms: deps.SMS, counter: deps.Counter}, nil
}

// Notify implements the orchestrator's Notifier.
func (s *Service) Notify(ctx context.Context, report models.RunReport) error {
	_, err := s.Execute(ctx, report)
	return err
}

// Execute sends the summary on every enabled channel. Both channels are tried
// even if the first fails.
func (s *Service) Execute(ctx context.Context, report models.RunReport) (*Output, error) {
	out := &Output{}
	var errs []error

	if s.config.EmailEnabled {
		subject, body := BuildSummary(report, s.storedOutcomes(ctx, report.RunID))
		sendCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		id, err := s.email.SendText(sendCtx, s.config.From, s.config.Recipients, subject, body)
		cancel()
		if err != nil {
			errs = append(errs, errors.NewNotificationSendFailedError("email", err))
		} else {
			out.EmailMessageID = id
			s.logger.Info("run summary emailed", map[string]interface{}{
				"runId":      report.RunID,
				"recipients": len(s.config.Recipients),
				"messageId":  id,
			})
		}
	}

	if s.config.SMSEnabled && unsuccessful(report) > 0 {
		sendCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		id, err := s.sms.SendSMS(sendCtx, s.config.Phone, s.config.SenderID, BuildAlert(report))
		cancel()
		if err != nil {
			errs = append(errs, errors.NewNotificationSendFailedError("sms", err))
		} else {
			out.SMSMessageID = id
			s.logger.Info("run alert sent", map[string]interface{}{
				"runId":     report.RunID,
				"messageId": id,
			})
		}
	}

	for _, err := range errs {
		s.logger.Error("run summary send failed", map[string]interface{}{
			"runId": report.RunID,
			"error": err,
		})
	}
	return out, stderrs.Join(errs...)
}

// storedOutcomes returns -1 when there is no counter or it failed.
func (s *Service) storedOutcomes(ctx context.Context, runID string) int {
	if s.counter == nil {
		return -1
	}
	countCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	n, err := s.counter.CountOutcomes(countCtx, runID)
	if err != nil {
		s.logger.Warn("stored outcome count unavailable", map[string]interface{}{
			"runId": runID,
			"error": err,
		})
		return -1
	}
	return n
}

func unsuccessful(r models.RunReport) int {
	return r.Failed + r.TimedOut
}

// BuildSummary renders the email subject and plain-text body for a run. stored
// is the outcome count read back from the result store, or -1 if unknown.
func BuildSummary(r models.RunReport, stored int) (string, string) {
	status := "all succeeded"
	if n := unsuccessful(r); n > 0 {
		status = fmt.Sprintf("%d not signed up", n)
	}
	subject := fmt.Sprintf("Signup run %s: %d/%d, %s", shortID(r.RunID), r.Succeeded, r.Total, status)

	var b strings.Builder
	fmt.Fprintf(&b, "Run:         %s\n", r.RunID)
	fmt.Fprintf(&b, "Started:     %s\n", r.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Duration:    %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	fmt.Fprintf(&b, "Records:     %d\n", r.Total)
	fmt.Fprintf(&b, "Succeeded:   %d\n", r.Succeeded)
	fmt.Fprintf(&b, "Failed:      %d\n", r.Failed)
	fmt.Fprintf(&b, "Timed out:   %d\n", r.TimedOut)
	if r.SinkErrors > 0 {
		fmt.Fprintf(&b, "NOT LOGGED:  %d successful signups could not be written to the result log\n", r.SinkErrors)
	}
	if stored >= 0 {
		fmt.Fprintf(&b, "Stored:      %d", stored)
		// late finishers from timed-out windows are stored too, so only a shortfall matters
		if want := r.Succeeded - r.SinkErrors; stored < want {
			fmt.Fprintf(&b, " (MISSING %d)", want-stored)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nWindows:\n")
	for _, w := range r.Windows {
		fmt.Fprintf(&b, "  #%d  rows %d-%d  %-10s  ok=%d failed=%d timedOut=%d",
			w.Window, w.Start, w.Start+w.Size-1, w.Status, w.Succeeded, w.Failed, w.TimedOut)
		if len(w.FailedIdx) > 0 {
			fmt.Fprintf(&b, "  failed rows %v", w.FailedIdx)
		}
		if len(w.PendingIdx) > 0 {
			fmt.Fprintf(&b, "  pending rows %v", w.PendingIdx)
		}
		b.WriteString("\n")
	}
	return subject, b.String()
}

// BuildAlert renders the short SMS text for a run with failures.
func BuildAlert(r models.RunReport) string {
	return fmt.Sprintf("Signup run %s: %d of %d not signed up (%d failed, %d timed out)",
		shortID(r.RunID), unsuccessful(r), r.Total, r.Failed, r.TimedOut)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
