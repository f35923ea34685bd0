package runsummary

import (
	"context"

	"league-signup/internal/common/logger"
)

// EmailSender is satisfied by aws.SESClient.
type EmailSender interface {
	SendText(ctx context.Context, from string, to []string, subject, body string) (string, error)
}

// SMSSender is satisfied by aws.SNSClient.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, senderID, message string) (string, error)
}

// OutcomeCounter is satisfied by the postgres and elasticsearch clients.
type OutcomeCounter interface {
	CountOutcomes(ctx context.Context, runID string) (int, error)
}

type ServiceDependencies struct {
	Logger logger.Logger
	Email  EmailSender
	SMS    SMSSender
	// Counter is optional. When set, the summary reports how many outcomes
	// actually reached the result store.
	Counter OutcomeCounter
}

// Output lists what was delivered for one run.
type Output struct {
	EmailMessageID string `json:"emailMessageId,omitempty"`
	SMSMessageID   string `json:"smsMessageId,omitempty"`
}
