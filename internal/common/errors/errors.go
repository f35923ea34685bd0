// Package errors provides standardized error handling for the signup harness.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeEmptyInput       ErrorCode = "EMPTY_INPUT"
	ErrCodeInvalidBatchSize ErrorCode = "INVALID_BATCH_SIZE"
	ErrCodeInputLoadFailed  ErrorCode = "INPUT_LOAD_FAILED"
	ErrCodeRecordInvalid    ErrorCode = "RECORD_INVALID"
	ErrCodeInvalidJobInput  ErrorCode = "INVALID_JOB_INPUT"

	ErrCodeUnitOfWorkFailed ErrorCode = "UNIT_OF_WORK_FAILED"
	ErrCodeUnitOfWorkPanic  ErrorCode = "UNIT_OF_WORK_PANIC"
	ErrCodeBatchTimeout     ErrorCode = "BATCH_TIMEOUT"

	ErrCodeBrowserSessionFailed ErrorCode = "BROWSER_SESSION_FAILED"
	ErrCodeElementNotFound      ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeUnexpectedPageState  ErrorCode = "UNEXPECTED_PAGE_STATE"

	ErrCodeOTPNotFound    ErrorCode = "OTP_NOT_FOUND"
	ErrCodeOTPFetchFailed ErrorCode = "OTP_FETCH_FAILED"

	ErrCodeResultSinkFailed ErrorCode = "RESULT_SINK_FAILED"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeWorkflowEngine ErrorCode = "WORKFLOW_ENGINE_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another *StandardError by code, so sentinel values work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewEmptyInputError is fatal for a run: there is nothing to process.
func NewEmptyInputError() *StandardError {
	return newError(ErrCodeEmptyInput, "No signup records to process", "", false, nil)
}

func NewInvalidBatchSizeError(size int) *StandardError {
	return newError(ErrCodeInvalidBatchSize, "Batch size must be at least 1",
		fmt.Sprintf("batchSize: %d", size), false, nil)
}

func NewInputLoadFailedError(path string, err error) *StandardError {
	return newError(ErrCodeInputLoadFailed, "Failed to load signup records",
		fmt.Sprintf("path: %s, error: %v", path, err), false, err)
}

func NewRecordInvalidError(row int, details string) *StandardError {
	return newError(ErrCodeRecordInvalid, "Signup record failed validation",
		fmt.Sprintf("row: %d, %s", row, details), false, nil)
}

func NewInvalidJobInputError(details string) *StandardError {
	return newError(ErrCodeInvalidJobInput, "Job variables failed validation", details, false, nil)
}

// NewUnitOfWorkError wraps any failure inside a single record's flow.
func NewUnitOfWorkError(index int, email string, err error) *StandardError {
	return newError(ErrCodeUnitOfWorkFailed, "Signup flow failed",
		fmt.Sprintf("index: %d, email: %s, error: %v", index, email, err), false, err).
		WithMetadata("index", index).
		WithMetadata("email", email)
}

func NewUnitOfWorkPanicError(index int, email string, recovered interface{}) *StandardError {
	return newError(ErrCodeUnitOfWorkPanic, "Signup flow panicked",
		fmt.Sprintf("index: %d, email: %s, panic: %v", index, email, recovered), false, nil).
		WithMetadata("index", index).
		WithMetadata("email", email)
}

func NewBatchTimeoutError(window int, timeout time.Duration, pending []int) *StandardError {
	return newError(ErrCodeBatchTimeout, "Batch did not finish in time",
		fmt.Sprintf("window: %d, timeout: %s, pending: %v", window, timeout, pending), false, nil).
		WithMetadata("window", window).
		WithMetadata("pending", pending)
}

func NewBrowserSessionError(err error) *StandardError {
	return newError(ErrCodeBrowserSessionFailed, "Browser session error", errDetails(err), true, err)
}

func NewElementNotFoundError(element string, selectors []string) *StandardError {
	return newError(ErrCodeElementNotFound, "Element not found",
		fmt.Sprintf("element: %s, tried: %s", element, strings.Join(selectors, " | ")), true, nil)
}

func NewUnexpectedPageStateError(details string) *StandardError {
	return newError(ErrCodeUnexpectedPageState, "Unexpected page state", details, false, nil)
}

func NewOTPNotFoundError(email string, waited time.Duration) *StandardError {
	return newError(ErrCodeOTPNotFound, "No verification code arrived",
		fmt.Sprintf("email: %s, waited: %s", email, waited), true, nil)
}

func NewOTPFetchFailedError(email string, err error) *StandardError {
	return newError(ErrCodeOTPFetchFailed, "Inbox lookup failed",
		fmt.Sprintf("email: %s, error: %v", email, err), true, err)
}

// NewResultSinkError marks possible data loss for an otherwise successful signup.
func NewResultSinkError(backend string, err error) *StandardError {
	return newError(ErrCodeResultSinkFailed, fmt.Sprintf("Result sink '%s' write failed", backend),
		errDetails(err), true, err)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification send failed",
		fmt.Sprintf("channel: %s, error: %v", channel, err), true, err)
}

// NewWorkflowEngineError wraps a failed Zeebe command.
func NewWorkflowEngineError(operation string, err error, retryable bool) *StandardError {
	return newError(ErrCodeWorkflowEngine, fmt.Sprintf("Zeebe operation '%s' failed", operation),
		errDetails(err), retryable, err)
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandard unwraps err into a *StandardError, if it carries one.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the error code of err, or INTERNAL_ERROR for foreign errors.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return "INTERNAL_ERROR"
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Retryable
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeEmptyInput, ErrCodeInvalidBatchSize, ErrCodeInputLoadFailed, ErrCodeRecordInvalid,
		ErrCodeInvalidJobInput:
		return "INPUT"
	case ErrCodeUnitOfWorkFailed, ErrCodeUnitOfWorkPanic, ErrCodeBatchTimeout:
		return "BATCH"
	case ErrCodeBrowserSessionFailed, ErrCodeElementNotFound, ErrCodeUnexpectedPageState:
		return "BROWSER"
	case ErrCodeOTPNotFound, ErrCodeOTPFetchFailed:
		return "INBOX"
	case ErrCodeResultSinkFailed:
		return "SINK"
	case ErrCodeNotificationSendFailed:
		return "NOTIFICATION"
	case ErrCodeWorkflowEngine:
		return "WORKFLOW"
	default:
		return "OTHER"
	}
}
