// Package errors defines the kiosk error taxonomy and its handling policies.
package errors

import (
	"fmt"
	"net/http"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CodeValidation     = "E100"
	CodeConfiguration  = "E200"
	CodeUpstream       = "E300"
	CodeUpstreamReply  = "E310"
	CodeState          = "E400"
	CodeRateLimit      = "E500"
	CodeWalletRejected = "E600"
)

// AppError is an error annotated with everything needed to log, report and render it.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	// Status is the upstream HTTP status for upstream errors, zero otherwise.
	Status  int
	Details any
	cause   error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// HTTPStatus maps the error to the status code a relay should answer with.
func (e *AppError) HTTPStatus() int {
	if e == nil {
		return http.StatusInternalServerError
	}

	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeState:
		return http.StatusConflict
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeWalletRejected:
		return http.StatusUnprocessableEntity
	case CodeUpstream:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: msg,
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewConfigurationError reports missing or malformed server-side settings such as relay secrets.
func NewConfigurationError(msg string, details any) *AppError {
	return &AppError{
		Code:        CodeConfiguration,
		Message:     msg,
		UserMessage: msg,
		Severity:    SeverityCritical,
		Retryable:   false,
		Details:     details,
	}
}

// NewUpstreamError reports a rejection by an external provider, preserving its status and body.
func NewUpstreamError(apiName string, status int, details any, cause error) *AppError {
	return &AppError{
		Code:        CodeUpstream,
		Message:     fmt.Sprintf("%s request failed", apiName),
		UserMessage: "Service temporarily unavailable",
		Severity:    SeverityMedium,
		Retryable:   false,
		Status:      status,
		Details:     details,
		cause:       cause,
	}
}

// NewUpstreamResponseError reports a successful upstream call whose payload is unusable.
func NewUpstreamResponseError(msg string, details any) *AppError {
	return &AppError{
		Code:        CodeUpstreamReply,
		Message:     msg,
		UserMessage: msg,
		Severity:    SeverityHigh,
		Retryable:   false,
		Details:     details,
	}
}

// NewChainReadError wraps a failed idempotent chain read; these are safe to retry.
func NewChainReadError(method string, cause error) *AppError {
	return &AppError{
		Code:        CodeUpstream,
		Message:     fmt.Sprintf("chain read %s failed", method),
		UserMessage: "Network is busy, please try again",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewStateError(msg string) *AppError {
	return &AppError{
		Code:        CodeState,
		Message:     msg,
		UserMessage: "This action is not available right now",
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewWalletRejectedError reports that the payer declined or the wallet failed a connect, switch or sign.
func NewWalletRejectedError(action string, cause error) *AppError {
	return &AppError{
		Code:        CodeWalletRejected,
		Message:     fmt.Sprintf("wallet %s failed", action),
		UserMessage: "The wallet did not complete the request. Please try again.",
		Severity:    SeverityLow,
		Retryable:   true,
		cause:       cause,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Try again in %d seconds", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}
