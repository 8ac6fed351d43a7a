package errors

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/omnikiosk/pkg/logger"
)

const genericUserMessage = "Something went wrong. Please try again later"

// Response is the JSON body relays answer with on failure.
type Response struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	return &Handler{
		log:           log,
		sentryEnabled: sentryEnabled,
	}
}

// Handle logs err, reports it when severe, and returns the status and body to send to the caller.
func (h *Handler) Handle(ctx context.Context, err error) (int, Response) {
	if err == nil {
		return http.StatusOK, Response{}
	}

	if ctx == nil {
		ctx = context.Background()
	}

	log := h.log
	if log == nil {
		log = slog.Default()
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		attrs := []slog.Attr{
			slog.String("code", appErr.Code),
			slog.String("message", appErr.Error()),
			slog.String("severity", string(appErr.Severity)),
			slog.Bool("retryable", appErr.Retryable),
		}
		if appErr.Status != 0 {
			attrs = append(attrs, slog.Int("upstream_status", appErr.Status))
		}

		if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
			attrs = append(attrs, slog.String("correlation_id", correlationID))
		}

		log.LogAttrs(ctx, levelFor(appErr.Severity), "application error", attrs...)

		if h.sentryEnabled && (appErr.Severity == SeverityCritical || appErr.Severity == SeverityHigh) {
			h.sendToSentry(err)
		}

		message := appErr.UserMessage
		if message == "" {
			message = genericUserMessage
		}

		return appErr.HTTPStatus(), Response{Error: message, Details: appErr.Details}
	}

	attrs := []slog.Attr{
		slog.String("message", err.Error()),
		slog.String("severity", string(SeverityHigh)),
		slog.Bool("retryable", false),
	}

	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	log.LogAttrs(ctx, slog.LevelError, "unknown error", attrs...)

	if h.sentryEnabled {
		h.sendToSentry(err)
	}

	return http.StatusInternalServerError, Response{Error: "Internal server error", Details: err.Error()}
}

func (h *Handler) sendToSentry(err error) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		var appErr *AppError
		if errors.As(err, &appErr) && appErr != nil {
			if appErr.Code != "" {
				scope.SetTag("code", appErr.Code)
			}

			if appErr.Severity != "" {
				scope.SetTag("severity", string(appErr.Severity))
			}
		}

		sentry.CaptureException(err)
	})
}

func levelFor(severity Severity) slog.Level {
	switch severity {
	case SeverityLow:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
