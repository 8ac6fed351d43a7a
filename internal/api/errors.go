package api

import (
	stderrors "errors"

	"github.com/gin-gonic/gin"

	"github.com/Proton-105/omnikiosk/internal/errors"
	"github.com/Proton-105/omnikiosk/internal/flow"
	"github.com/Proton-105/omnikiosk/pkg/metrics"
)

// fail renders err as {error, details?} and aborts the request.
func (s *Server) fail(c *gin.Context, err error) {
	err = s.classify(err)

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		metrics.RecordError(appErr.Code, string(appErr.Severity))
	} else {
		metrics.RecordError("unknown", string(errors.SeverityHigh))
	}

	status, body := s.deps.Errors.Handle(c.Request.Context(), err)
	c.AbortWithStatusJSON(status, body)
}

// classify maps flow sentinels onto the error taxonomy. Rejected flow actions carry the
// current state so the front end can resynchronize.
func (s *Server) classify(err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	switch {
	case stderrors.Is(err, flow.ErrChainNotEnabled):
		return errors.NewValidationError("Chain is not enabled for payment")
	case stderrors.Is(err, flow.ErrInvalidSession):
		return errors.NewValidationError("Invalid wallet session")
	case stderrors.Is(err, flow.ErrInvalidTransition),
		stderrors.Is(err, flow.ErrCancelPromptOpen),
		stderrors.Is(err, flow.ErrNoCancelPrompt),
		stderrors.Is(err, flow.ErrWalletNotConnected),
		stderrors.Is(err, flow.ErrWrongChain):
		stateErr := errors.NewStateError(err.Error())
		if s.deps.Kiosk != nil {
			stateErr.Details = s.deps.Kiosk.Snapshot()
		}
		return stateErr
	default:
		return err
	}
}
