package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Proton-105/omnikiosk/internal/errors"
	"github.com/Proton-105/omnikiosk/pkg/metrics"
)

const maxRelayBody = 1 << 20

type onrampRequest struct {
	Address string `json:"address"`
}

func (s *Server) onramp(c *gin.Context) {
	var req onrampRequest
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRelayBody))
	if err != nil {
		s.failRelay(c, "onramp", errors.NewValidationError("Unreadable request body"))
		return
	}
	// A malformed body is treated like a missing address.
	_ = json.Unmarshal(body, &req)

	url, err := s.deps.Broker.SessionURL(c.Request.Context(), req.Address)
	if err != nil {
		s.failRelay(c, "onramp", err)
		return
	}

	metrics.RecordRelay("onramp", http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// webhook passes the destination's status and body back unchanged.
func (s *Server) webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRelayBody))
	if err != nil {
		s.failRelay(c, "webhook", errors.NewValidationError("Unreadable request body"))
		return
	}

	reply, err := s.deps.Webhook.Forward(c.Request.Context(), body)
	if err != nil {
		s.failRelay(c, "webhook", err)
		return
	}

	contentType := reply.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}

	metrics.RecordRelay("webhook", reply.Status)
	c.Data(reply.Status, contentType, reply.Body)
}

func (s *Server) failRelay(c *gin.Context, relay string, err error) {
	s.fail(c, err)
	metrics.RecordRelay(relay, c.Writer.Status())
}
