// Package relay forwards kiosk JSON payloads to the configured dispensing webhook.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Proton-105/omnikiosk/internal/errors"
	"github.com/Proton-105/omnikiosk/pkg/config"
)

const maxReplyLen = 1 << 20

// Reply is the destination's answer, passed back unchanged.
type Reply struct {
	Status      int
	ContentType string
	Body        []byte
}

// OK reports a 2xx status.
func (r Reply) OK() bool {
	return r.Status >= 200 && r.Status <= 299
}

// Forwarder posts JSON bodies to a single destination URL.
type Forwarder struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewForwarder creates a Forwarder for cfg.URL. A nil client gets one with cfg.Timeout.
func NewForwarder(cfg config.WebhookConfig, client *http.Client, log *slog.Logger) *Forwarder {
	if log == nil {
		log = slog.Default()
	}

	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Forwarder{
		url:    cfg.URL,
		client: client,
		log:    log,
	}
}

// Configured reports whether a destination URL is set.
func (f *Forwarder) Configured() bool {
	return f.url != ""
}

// Forward posts body to the destination. A body that is not valid JSON is sent as {}.
func (f *Forwarder) Forward(ctx context.Context, body []byte) (Reply, error) {
	if !f.Configured() {
		return Reply{}, errors.NewConfigurationError("Webhook URL not configured", nil)
	}

	if len(bytes.TrimSpace(body)) == 0 || !json.Valid(body) {
		body = []byte("{}")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Reply{}, errors.NewUpstreamError("webhook", 0, err.Error(), err)
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyLen))
	if err != nil {
		return Reply{}, errors.NewUpstreamError("webhook", resp.StatusCode, err.Error(), err)
	}

	f.log.Debug("webhook forwarded", "status", resp.StatusCode, "bytes", len(body))

	return Reply{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        reply,
	}, nil
}
