package relay

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/omnikiosk/internal/errors"
	"github.com/Proton-105/omnikiosk/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestForwarder_NotConfigured(t *testing.T) {
	f := NewForwarder(config.WebhookConfig{}, nil, testLogger())
	assert.False(t, f.Configured())

	_, err := f.Forward(context.Background(), []byte(`{"a":1}`))

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, errors.CodeConfiguration, appErr.Code)
	assert.Equal(t, "Webhook URL not configured", appErr.UserMessage)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus())
}

func TestForwarder_ProxiesStatusAndBody(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected string
		status   int
	}{
		{name: "json body verbatim", body: `{"transactionHash":"0xabc","chainId":8453,"amount":"0.75"}`, expected: `{"transactionHash":"0xabc","chainId":8453,"amount":"0.75"}`, status: http.StatusAccepted},
		{name: "invalid body becomes empty object", body: `not json`, expected: `{}`, status: http.StatusOK},
		{name: "empty body becomes empty object", body: ``, expected: `{}`, status: http.StatusOK},
		{name: "destination error passes through", body: `{}`, expected: `{}`, status: http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var got string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				raw, _ := io.ReadAll(r.Body)
				got = string(raw)
				w.Header().Set("Content-Type", "text/plain")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("dispensed"))
			}))
			t.Cleanup(server.Close)

			f := NewForwarder(config.WebhookConfig{URL: server.URL, Timeout: time.Second}, nil, testLogger())

			reply, err := f.Forward(context.Background(), []byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
			assert.Equal(t, tc.status, reply.Status)
			assert.Equal(t, "dispensed", string(reply.Body))
			assert.Equal(t, "text/plain", reply.ContentType)
			assert.Equal(t, tc.status < 300, reply.OK())
		})
	}
}

func TestForwarder_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	f := NewForwarder(config.WebhookConfig{URL: server.URL, Timeout: time.Second}, nil, testLogger())

	_, err := f.Forward(context.Background(), []byte(`{}`))

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus())
}
