package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/omnikiosk/internal/errors"
	"github.com/Proton-105/omnikiosk/internal/flow"
	"github.com/Proton-105/omnikiosk/internal/health"
	"github.com/Proton-105/omnikiosk/internal/i18n"
	"github.com/Proton-105/omnikiosk/internal/relay"
	"github.com/Proton-105/omnikiosk/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeKiosk struct {
	state   flow.FlowState
	cfg     flow.Config
	err     error
	calls   []string
	session flow.Session
}

func newFakeKiosk() *fakeKiosk {
	cfg := flow.Config{
		KioskID: "lobby-1",
		Chains: []flow.Chain{
			{ID: 8453, Name: "Base"},
			{ID: 42161, Name: "Arbitrum"},
			{ID: 11155111, Name: "Sepolia"},
		},
		TokenAddresses: map[int64]string{
			8453:     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			11155111: "0x9229c70d0388213894ddAFB0edf6fE38090F2FcC",
		},
		Price:       "0.75",
		TokenSymbol: "USDC",
	}

	return &fakeKiosk{
		cfg: cfg,
		state: flow.FlowState{
			KioskID:         "lobby-1",
			Screen:          flow.ScreenReview,
			SelectedChainID: 8453,
			ChainName:       "Base",
			Amount:          "0.75",
			TokenSymbol:     "USDC",
		},
	}
}

func (k *fakeKiosk) do(name string) error {
	k.calls = append(k.calls, name)
	return k.err
}

func (k *fakeKiosk) Snapshot() flow.FlowState { return k.state }
func (k *fakeKiosk) Config() flow.Config { return k.cfg }
func (k *fakeKiosk) Start(context.Context) error { return k.do("start") }
func (k *fakeKiosk) RequestConnect(context.Context) error { return k.do("connect") }
func (k *fakeKiosk) Pay(context.Context) error { return k.do("pay") }
func (k *fakeKiosk) Cancel(context.Context) error { return k.do("cancel") }
func (k *fakeKiosk) KeepGoing(context.Context) error { return k.do("keep_going") }
func (k *fakeKiosk) ConfirmCancel(context.Context) error { return k.do("confirm_cancel") }

func (k *fakeKiosk) SelectChain(_ context.Context, chainID int64) error {
	return k.do(fmt.Sprintf("chain:%d", chainID))
}

func (k *fakeKiosk) OnSession(_ context.Context, session flow.Session) error {
	k.session = session
	return k.do("session")
}

type fakeBroker struct {
	address string
	url     string
	err     error
}

func (b *fakeBroker) SessionURL(_ context.Context, address string) (string, error) {
	b.address = address
	return b.url, b.err
}

type fakeWebhook struct {
	body  string
	reply relay.Reply
	err   error
}

func (w *fakeWebhook) Forward(_ context.Context, body []byte) (relay.Reply, error) {
	w.body = string(body)
	return w.reply, w.err
}

type fakeProbes struct {
	err error
}

func (p fakeProbes) Liveness(context.Context) error { return nil }

func (p fakeProbes) Report(context.Context) (health.Report, error) {
	if p.err != nil {
		return health.Report{Components: map[string]string{"redis": p.err.Error()}}, p.err
	}
	return health.Report{Healthy: true, Components: map[string]string{"redis": "OK"}}, nil
}

type fixture struct {
	kiosk   *fakeKiosk
	broker  *fakeBroker
	webhook *fakeWebhook
	handler http.Handler
}

func newFixture(t *testing.T, rateLimit gin.HandlerFunc) *fixture {
	t.Helper()

	catalog, err := i18n.Load("en")
	require.NoError(t, err)

	f := &fixture{
		kiosk:   newFakeKiosk(),
		broker:  &fakeBroker{url: "https://pay.coinbase.com/buy/select-asset?sessionToken=abc"},
		webhook: &fakeWebhook{reply: relay.Reply{Status: http.StatusAccepted, ContentType: "application/json", Body: []byte(`{"queued":true}`)}},
	}

	server := New(Deps{
		Kiosk:     f.kiosk,
		Broker:    f.broker,
		Webhook:   f.webhook,
		Probes:    fakeProbes{},
		Catalog:   catalog,
		Errors:    apperrors.NewHandler(testLogger(), false),
		RateLimit: rateLimit,
		Log:       testLogger(),
	})
	f.handler = server.Handler()
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestKioskState_LocalizedView(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/kiosk/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(logger.CorrelationHeader))

	resp := decode[StateResponse](t, rec)
	assert.Equal(t, flow.ScreenReview, resp.State.Screen)
	assert.Equal(t, "Review & Pay", resp.View.Title)
	assert.Equal(t, "Price 0.75 USDC on Base", resp.View.Subtitle)
	assert.Equal(t, "Pay", resp.View.Action)
	assert.Nil(t, resp.View.Cancel)

	f.kiosk.state.Notice = flow.NoticeApproveFailed
	f.kiosk.state.CancelPromptVisible = true
	resp = decode[StateResponse](t, f.do(http.MethodGet, "/api/kiosk/state?lang=es", ""))
	assert.Equal(t, "es", resp.View.Lang)
	assert.Equal(t, "Revisar y pagar", resp.View.Title)
	assert.Equal(t, "La aprobación del token falló. Inténtalo de nuevo.", resp.View.Notice)
	require.NotNil(t, resp.View.Cancel)
	assert.Equal(t, "Sí, cancelar", resp.View.Cancel.Confirm)
}

func TestKioskChains(t *testing.T) {
	f := newFixture(t, nil)

	resp := decode[struct {
		Chains []ChainOption `json:"chains"`
	}](t, f.do(http.MethodGet, "/api/kiosk/chains", ""))

	require.Len(t, resp.Chains, 11)
	assert.Equal(t, ChainOption{ID: 1, Name: "Ethereum", Enabled: false}, resp.Chains[0])
	assert.Equal(t, ChainOption{ID: 8453, Name: "Base", Enabled: true}, resp.Chains[1])
	assert.Equal(t, ChainOption{ID: 42161, Name: "Arbitrum", Enabled: false}, resp.Chains[2])
	assert.Equal(t, ChainOption{ID: 11155111, Name: "Sepolia", Enabled: true}, resp.Chains[10])
}

func TestKioskActions(t *testing.T) {
	f := newFixture(t, nil)

	routes := []struct {
		path string
		body string
		call string
	}{
		{path: "/api/kiosk/start", call: "start"},
		{path: "/api/kiosk/chain", body: `{"chainId":8453}`, call: "chain:8453"},
		{path: "/api/kiosk/connect", call: "connect"},
		{path: "/api/kiosk/session", body: `{"address":"0x2222222222222222222222222222222222222222","chainId":8453}`, call: "session"},
		{path: "/api/kiosk/pay", call: "pay"},
		{path: "/api/kiosk/cancel", call: "cancel"},
		{path: "/api/kiosk/cancel/dismiss", call: "keep_going"},
		{path: "/api/kiosk/cancel/confirm", call: "confirm_cancel"},
	}

	for _, route := range routes {
		rec := f.do(http.MethodPost, route.path, route.body)
		assert.Equal(t, http.StatusOK, rec.Code, route.path)
	}

	calls := make([]string, 0, len(routes))
	for _, route := range routes {
		calls = append(calls, route.call)
	}
	assert.Equal(t, calls, f.kiosk.calls)
	assert.Equal(t, flow.Session{Address: "0x2222222222222222222222222222222222222222", ChainID: 8453}, f.kiosk.session)
}

func TestKioskActions_Errors(t *testing.T) {
	testCases := []struct {
		name       string
		path       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "missing chain id", path: "/api/kiosk/chain", body: `{}`, wantStatus: http.StatusBadRequest, wantError: "chainId is required"},
		{name: "bad session address", path: "/api/kiosk/session", body: `{"address":"nope","chainId":1}`, wantStatus: http.StatusBadRequest, wantError: "address must be an EVM address and chainId a chain id"},
		{name: "chain not enabled", path: "/api/kiosk/chain", body: `{"chainId":42161}`, err: fmt.Errorf("%w: 42161", flow.ErrChainNotEnabled), wantStatus: http.StatusBadRequest, wantError: "Chain is not enabled for payment"},
		{name: "wrong screen", path: "/api/kiosk/pay", err: flow.ErrInvalidTransition, wantStatus: http.StatusConflict, wantError: "This action is not available right now"},
		{name: "wrong chain", path: "/api/kiosk/pay", err: flow.ErrWrongChain, wantStatus: http.StatusConflict, wantError: "This action is not available right now"},
		{name: "unexpected", path: "/api/kiosk/start", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantError: "Internal server error"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.kiosk.err = tc.err

			rec := f.do(http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantError, decode[apperrors.Response](t, rec).Error)
		})
	}
}

func TestKioskActions_StateErrorCarriesSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	f.kiosk.err = flow.ErrCancelPromptOpen

	rec := f.do(http.MethodPost, "/api/kiosk/start", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decode[struct {
		Error   string         `json:"error"`
		Details flow.FlowState `json:"details"`
	}](t, rec)
	assert.Equal(t, flow.ScreenReview, resp.Details.Screen)
	assert.Equal(t, int64(8453), resp.Details.SelectedChainID)
}

func TestOnramp(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/onramp", `{"address":"0x2222222222222222222222222222222222222222"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"https://pay.coinbase.com/buy/select-asset?sessionToken=abc"}`, rec.Body.String())
	assert.Equal(t, "0x2222222222222222222222222222222222222222", f.broker.address)

	f.broker.err = apperrors.NewValidationError("Address is required")
	rec = f.do(http.MethodPost, "/api/onramp", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Address is required"}`, rec.Body.String())
	assert.Empty(t, f.broker.address)

	f.broker.err = apperrors.NewConfigurationError("CDP configuration missing", map[string]bool{"projectId": false})
	rec = f.do(http.MethodPost, "/api/onramp", `{"address":"0x2222222222222222222222222222222222222222"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"CDP configuration missing","details":{"projectId":false}}`, rec.Body.String())
}

func TestWebhook_PassesReplyThrough(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/webhook", `{"transactionHash":"0xabc"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, `{"queued":true}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"transactionHash":"0xabc"}`, f.webhook.body)

	f.webhook.reply = relay.Reply{Status: http.StatusTeapot, Body: []byte("short and stout")}
	rec = f.do(http.MethodPost, "/api/webhook", `{}`)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())

	f.webhook.err = apperrors.NewConfigurationError("Webhook URL not configured", nil)
	rec = f.do(http.MethodPost, "/api/webhook", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Webhook URL not configured"}`, rec.Body.String())
}

func TestRateLimitAppliesToRelaysOnly(t *testing.T) {
	deny := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, apperrors.Response{Error: "slow down"})
	}
	f := newFixture(t, deny)

	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/api/onramp", `{}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/api/webhook", `{}`).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/kiosk/state", "").Code)
}

func TestOpsEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)

	rec := f.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","components":{"redis":"OK"}}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kiosk_http_request_duration_seconds")
}

func TestReadyz_Unhealthy(t *testing.T) {
	catalog, err := i18n.Load("en")
	require.NoError(t, err)

	server := New(Deps{
		Kiosk:   newFakeKiosk(),
		Probes:  fakeProbes{err: errors.New("unhealthy: redis")},
		Catalog: catalog,
		Log:     testLogger(),
	})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"not ready","error":"unhealthy: redis","components":{"redis":"unhealthy: redis"}}`, rec.Body.String())
}
