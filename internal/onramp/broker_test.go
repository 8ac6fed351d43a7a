package onramp

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/omnikiosk/internal/errors"
	"github.com/Proton-105/omnikiosk/pkg/config"
)

const testAddress = "0x2222222222222222222222222222222222222222"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	encoded := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	// Stored the way .env files carry it: on one line with literal \n.
	return key, strings.ReplaceAll(string(encoded), "\n", `\n`)
}

func testOnrampConfig(tokenURL, privateKey string) config.OnrampConfig {
	return config.OnrampConfig{
		ProjectID:        "project",
		KeyName:          "organizations/org/apiKeys/key",
		PrivateKey:       privateKey,
		TokenURL:         tokenURL,
		CheckoutURL:      "https://pay.coinbase.com/buy/select-asset",
		Blockchains:      []string{"ethereum", "base"},
		Assets:           []string{"USDC"},
		PresetFiatAmount: 1,
		PaymentMethods:   []string{"apple_pay", "debit_card"},
		DefaultAsset:     "USDC",
		DefaultNetwork:   "base",
		Timeout:          time.Second,
	}
}

func TestBroker_SessionURL(t *testing.T) {
	key, pemKey := testKey(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var received tokenRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(bearer, claims, func(token *jwt.Token) (any, error) {
			return &key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"ES256"}), jwt.WithTimeFunc(func() time.Time { return now }))
		if assert.NoError(t, err) {
			assert.Equal(t, "organizations/org/apiKeys/key", token.Header["kid"])
			assert.NotEmpty(t, token.Header["nonce"])
			assert.Equal(t, "cdp", claims.Issuer)
			assert.Equal(t, "organizations/org/apiKeys/key", claims.Subject)
			assert.Equal(t, jwt.ClaimStrings{"cdp_service"}, claims.Audience)
			assert.Equal(t, now.Add(2*time.Minute).Unix(), claims.ExpiresAt.Unix())
			assert.Equal(t, now.Unix(), claims.NotBefore.Unix())
		}

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"token":"session-123"}`))
	}))
	t.Cleanup(server.Close)

	broker := NewBroker(testOnrampConfig(server.URL, pemKey), server.Client(), testLogger())
	broker.now = func() time.Time { return now }

	checkout, err := broker.SessionURL(context.Background(), testAddress)
	require.NoError(t, err)

	parsed, err := url.Parse(checkout)
	require.NoError(t, err)
	assert.Equal(t, "pay.coinbase.com", parsed.Host)
	assert.Equal(t, "/buy/select-asset", parsed.Path)
	assert.Equal(t, "session-123", parsed.Query().Get("sessionToken"))
	assert.Equal(t, "USDC", parsed.Query().Get("defaultAsset"))
	assert.Equal(t, "base", parsed.Query().Get("defaultNetwork"))

	require.Len(t, received.DestinationWallets, 1)
	assert.Equal(t, testAddress, received.DestinationWallets[0].Address)
	assert.Equal(t, []string{"ethereum", "base"}, received.DestinationWallets[0].Blockchains)
	assert.Equal(t, []string{"USDC"}, received.Assets)
	assert.Equal(t, float64(1), received.PresetFiatAmount)
	assert.Equal(t, []string{"apple_pay", "debit_card"}, received.PaymentMethods)
}

func TestBroker_ValidationAndConfiguration(t *testing.T) {
	_, pemKey := testKey(t)

	testCases := []struct {
		name       string
		address    string
		mutate     func(*config.OnrampConfig)
		wantCode   string
		wantStatus int
	}{
		{name: "missing address", address: " ", wantCode: errors.CodeValidation, wantStatus: http.StatusBadRequest},
		{name: "malformed address", address: "0x1234", wantCode: errors.CodeValidation, wantStatus: http.StatusBadRequest},
		{name: "missing key name", address: testAddress, mutate: func(c *config.OnrampConfig) { c.KeyName = "" }, wantCode: errors.CodeConfiguration, wantStatus: http.StatusInternalServerError},
		{name: "missing private key", address: testAddress, mutate: func(c *config.OnrampConfig) { c.PrivateKey = "" }, wantCode: errors.CodeConfiguration, wantStatus: http.StatusInternalServerError},
		{name: "missing project", address: testAddress, mutate: func(c *config.OnrampConfig) { c.ProjectID = "" }, wantCode: errors.CodeConfiguration, wantStatus: http.StatusInternalServerError},
		{name: "unparsable private key", address: testAddress, mutate: func(c *config.OnrampConfig) { c.PrivateKey = "not a key" }, wantCode: errors.CodeConfiguration, wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := testOnrampConfig("http://127.0.0.1:0", pemKey)
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}

			_, err := NewBroker(cfg, nil, testLogger()).SessionURL(context.Background(), tc.address)

			var appErr *errors.AppError
			require.True(t, stderrors.As(err, &appErr))
			assert.Equal(t, tc.wantCode, appErr.Code)
			assert.Equal(t, tc.wantStatus, appErr.HTTPStatus())
		})
	}
}

func TestBroker_MissingConfigurationDetails(t *testing.T) {
	cfg := testOnrampConfig("http://127.0.0.1:0", "")

	_, err := NewBroker(cfg, nil, testLogger()).SessionURL(context.Background(), testAddress)

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, "CDP configuration missing", appErr.UserMessage)
	assert.Equal(t, map[string]bool{"projectId": true, "keyName": true, "privateKey": false}, appErr.Details)
}

func TestBroker_UpstreamRejection(t *testing.T) {
	_, pemKey := testKey(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid jwt"}`))
	}))
	t.Cleanup(server.Close)

	_, err := NewBroker(testOnrampConfig(server.URL, pemKey), server.Client(), testLogger()).
		SessionURL(context.Background(), testAddress)

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, errors.CodeUpstream, appErr.Code)
	assert.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus())
	assert.Equal(t, "Failed to create onramp session", appErr.UserMessage)
	assert.Equal(t, `{"message":"invalid jwt"}`, appErr.Details)
}

func TestBroker_MissingToken(t *testing.T) {
	_, pemKey := testKey(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	t.Cleanup(server.Close)

	_, err := NewBroker(testOnrampConfig(server.URL, pemKey), server.Client(), testLogger()).
		SessionURL(context.Background(), testAddress)

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, errors.CodeUpstreamReply, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus())
	assert.Equal(t, "No session token received", appErr.UserMessage)
}

func TestBroker_UnreachableProvider(t *testing.T) {
	_, pemKey := testKey(t)

	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := NewBroker(testOnrampConfig(server.URL, pemKey), nil, testLogger()).
		SessionURL(context.Background(), testAddress)

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, errors.CodeUpstream, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus())
}
