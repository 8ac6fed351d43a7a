// Package onramp exchanges a wallet address for a hosted fiat on-ramp checkout URL.
package onramp

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Proton-105/omnikiosk/internal/errors"
	"github.com/Proton-105/omnikiosk/pkg/config"
)

const (
	tokenLifetime  = 2 * time.Minute
	jwtIssuer      = "cdp"
	jwtAudience    = "cdp_service"
	apiName        = "onramp"
	maxUpstreamLen = 64 << 10
)

type destinationWallet struct {
	Address     string   `json:"address"`
	Blockchains []string `json:"blockchains"`
}

type tokenRequest struct {
	DestinationWallets []destinationWallet `json:"destination_wallets"`
	Assets             []string            `json:"assets"`
	PresetFiatAmount   float64             `json:"preset_fiat_amount"`
	PaymentMethods     []string            `json:"payment_methods"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Broker signs provider credentials and requests on-ramp session tokens.
type Broker struct {
	cfg    config.OnrampConfig
	client *http.Client
	log    *slog.Logger
	now    func() time.Time
}

// NewBroker creates a Broker. A nil client gets one with cfg.Timeout.
func NewBroker(cfg config.OnrampConfig, client *http.Client, log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}

	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Broker{
		cfg:    cfg,
		client: client,
		log:    log,
		now:    time.Now,
	}
}

// SessionURL returns the checkout URL for address.
func (b *Broker) SessionURL(ctx context.Context, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.NewValidationError("Address is required")
	}

	if !common.IsHexAddress(address) {
		return "", errors.NewValidationError("Address must be a 0x-prefixed EVM address")
	}

	if b.cfg.ProjectID == "" || b.cfg.KeyName == "" || b.cfg.PrivateKey == "" {
		return "", errors.NewConfigurationError("CDP configuration missing", map[string]bool{
			"projectId":  b.cfg.ProjectID != "",
			"keyName":    b.cfg.KeyName != "",
			"privateKey": b.cfg.PrivateKey != "",
		})
	}

	token, err := b.signJWT()
	if err != nil {
		return "", errors.NewConfigurationError("JWT creation failed", err.Error())
	}

	sessionToken, err := b.requestToken(ctx, token, address)
	if err != nil {
		return "", err
	}

	return b.checkoutURL(sessionToken), nil
}

func (b *Broker) signJWT() (string, error) {
	// Keys stored in env files often carry literal \n sequences.
	pemKey := strings.ReplaceAll(b.cfg.PrivateKey, `\n`, "\n")

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	now := b.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    jwtIssuer,
		Subject:   b.cfg.KeyName,
		Audience:  jwt.ClaimStrings{jwtAudience},
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = b.cfg.KeyName
	token.Header["nonce"] = hex.EncodeToString(nonce)

	return token.SignedString(key)
}

func (b *Broker) requestToken(ctx context.Context, bearer, address string) (string, error) {
	payload, err := json.Marshal(tokenRequest{
		DestinationWallets: []destinationWallet{{
			Address:     address,
			Blockchains: b.cfg.Blockchains,
		}},
		Assets:           b.cfg.Assets,
		PresetFiatAmount: b.cfg.PresetFiatAmount,
		PaymentMethods:   b.cfg.PaymentMethods,
	})
	if err != nil {
		return "", fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", errors.NewUpstreamError(apiName, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamLen))
	if err != nil {
		return "", errors.NewUpstreamError(apiName, resp.StatusCode, err.Error(), err)
	}

	b.log.Info("onramp token response", "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		appErr := errors.NewUpstreamError(apiName, resp.StatusCode, string(body), nil)
		appErr.UserMessage = "Failed to create onramp session"
		return "", appErr
	}

	var decoded tokenResponse
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Token == "" {
		return "", errors.NewUpstreamResponseError("No session token received", json.RawMessage(validJSONOrString(body)))
	}

	return decoded.Token, nil
}

func (b *Broker) checkoutURL(sessionToken string) string {
	query := url.Values{}
	query.Set("sessionToken", sessionToken)
	query.Set("defaultAsset", b.cfg.DefaultAsset)
	query.Set("defaultNetwork", b.cfg.DefaultNetwork)

	return b.cfg.CheckoutURL + "?" + query.Encode()
}

func validJSONOrString(body []byte) []byte {
	if json.Valid(body) {
		return body
	}

	quoted, _ := json.Marshal(string(body))
	return quoted
}
