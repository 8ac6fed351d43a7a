package flow

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	defaultTokenDecimals     = 6
	defaultReceiptResetAfter = 15 * time.Second
)

// Chain is a source chain offered on the choose-chain screen.
type Chain struct {
	ID   int64
	Name string
}

// Config is everything the controller needs to know about the deployment.
type Config struct {
	KioskID string
	// Chains is the supported set in display order; the first entry is the default selection.
	Chains             []Chain
	TokenAddresses     map[int64]string
	BridgeAddress      string
	DestinationChainID uint32
	// Price is the fixed decimal price in whole tokens, e.g. "0.75".
	Price             string
	TokenSymbol       string
	DefaultDecimals   uint8
	ReceiptResetAfter time.Duration
	// NativeFee is sent as msg.value with the bridge call.
	NativeFee *big.Int
}

func (c Config) withDefaults() Config {
	if c.DefaultDecimals == 0 {
		c.DefaultDecimals = defaultTokenDecimals
	}
	if c.ReceiptResetAfter <= 0 {
		c.ReceiptResetAfter = defaultReceiptResetAfter
	}
	if c.NativeFee == nil {
		c.NativeFee = new(big.Int)
	}
	if c.TokenSymbol == "" {
		c.TokenSymbol = "USDC"
	}
	return c
}

func (c Config) validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("%w: no supported chains", ErrInvalidConfig)
	}
	if !common.IsHexAddress(c.BridgeAddress) {
		return fmt.Errorf("%w: bridge address %q", ErrInvalidConfig, c.BridgeAddress)
	}
	price, err := decimal.NewFromString(c.Price)
	if err != nil || !price.IsPositive() {
		return fmt.Errorf("%w: price %q", ErrInvalidConfig, c.Price)
	}
	for id, token := range c.TokenAddresses {
		if !common.IsHexAddress(token) {
			return fmt.Errorf("%w: token address for chain %d", ErrInvalidConfig, id)
		}
	}
	return nil
}

// DefaultChainID returns the first supported chain.
func (c Config) DefaultChainID() int64 {
	if len(c.Chains) == 0 {
		return 0
	}
	return c.Chains[0].ID
}

// Supported reports whether id is in the configured chain set.
func (c Config) Supported(id int64) bool {
	for _, chain := range c.Chains {
		if chain.ID == id {
			return true
		}
	}
	return false
}

// Enabled reports whether a payer may select id: it must be supported and have a token address.
func (c Config) Enabled(id int64) bool {
	if !c.Supported(id) {
		return false
	}
	token, ok := c.TokenAddresses[id]
	return ok && token != ""
}

// ChainName returns the display name for id, or an empty string.
func (c Config) ChainName(id int64) string {
	for _, chain := range c.Chains {
		if chain.ID == id {
			return chain.Name
		}
	}
	return ""
}
