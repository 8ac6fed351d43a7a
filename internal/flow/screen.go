// Package flow drives the kiosk payment screens from welcome to receipt and back.
package flow

import "time"

// Screen is one step of the kiosk flow. Exactly one screen is active at a time.
type Screen string

const (
	// ScreenWelcome is the idle attract screen.
	ScreenWelcome Screen = "welcome"
	// ScreenChooseChain lists the chains a payer can pay from.
	ScreenChooseChain Screen = "choose_chain"
	// ScreenConnect waits for a wallet session on the selected chain.
	ScreenConnect Screen = "connect"
	// ScreenReview shows the price and chain before paying.
	ScreenReview Screen = "review"
	// ScreenPaying waits for approval, transfer submission and the receipt.
	ScreenPaying Screen = "paying"
	// ScreenReceipt confirms the payment until the auto-reset fires.
	ScreenReceipt Screen = "receipt"
)

// Screens lists every screen in flow order.
var Screens = []Screen{
	ScreenWelcome,
	ScreenChooseChain,
	ScreenConnect,
	ScreenReview,
	ScreenPaying,
	ScreenReceipt,
}

// FlowState is the single mutable record of one kiosk session.
type FlowState struct {
	KioskID             string    `json:"kioskId"`
	Screen              Screen    `json:"screen"`
	SelectedChainID     int64     `json:"selectedChainId"`
	ChainName           string    `json:"chainName,omitempty"`
	WalletAddress       string    `json:"walletAddress,omitempty"`
	TransactionHash     string    `json:"transactionHash,omitempty"`
	CancelPromptVisible bool      `json:"cancelPromptVisible"`
	Amount              string    `json:"amount"`
	TokenSymbol         string    `json:"tokenSymbol"`
	Notice              string    `json:"notice,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Initial returns the welcome state for cfg: default chain, no wallet, no hash, no prompt.
func Initial(cfg Config) FlowState {
	chainID := cfg.DefaultChainID()
	return FlowState{
		KioskID:         cfg.KioskID,
		Screen:          ScreenWelcome,
		SelectedChainID: chainID,
		ChainName:       cfg.ChainName(chainID),
		Amount:          cfg.Price,
		TokenSymbol:     cfg.TokenSymbol,
	}
}

// Validate reports the first violated flow invariant, if any.
func (s FlowState) Validate(cfg Config) error {
	if s.Screen == ScreenWelcome && (s.TransactionHash != "" || s.CancelPromptVisible) {
		return ErrInvariantViolated
	}

	if s.TransactionHash != "" && s.Screen != ScreenPaying && s.Screen != ScreenReceipt {
		return ErrInvariantViolated
	}

	if s.Screen != ScreenWelcome && !cfg.Supported(s.SelectedChainID) {
		return ErrInvariantViolated
	}

	return nil
}
