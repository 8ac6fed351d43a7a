package flow

import "errors"

var (
	// ErrInvalidTransition indicates that the requested action is not allowed on the current screen.
	ErrInvalidTransition = errors.New("invalid screen transition")
	// ErrChainNotEnabled indicates a chain that is unsupported or has no token address configured.
	ErrChainNotEnabled = errors.New("chain is not enabled for payment")
	// ErrWalletNotConnected indicates that no wallet session is active.
	ErrWalletNotConnected = errors.New("wallet is not connected")
	// ErrWrongChain indicates that the wallet session is on a different chain than the selected one.
	ErrWrongChain = errors.New("wallet is on the wrong chain")
	// ErrCancelPromptOpen indicates that the cancel confirmation must be answered first.
	ErrCancelPromptOpen = errors.New("cancel confirmation is open")
	// ErrNoCancelPrompt indicates a cancel answer without an open prompt.
	ErrNoCancelPrompt = errors.New("cancel confirmation is not open")
	// ErrInvalidSession indicates a wallet session event with a malformed address or chain.
	ErrInvalidSession = errors.New("invalid wallet session")
	// ErrInvalidAmount indicates a price that cannot be expressed exactly in the token's smallest unit.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidConfig indicates an unusable controller configuration.
	ErrInvalidConfig = errors.New("invalid flow config")
	// ErrInvariantViolated indicates a FlowState that breaks a flow invariant.
	ErrInvariantViolated = errors.New("flow state invariant violated")
)
