package flow

import (
	"context"
	"math/big"
)

// Session is an active wallet session.
type Session struct {
	Address string `json:"address"`
	ChainID int64  `json:"chainId"`
}

// ReceiptStatus is the terminal outcome of a receipt watch.
type ReceiptStatus int

const (
	ReceiptNotFound ReceiptStatus = iota
	ReceiptSuccess
	ReceiptReverted
)

func (s ReceiptStatus) String() string {
	switch s {
	case ReceiptSuccess:
		return "success"
	case ReceiptReverted:
		return "reverted"
	default:
		return "not_found"
	}
}

// ApproveRequest asks the wallet to approve Amount of Token to Spender.
type ApproveRequest struct {
	ChainID int64
	Token   string
	Spender string
	Amount  *big.Int
}

// TransferRequest describes a bridge sendOFT call.
type TransferRequest struct {
	ChainID            int64
	Bridge             string
	Token              string
	DestinationChainID uint32
	Recipient          [32]byte
	Amount             *big.Int
	Options            []byte
	Value              *big.Int
}

// Wallet is the wallet-session and chain-RPC capability the controller drives.
type Wallet interface {
	// Connect returns the active session, establishing one if needed.
	Connect(ctx context.Context) (Session, error)
	// SwitchChain moves the session to chainID.
	SwitchChain(ctx context.Context, chainID int64) (Session, error)
	// Decimals reads the token's decimal count on chainID.
	Decimals(ctx context.Context, chainID int64, token string) (uint8, error)
	// Approve returns once the allowance is in effect.
	Approve(ctx context.Context, req ApproveRequest) error
	// SendCrossChainTransfer returns the transaction hash once broadcast.
	SendCrossChainTransfer(ctx context.Context, req TransferRequest) (string, error)
	// WatchReceipt blocks until the transaction reaches a terminal status.
	WatchReceipt(ctx context.Context, chainID int64, hash string) (ReceiptStatus, error)
}

// DispenseEvent is posted once per successful payment.
type DispenseEvent struct {
	TransactionHash string `json:"transactionHash"`
	ChainID         int64  `json:"chainId"`
	Amount          string `json:"amount"`
}

// Dispenser triggers the physical dispensing for a confirmed payment.
type Dispenser interface {
	Dispense(ctx context.Context, event DispenseEvent) error
}
