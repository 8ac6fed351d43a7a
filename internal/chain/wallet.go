package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	apperrors "github.com/Proton-105/omnikiosk/internal/errors"
	"github.com/Proton-105/omnikiosk/internal/flow"
	"github.com/Proton-105/omnikiosk/pkg/config"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultReceiptTimeout = 3 * time.Minute
)

var (
	// ErrAccountNotFound indicates that the keystore does not hold the configured account.
	ErrAccountNotFound = errors.New("account not found in keystore")
	// ErrTransactionReverted indicates a mined transaction with a failed status.
	ErrTransactionReverted = errors.New("transaction reverted")
)

var _ flow.Wallet = (*KeystoreWallet)(nil)

// WalletOptions tunes transaction building and receipt polling.
type WalletOptions struct {
	// InitialChainID is the chain reported by Connect before any switch.
	InitialChainID  int64
	PollInterval    time.Duration
	ReceiptTimeout  time.Duration
	ApproveGasLimit uint64
	SendGasLimit    uint64
}

// KeystoreWallet is an unattended kiosk wallet: a keystore account that signs with its passphrase
// on every transaction and sends through the registry's RPC backends.
type KeystoreWallet struct {
	ks         *keystore.KeyStore
	account    accounts.Account
	passphrase string
	registry   *Registry
	opts       WalletOptions
	log        *slog.Logger

	mu          sync.Mutex
	activeChain int64

	// sendMu keeps nonce assignment and broadcast in order.
	sendMu sync.Mutex
}

// OpenKeystoreWallet opens the keystore directory from cfg and selects its account.
func OpenKeystoreWallet(cfg config.WalletConfig, registry *Registry, initialChainID int64, log *slog.Logger) (*KeystoreWallet, error) {
	ks := keystore.NewKeyStore(cfg.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)

	return NewKeystoreWallet(ks, cfg.Account, cfg.Passphrase, registry, WalletOptions{
		InitialChainID:  initialChainID,
		PollInterval:    cfg.PollInterval,
		ReceiptTimeout:  cfg.ReceiptTimeout,
		ApproveGasLimit: cfg.ApproveGasLimit,
		SendGasLimit:    cfg.SendGasLimit,
	}, log)
}

// NewKeystoreWallet selects address from ks, or its first account when address is empty.
func NewKeystoreWallet(ks *keystore.KeyStore, address, passphrase string, registry *Registry, opts WalletOptions, log *slog.Logger) (*KeystoreWallet, error) {
	if log == nil {
		log = slog.Default()
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = defaultReceiptTimeout
	}

	var account accounts.Account
	switch {
	case address != "":
		account = accounts.Account{Address: common.HexToAddress(address)}
		if !ks.HasAddress(account.Address) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, account.Address.Hex())
		}
	case len(ks.Accounts()) > 0:
		account = ks.Accounts()[0]
	default:
		return nil, fmt.Errorf("%w: keystore is empty", ErrAccountNotFound)
	}

	return &KeystoreWallet{
		ks:          ks,
		account:     account,
		passphrase:  passphrase,
		registry:    registry,
		opts:        opts,
		log:         log.With("account", account.Address.Hex()),
		activeChain: opts.InitialChainID,
	}, nil
}

// Address returns the signing account.
func (w *KeystoreWallet) Address() common.Address {
	return w.account.Address
}

// Connect reports the session of the keystore account on the active chain.
func (w *KeystoreWallet) Connect(ctx context.Context) (flow.Session, error) {
	w.mu.Lock()
	chainID := w.activeChain
	w.mu.Unlock()

	if _, err := w.registry.Backend(chainID); err != nil {
		return flow.Session{}, apperrors.NewWalletRejectedError("connect", err)
	}

	return flow.Session{Address: w.account.Address.Hex(), ChainID: chainID}, nil
}

// SwitchChain moves the active chain after confirming its RPC answers for that chain.
func (w *KeystoreWallet) SwitchChain(ctx context.Context, chainID int64) (flow.Session, error) {
	backend, err := w.registry.Backend(chainID)
	if err != nil {
		return flow.Session{}, apperrors.NewWalletRejectedError("switch", err)
	}

	served, err := backend.ChainID(ctx)
	if err != nil {
		return flow.Session{}, apperrors.NewWalletRejectedError("switch", err)
	}
	if served.Int64() != chainID {
		return flow.Session{}, apperrors.NewWalletRejectedError("switch", fmt.Errorf("rpc serves chain %s", served))
	}

	w.mu.Lock()
	w.activeChain = chainID
	w.mu.Unlock()

	w.log.Info("wallet switched chain", "chain_id", chainID)
	return flow.Session{Address: w.account.Address.Hex(), ChainID: chainID}, nil
}

// Decimals reads the token's decimals, retrying transient RPC failures.
func (w *KeystoreWallet) Decimals(ctx context.Context, chainID int64, token string) (uint8, error) {
	backend, err := w.registry.Backend(chainID)
	if err != nil {
		return 0, err
	}

	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}

	tokenAddr := common.HexToAddress(token)

	var out []byte
	err = apperrors.WithRetry(ctx, func() error {
		var callErr error
		out, callErr = backend.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
		if callErr != nil {
			return apperrors.NewChainReadError("decimals", callErr)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	values, err := erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}

	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", values[0])
	}

	return decimals, nil
}

// Approve sends approve(spender, amount) and waits for a successful receipt.
func (w *KeystoreWallet) Approve(ctx context.Context, req flow.ApproveRequest) error {
	data, err := erc20ABI.Pack("approve", common.HexToAddress(req.Spender), req.Amount)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}

	hash, err := w.send(ctx, req.ChainID, common.HexToAddress(req.Token), data, nil, w.opts.ApproveGasLimit)
	if err != nil {
		return apperrors.NewWalletRejectedError("approve", err)
	}

	status, err := w.WatchReceipt(ctx, req.ChainID, hash)
	if err != nil {
		return err
	}

	switch status {
	case flow.ReceiptSuccess:
		w.log.Info("approval confirmed", "chain_id", req.ChainID, "tx_hash", hash, "amount", req.Amount.String())
		return nil
	case flow.ReceiptReverted:
		return fmt.Errorf("approve %s: %w", hash, ErrTransactionReverted)
	default:
		return fmt.Errorf("approve %s: receipt not found within %s", hash, w.opts.ReceiptTimeout)
	}
}

// SendCrossChainTransfer calls sendOFT on the bridge and returns once the transaction is broadcast.
func (w *KeystoreWallet) SendCrossChainTransfer(ctx context.Context, req flow.TransferRequest) (string, error) {
	options := req.Options
	if options == nil {
		options = []byte{}
	}

	data, err := bridgeABI.Pack("sendOFT",
		common.HexToAddress(req.Token),
		req.DestinationChainID,
		req.Recipient,
		req.Amount,
		options,
	)
	if err != nil {
		return "", fmt.Errorf("pack sendOFT: %w", err)
	}

	hash, err := w.send(ctx, req.ChainID, common.HexToAddress(req.Bridge), data, req.Value, w.opts.SendGasLimit)
	if err != nil {
		return "", apperrors.NewWalletRejectedError("transfer", err)
	}

	return hash, nil
}

// WatchReceipt polls until the transaction is mined or the receipt timeout passes.
func (w *KeystoreWallet) WatchReceipt(ctx context.Context, chainID int64, hash string) (flow.ReceiptStatus, error) {
	backend, err := w.registry.Backend(chainID)
	if err != nil {
		return flow.ReceiptNotFound, err
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.ReceiptTimeout)
	defer cancel()

	txHash := common.HexToHash(hash)
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := backend.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusSuccessful {
				return flow.ReceiptSuccess, nil
			}
			return flow.ReceiptReverted, nil
		case errors.Is(err, ethereum.NotFound):
		case ctx.Err() == nil:
			w.log.Warn("receipt poll failed", "chain_id", chainID, "tx_hash", hash, "error", err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				w.log.Warn("receipt not found before timeout", "chain_id", chainID, "tx_hash", hash)
				return flow.ReceiptNotFound, nil
			}
			return flow.ReceiptNotFound, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *KeystoreWallet) send(ctx context.Context, chainID int64, to common.Address, data []byte, value *big.Int, gasLimit uint64) (string, error) {
	backend, err := w.registry.Backend(chainID)
	if err != nil {
		return "", err
	}

	if value == nil {
		value = new(big.Int)
	}

	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	nonce, err := backend.PendingNonceAt(ctx, w.account.Address)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}

	tip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas tip: %w", err)
	}

	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("latest header: %w", err)
	}

	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	if gasLimit == 0 {
		gasLimit, err = backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  w.account.Address,
			To:    &to,
			Value: value,
			Data:  data,
		})
		if err != nil {
			return "", fmt.Errorf("estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(chainID),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := w.ks.SignTxWithPassphrase(w.account, w.passphrase, tx, big.NewInt(chainID))
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if err := backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	hash := signed.Hash().Hex()
	w.log.Info("transaction broadcast", "chain_id", chainID, "to", to.Hex(), "tx_hash", hash, "nonce", nonce)
	return hash, nil
}
