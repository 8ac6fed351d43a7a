package chain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/omnikiosk/internal/flow"
)

const (
	testPassphrase = "kiosk"
	testToken      = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	testBridge     = "0x1111111111111111111111111111111111111111"
)

type fakeBackend struct {
	mu sync.Mutex

	chainID     int64
	decimals    uint8
	callErrs    int
	calls       int
	baseFee     *big.Int
	sent        []*types.Transaction
	sendErr     error
	receipts    map[common.Hash]*types.Receipt
	missingPoll int
}

func newFakeBackend(chainID int64) *fakeBackend {
	return &fakeBackend{
		chainID:  chainID,
		decimals: 6,
		baseFee:  big.NewInt(1_000_000_000),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(b.chainID), nil
}

func (b *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls++
	if b.callErrs > 0 {
		b.callErrs--
		return nil, errors.New("rpc timeout")
	}

	return erc20ABI.Methods["decimals"].Outputs.Pack(b.decimals)
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.sent)), nil
}

func (b *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (b *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: b.baseFee}, nil
}

func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 90_000, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sendErr != nil {
		return b.sendErr
	}

	b.sent = append(b.sent, tx)
	b.receipts[tx.Hash()] = &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash()}
	return nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.missingPoll > 0 {
		b.missingPoll--
		return nil, ethereum.NotFound
	}

	receipt, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (b *fakeBackend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWallet(t *testing.T, backends map[int64]Backend, opts WalletOptions) *KeystoreWallet {
	t.Helper()

	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	_, err := ks.NewAccount(testPassphrase)
	require.NoError(t, err)

	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	if opts.ReceiptTimeout == 0 {
		opts.ReceiptTimeout = time.Second
	}

	wallet, err := NewKeystoreWallet(ks, "", testPassphrase, NewRegistry(backends), opts, testLogger())
	require.NoError(t, err)
	return wallet
}

func TestNewKeystoreWallet_AccountSelection(t *testing.T) {
	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)

	_, err := NewKeystoreWallet(ks, "", testPassphrase, NewRegistry(nil), WalletOptions{}, testLogger())
	assert.ErrorIs(t, err, ErrAccountNotFound)

	account, err := ks.NewAccount(testPassphrase)
	require.NoError(t, err)

	_, err = NewKeystoreWallet(ks, "0x2222222222222222222222222222222222222222", testPassphrase, NewRegistry(nil), WalletOptions{}, testLogger())
	assert.ErrorIs(t, err, ErrAccountNotFound)

	wallet, err := NewKeystoreWallet(ks, account.Address.Hex(), testPassphrase, NewRegistry(nil), WalletOptions{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, account.Address, wallet.Address())
}

func TestKeystoreWallet_ConnectAndSwitch(t *testing.T) {
	wallet := newTestWallet(t, map[int64]Backend{
		11155111: newFakeBackend(11155111),
		8453:     newFakeBackend(8453),
		10:       newFakeBackend(1),
	}, WalletOptions{InitialChainID: 11155111})
	ctx := context.Background()

	session, err := wallet.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11155111), session.ChainID)
	assert.Equal(t, wallet.Address().Hex(), session.Address)

	session, err = wallet.SwitchChain(ctx, 8453)
	require.NoError(t, err)
	assert.Equal(t, int64(8453), session.ChainID)

	session, err = wallet.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8453), session.ChainID)

	_, err = wallet.SwitchChain(ctx, 42161)
	assert.ErrorIs(t, err, ErrUnknownChain)

	// The RPC registered for 10 answers for another chain.
	_, err = wallet.SwitchChain(ctx, 10)
	assert.Error(t, err)

	session, err = wallet.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8453), session.ChainID)
}

func TestKeystoreWallet_ConnectWithoutBackend(t *testing.T) {
	wallet := newTestWallet(t, map[int64]Backend{}, WalletOptions{InitialChainID: 8453})

	_, err := wallet.Connect(context.Background())
	assert.ErrorIs(t, err, ErrUnknownChain)
}

func TestKeystoreWallet_Decimals(t *testing.T) {
	backend := newFakeBackend(8453)
	backend.decimals = 18
	backend.callErrs = 1
	wallet := newTestWallet(t, map[int64]Backend{8453: backend}, WalletOptions{})

	decimals, err := wallet.Decimals(context.Background(), 8453, testToken)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), decimals)
	assert.Equal(t, 2, backend.calls)

	_, err = wallet.Decimals(context.Background(), 1, testToken)
	assert.ErrorIs(t, err, ErrUnknownChain)
}

func TestKeystoreWallet_ApproveWaitsForReceipt(t *testing.T) {
	backend := newFakeBackend(8453)
	backend.missingPoll = 2
	wallet := newTestWallet(t, map[int64]Backend{8453: backend}, WalletOptions{ApproveGasLimit: 60_000})

	err := wallet.Approve(context.Background(), flow.ApproveRequest{
		ChainID: 8453,
		Token:   testToken,
		Spender: testBridge,
		Amount:  big.NewInt(750000),
	})
	require.NoError(t, err)

	sent := backend.Sent()
	require.Len(t, sent, 1)

	tx := sent[0]
	assert.Equal(t, common.HexToAddress(testToken), *tx.To())
	assert.Equal(t, uint64(60_000), tx.Gas())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, big.NewInt(2_001_000_000), tx.GasFeeCap())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), tx)
	require.NoError(t, err)
	assert.Equal(t, wallet.Address(), sender)

	method, err := erc20ABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "approve", method.Name)

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testBridge), args[0])
	assert.Equal(t, big.NewInt(750000), args[1])
}

func TestKeystoreWallet_ApproveSendFailure(t *testing.T) {
	backend := newFakeBackend(8453)
	wallet := newTestWallet(t, map[int64]Backend{8453: backend}, WalletOptions{})

	backend.mu.Lock()
	backend.sendErr = errors.New("insufficient funds for gas")
	backend.mu.Unlock()

	err := wallet.Approve(context.Background(), flow.ApproveRequest{
		ChainID: 8453, Token: testToken, Spender: testBridge, Amount: big.NewInt(1),
	})
	assert.Error(t, err)
	assert.Empty(t, backend.Sent())
}

func TestKeystoreWallet_SendCrossChainTransfer(t *testing.T) {
	backend := newFakeBackend(8453)
	wallet := newTestWallet(t, map[int64]Backend{8453: backend}, WalletOptions{})

	recipient, err := flow.AddressToBytes32(wallet.Address().Hex())
	require.NoError(t, err)

	hash, err := wallet.SendCrossChainTransfer(context.Background(), flow.TransferRequest{
		ChainID:            8453,
		Bridge:             testBridge,
		Token:              testToken,
		DestinationChainID: 84532,
		Recipient:          recipient,
		Amount:             big.NewInt(750000),
		Value:              big.NewInt(12345),
	})
	require.NoError(t, err)

	sent := backend.Sent()
	require.Len(t, sent, 1)

	tx := sent[0]
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Equal(t, common.HexToAddress(testBridge), *tx.To())
	assert.Equal(t, big.NewInt(12345), tx.Value())
	assert.Equal(t, uint64(90_000), tx.Gas())

	method, err := bridgeABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "sendOFT", method.Name)

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testToken), args[0])
	assert.Equal(t, uint32(84532), args[1])
	assert.Equal(t, recipient, args[2])
	assert.Equal(t, big.NewInt(750000), args[3])
	assert.Empty(t, args[4])
}

func TestKeystoreWallet_WatchReceipt(t *testing.T) {
	backend := newFakeBackend(8453)
	wallet := newTestWallet(t, map[int64]Backend{8453: backend}, WalletOptions{ReceiptTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	reverted := common.HexToHash("0x01")
	backend.receipts[reverted] = &types.Receipt{Status: types.ReceiptStatusFailed}

	status, err := wallet.WatchReceipt(ctx, 8453, reverted.Hex())
	require.NoError(t, err)
	assert.Equal(t, flow.ReceiptReverted, status)

	status, err = wallet.WatchReceipt(ctx, 8453, common.HexToHash("0x02").Hex())
	require.NoError(t, err)
	assert.Equal(t, flow.ReceiptNotFound, status)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	status, err = wallet.WatchReceipt(cancelled, 8453, common.HexToHash("0x03").Hex())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, flow.ReceiptNotFound, status)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(map[int64]Backend{
		8453:     newFakeBackend(8453),
		11155111: newFakeBackend(11155111),
	})

	assert.Equal(t, []int64{8453, 11155111}, registry.ChainIDs())
	assert.NoError(t, registry.Check(context.Background()))

	_, err := registry.Backend(1)
	assert.ErrorIs(t, err, ErrUnknownChain)
}
