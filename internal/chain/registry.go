// Package chain talks to EVM chains over JSON-RPC and signs kiosk payments with a keystore account.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrUnknownChain indicates a chain with no registered RPC backend.
var ErrUnknownChain = errors.New("no rpc backend for chain")

// Backend is the subset of ethclient.Client the wallet needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Registry holds one Backend per chain id.
type Registry struct {
	backends map[int64]Backend
	closers  []func()
}

// NewRegistry wraps already constructed backends.
func NewRegistry(backends map[int64]Backend) *Registry {
	copied := make(map[int64]Backend, len(backends))
	for id, backend := range backends {
		copied[id] = backend
	}

	return &Registry{backends: copied}
}

// Dial connects to every endpoint and checks that each RPC serves the chain it is configured for.
// Endpoints without a URL are skipped.
func Dial(ctx context.Context, endpoints map[int64]string, log *slog.Logger) (*Registry, error) {
	if log == nil {
		log = slog.Default()
	}

	registry := &Registry{backends: make(map[int64]Backend, len(endpoints))}
	for id, url := range endpoints {
		if url == "" {
			log.Warn("chain has no rpc url, skipping", "chain_id", id)
			continue
		}

		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("dial chain %d: %w", id, err)
		}

		served, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			registry.Close()
			return nil, fmt.Errorf("chain id of %d rpc: %w", id, err)
		}

		if served.Int64() != id {
			client.Close()
			registry.Close()
			return nil, fmt.Errorf("rpc for chain %d serves chain %s", id, served)
		}

		registry.backends[id] = client
		registry.closers = append(registry.closers, client.Close)
		log.Info("chain rpc connected", "chain_id", id)
	}

	return registry, nil
}

// Backend returns the backend for chainID.
func (r *Registry) Backend(chainID int64) (Backend, error) {
	backend, ok := r.backends[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	return backend, nil
}

// ChainIDs returns the registered chain ids in ascending order.
func (r *Registry) ChainIDs() []int64 {
	ids := make([]int64, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Check asks every backend for its chain id.
func (r *Registry) Check(ctx context.Context) error {
	for _, id := range r.ChainIDs() {
		if _, err := r.backends[id].ChainID(ctx); err != nil {
			return fmt.Errorf("chain %d: %w", id, err)
		}
	}
	return nil
}

// Close releases dialed connections.
func (r *Registry) Close() {
	for _, closeFn := range r.closers {
		closeFn()
	}
	r.closers = nil
}
