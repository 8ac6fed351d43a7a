// Package dispense tells the vending hardware to release goods once a payment is confirmed.
package dispense

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Proton-105/omnikiosk/internal/errors"
	"github.com/Proton-105/omnikiosk/internal/flow"
	"github.com/Proton-105/omnikiosk/internal/idempotency"
	"github.com/Proton-105/omnikiosk/internal/relay"
)

const defaultIdempotencyTTL = 24 * time.Hour

// Result labels reported to the result recorder.
const (
	ResultDelivered   = "delivered"
	ResultDuplicate   = "duplicate"
	ResultRejected    = "rejected"
	ResultFailed      = "failed"
	ResultCircuitOpen = "circuit_open"
)

// Forwarder delivers a JSON body to the dispensing webhook.
type Forwarder interface {
	Forward(ctx context.Context, body []byte) (relay.Reply, error)
}

// Announcer posts a human-readable notice about a dispensed payment.
type Announcer interface {
	Announce(ctx context.Context, event flow.DispenseEvent) error
}

var resultRecorder = func(result string) {}

// RegisterResultRecorder allows external packages to observe dispense outcomes.
func RegisterResultRecorder(recorder func(result string)) {
	if recorder == nil {
		resultRecorder = func(string) {}
		return
	}

	resultRecorder = recorder
}

var _ flow.Dispenser = (*Notifier)(nil)

// Notifier posts each confirmed payment to the webhook at most once per transaction.
type Notifier struct {
	forwarder Forwarder
	manager   *idempotency.Manager
	breaker   *errors.CircuitBreaker
	announcer Announcer
	ttl       time.Duration
	log       *slog.Logger
}

// NewNotifier wires a Notifier. announcer may be nil.
func NewNotifier(forwarder Forwarder, manager *idempotency.Manager, breaker *errors.CircuitBreaker, announcer Announcer, ttl time.Duration, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if breaker == nil {
		breaker = errors.NewCircuitBreaker(errors.DefaultBreakerSettings())
	}

	return &Notifier{
		forwarder: forwarder,
		manager:   manager,
		breaker:   breaker,
		announcer: announcer,
		ttl:       ttl,
		log:       log,
	}
}

// Dispense posts {transactionHash, chainId, amount} to the webhook. A repeat for the same
// transaction returns nil without posting again.
func (n *Notifier) Dispense(ctx context.Context, event flow.DispenseEvent) error {
	log := n.log.With("tx_hash", event.TransactionHash, "chain_id", event.ChainID)
	key := idempotency.Key("dispense", event.ChainID, strings.ToLower(event.TransactionHash))

	result, err := n.manager.Execute(ctx, key, n.ttl, func(ctx context.Context) (any, error) {
		return n.deliver(ctx, event)
	})
	if err != nil {
		switch {
		case stderrors.Is(err, idempotency.ErrRequestInProgress):
			resultRecorder(ResultDuplicate)
			return nil
		case stderrors.Is(err, errors.ErrCircuitOpen), stderrors.Is(err, errors.ErrHalfOpenTooManyRequests):
			resultRecorder(ResultCircuitOpen)
		default:
			var appErr *errors.AppError
			if stderrors.As(err, &appErr) && appErr.Code == errors.CodeUpstream && appErr.Status != 0 {
				resultRecorder(ResultRejected)
			} else {
				resultRecorder(ResultFailed)
			}
		}

		log.Warn("dispense webhook failed", "error", err)
		return err
	}

	if result.FromCache {
		resultRecorder(ResultDuplicate)
		log.Info("dispense already delivered")
		return nil
	}

	resultRecorder(ResultDelivered)
	log.Info("dispense delivered")

	if n.announcer != nil {
		if err := n.announcer.Announce(ctx, event); err != nil {
			log.Warn("dispense announcement failed", "error", err)
		}
	}

	return nil
}

func (n *Notifier) deliver(ctx context.Context, event flow.DispenseEvent) (int, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("encode dispense event: %w", err)
	}

	var status int
	err = n.breaker.Call(func() error {
		reply, err := n.forwarder.Forward(ctx, body)
		if err != nil {
			return err
		}

		status = reply.Status
		if !reply.OK() {
			return errors.NewUpstreamError("dispense webhook", reply.Status, string(reply.Body), nil)
		}
		return nil
	})

	return status, err
}
