package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Notices shown inline after a recoverable failure. The payer can retry the same action.
const (
	NoticeConnectRejected  = "wallet_connect_rejected"
	NoticeSwitchRejected   = "network_switch_rejected"
	NoticeApproveFailed    = "approval_failed"
	NoticeTransferFailed   = "transfer_failed"
	NoticeNotConfirmed     = "payment_not_confirmed"
	NoticeInvalidAmount    = "invalid_amount"
	NoticeWrongChain       = "wrong_chain"
	NoticeWalletNotPresent = "wallet_not_connected"
)

// Timer is a pending callback that can be stopped.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through a small adapter.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithStore mirrors every committed state into store.
func WithStore(store Store) Option {
	return func(c *Controller) { c.store = store }
}

// WithDispenser sets the collaborator notified once per confirmed payment.
func WithDispenser(d Dispenser) Option {
	return func(c *Controller) { c.dispenser = d }
}

// WithAfterFunc replaces the timer source used for the receipt auto-reset.
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Controller) {
		if fn != nil {
			c.afterFunc = fn
		}
	}
}

// WithContext sets the parent context of background wallet calls.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) {
		if ctx != nil {
			c.parent = ctx
		}
	}
}

// Controller owns one kiosk's FlowState. All mutations are serialized by mu; completions of
// background wallet calls are applied only if no reset happened since they were started.
type Controller struct {
	mu        sync.Mutex
	cfg       Config
	pending   *Config
	state     FlowState
	session   *Session
	wallet    Wallet
	dispenser Dispenser
	store     Store
	snapshots *snapshotWriter
	log       *slog.Logger

	afterFunc AfterFunc
	timer     Timer
	timerSeq  uint64

	// generation increments on every reset to welcome.
	generation uint64
	connecting bool
	switching  bool

	parent  context.Context
	baseCtx context.Context
	cancel  context.CancelFunc

	// sessionCtx bounds connect and switch requests of the current generation.
	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	wg     sync.WaitGroup
	closed bool
}

// NewController builds a controller in the initial welcome state.
func NewController(cfg Config, wallet Wallet, opts ...Option) (*Controller, error) {
	if wallet == nil {
		return nil, fmt.Errorf("%w: wallet is required", ErrInvalidConfig)
	}

	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:       cfg,
		wallet:    wallet,
		log:       slog.Default(),
		afterFunc: realAfterFunc,
		parent:    context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.log = c.log.With("kiosk_id", cfg.KioskID)
	c.baseCtx, c.cancel = context.WithCancel(c.parent)
	c.sessionCtx, c.sessionCancel = context.WithCancel(c.baseCtx)
	if c.store != nil {
		c.snapshots = newSnapshotWriter(c.store, cfg.KioskID, c.log)
	}
	c.state = Initial(cfg)
	c.commitLocked()

	return c, nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Config returns the configuration currently in effect.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cfg
}

// Start moves from welcome to chain selection.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.CancelPromptVisible {
		return ErrCancelPromptOpen
	}

	return c.transitionLocked(ctx, ScreenChooseChain)
}

// SelectChain records the payer's source chain and starts connecting the wallet.
func (c *Controller) SelectChain(ctx context.Context, chainID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.CancelPromptVisible {
		return ErrCancelPromptOpen
	}

	if c.state.Screen != ScreenChooseChain {
		return ErrInvalidTransition
	}

	if !c.cfg.Enabled(chainID) {
		return fmt.Errorf("%w: %d", ErrChainNotEnabled, chainID)
	}

	c.state.SelectedChainID = chainID
	c.state.ChainName = c.cfg.ChainName(chainID)
	if err := c.transitionLocked(ctx, ScreenConnect); err != nil {
		return err
	}

	c.advanceConnectLocked(ctx)
	return nil
}

// RequestConnect asks the wallet for a session while on the connect screen. Repeated calls
// while a request is outstanding are no-ops.
func (c *Controller) RequestConnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Screen != ScreenConnect {
		return ErrInvalidTransition
	}

	c.advanceConnectLocked(ctx)
	return nil
}

// OnSession applies a wallet session event. An empty address means the wallet disconnected.
func (c *Controller) OnSession(ctx context.Context, session Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.applySessionLocked(ctx, session)
}

// Pay starts the approve then transfer sequence from the review screen.
func (c *Controller) Pay(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.CancelPromptVisible {
		return ErrCancelPromptOpen
	}

	if c.state.Screen != ScreenReview {
		return ErrInvalidTransition
	}

	if c.session == nil {
		if err := c.transitionLocked(ctx, ScreenConnect); err != nil {
			return err
		}
		c.setNoticeLocked(ctx, NoticeWalletNotPresent)
		c.advanceConnectLocked(ctx)
		return ErrWalletNotConnected
	}

	if c.session.ChainID != c.state.SelectedChainID {
		if err := c.transitionLocked(ctx, ScreenConnect); err != nil {
			return err
		}
		c.setNoticeLocked(ctx, NoticeWrongChain)
		c.advanceConnectLocked(ctx)
		return ErrWrongChain
	}

	if err := c.transitionLocked(ctx, ScreenPaying); err != nil {
		return err
	}

	job := paymentJob{
		generation: c.generation,
		cfg:        c.cfg,
		chainID:    c.state.SelectedChainID,
		payer:      c.session.Address,
	}
	c.goLocked(c.baseCtx, func(ctx context.Context) { c.runPayment(ctx, job) })

	return nil
}

// Cancel opens the cancel confirmation on any screen except welcome.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Screen == ScreenWelcome {
		return ErrInvalidTransition
	}

	if c.state.CancelPromptVisible {
		return nil
	}

	c.stopTimerLocked()
	c.state.CancelPromptVisible = true
	c.commitLocked()
	return nil
}

// KeepGoing hides the cancel confirmation and stays on the current screen.
func (c *Controller) KeepGoing(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.CancelPromptVisible {
		return ErrNoCancelPrompt
	}

	c.state.CancelPromptVisible = false
	if c.state.Screen == ScreenReceipt {
		c.armTimerLocked()
	}
	c.commitLocked()
	return nil
}

// ConfirmCancel returns to the initial welcome state. A transaction already broadcast is not revoked.
func (c *Controller) ConfirmCancel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.CancelPromptVisible {
		return ErrNoCancelPrompt
	}

	c.resetLocked(ctx, "cancelled")
	return nil
}

// UpdateConfig replaces the configuration. It applies immediately on an idle welcome screen and
// otherwise at the next reset, so a running session keeps the settings it started with.
func (c *Controller) UpdateConfig(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cfg.KioskID = c.cfg.KioskID
	if c.state.Screen == ScreenWelcome && !c.connecting && !c.switching {
		c.cfg = cfg
		c.pending = nil
		c.state = Initial(cfg)
		c.commitLocked()
		c.log.Info("flow config applied")
		return nil
	}

	c.pending = &cfg
	c.log.Info("flow config queued until next reset", "screen", c.state.Screen)
	return nil
}

// Close stops the reset timer, waits for background wallet calls to return and writes the
// last snapshot.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	if c.snapshots != nil {
		c.snapshots.Close()
	}
}

// advanceConnectLocked moves the connect screen forward: request a session, request a switch,
// or continue to review, with at most one wallet request outstanding.
func (c *Controller) advanceConnectLocked(ctx context.Context) {
	if c.state.Screen != ScreenConnect || c.connecting || c.switching {
		return
	}

	switch {
	case c.session == nil:
		c.startConnectLocked()
	case c.session.ChainID != c.state.SelectedChainID:
		c.startSwitchLocked(c.state.SelectedChainID)
	default:
		if err := c.transitionLocked(ctx, ScreenReview); err != nil {
			c.log.Warn("failed to enter review", "error", err)
		}
	}
}

func (c *Controller) startConnectLocked() {
	c.connecting = true
	generation := c.generation

	c.goLocked(c.sessionCtx, func(ctx context.Context) {
		session, err := c.wallet.Connect(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()

		// The reset already cleared the guard for the next session.
		if generation != c.generation {
			c.log.Debug("dropping stale wallet connect result")
			return
		}
		c.connecting = false

		if err != nil {
			c.log.Warn("wallet connect failed", "error", err)
			c.setNoticeLocked(ctx, NoticeConnectRejected)
			return
		}

		if err := c.applySessionLocked(ctx, session); err != nil {
			c.log.Warn("wallet returned unusable session", "error", err)
			c.setNoticeLocked(ctx, NoticeConnectRejected)
		}
	})
}

func (c *Controller) startSwitchLocked(target int64) {
	c.switching = true
	generation := c.generation

	c.goLocked(c.sessionCtx, func(ctx context.Context) {
		session, err := c.wallet.SwitchChain(ctx, target)

		c.mu.Lock()
		defer c.mu.Unlock()

		if generation != c.generation {
			c.log.Debug("dropping stale network switch result")
			return
		}
		c.switching = false

		if err != nil {
			c.log.Warn("network switch failed", "chain_id", target, "error", err)
			c.setNoticeLocked(ctx, NoticeSwitchRejected)
			return
		}

		if session.ChainID != target {
			c.log.Warn("wallet stayed on another chain after switch", "chain_id", target, "active_chain_id", session.ChainID)
			c.recordSessionLocked(session)
			c.setNoticeLocked(ctx, NoticeSwitchRejected)
			return
		}

		if err := c.applySessionLocked(ctx, session); err != nil {
			c.log.Warn("wallet returned unusable session", "error", err)
			c.setNoticeLocked(ctx, NoticeSwitchRejected)
		}
	})
}

func (c *Controller) applySessionLocked(ctx context.Context, session Session) error {
	session.Address = strings.TrimSpace(session.Address)

	if session.Address == "" {
		c.session = nil
		c.state.WalletAddress = ""
		if c.state.Screen == ScreenReview {
			return c.transitionLocked(ctx, ScreenConnect)
		}
		c.commitLocked()
		return nil
	}

	if !common.IsHexAddress(session.Address) || session.ChainID <= 0 {
		return fmt.Errorf("%w: address %q chain %d", ErrInvalidSession, session.Address, session.ChainID)
	}

	c.recordSessionLocked(session)

	switch c.state.Screen {
	case ScreenConnect:
		c.advanceConnectLocked(ctx)
	case ScreenReview:
		if session.ChainID != c.state.SelectedChainID {
			if err := c.transitionLocked(ctx, ScreenConnect); err != nil {
				return err
			}
			c.setNoticeLocked(ctx, NoticeWrongChain)
			c.advanceConnectLocked(ctx)
		}
	}

	return nil
}

func (c *Controller) recordSessionLocked(session Session) {
	c.session = &session
	c.state.WalletAddress = common.HexToAddress(session.Address).Hex()
	c.commitLocked()
}

type paymentJob struct {
	generation uint64
	cfg        Config
	chainID    int64
	payer      string
}

func (c *Controller) runPayment(ctx context.Context, job paymentJob) {
	log := c.log.With("chain_id", job.chainID, "payer", job.payer)
	token := job.cfg.TokenAddresses[job.chainID]

	decimals, err := c.wallet.Decimals(ctx, job.chainID, token)
	if err != nil {
		log.Warn("token decimals unavailable, using default", "default", job.cfg.DefaultDecimals, "error", err)
		decimals = job.cfg.DefaultDecimals
	}

	amount, err := ToSmallestUnit(job.cfg.Price, decimals)
	if err != nil {
		log.Error("price cannot be expressed in token units", "price", job.cfg.Price, "decimals", decimals, "error", err)
		c.failPayment(ctx, job, OutcomeInvalidAmount, NoticeInvalidAmount)
		return
	}

	recipient, err := AddressToBytes32(job.payer)
	if err != nil {
		log.Error("payer address cannot be encoded", "error", err)
		c.failPayment(ctx, job, OutcomeTransferFailed, NoticeTransferFailed)
		return
	}

	err = c.wallet.Approve(ctx, ApproveRequest{
		ChainID: job.chainID,
		Token:   token,
		Spender: job.cfg.BridgeAddress,
		Amount:  amount,
	})
	if err != nil {
		log.Warn("token approval failed", "amount", amount.String(), "error", err)
		c.failPayment(ctx, job, OutcomeApproveFailed, NoticeApproveFailed)
		return
	}

	if !c.isCurrent(job.generation) {
		log.Info("payment abandoned after approval")
		paymentRecorder(OutcomeAbandoned)
		return
	}

	hash, err := c.wallet.SendCrossChainTransfer(ctx, TransferRequest{
		ChainID:            job.chainID,
		Bridge:             job.cfg.BridgeAddress,
		Token:              token,
		DestinationChainID: job.cfg.DestinationChainID,
		Recipient:          recipient,
		Amount:             amount,
		Options:            []byte{},
		Value:              job.cfg.NativeFee,
	})
	if err != nil {
		log.Warn("cross-chain transfer failed", "error", err)
		c.failPayment(ctx, job, OutcomeTransferFailed, NoticeTransferFailed)
		return
	}

	log = log.With("tx_hash", hash)
	if !c.recordHash(ctx, job.generation, hash) {
		log.Warn("transfer broadcast after the session was reset")
		paymentRecorder(OutcomeAbandoned)
		return
	}

	status, err := c.wallet.WatchReceipt(ctx, job.chainID, hash)
	if err != nil || status != ReceiptSuccess {
		log.Warn("payment not confirmed", "status", status.String(), "error", err)
		c.failPayment(ctx, job, OutcomeNotConfirmed, NoticeNotConfirmed)
		return
	}

	c.completePayment(ctx, job, hash)
}

func (c *Controller) isCurrent(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return generation == c.generation && c.state.Screen == ScreenPaying
}

func (c *Controller) recordHash(ctx context.Context, generation uint64, hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation || c.state.Screen != ScreenPaying {
		return false
	}

	c.state.TransactionHash = hash
	c.commitLocked()
	return true
}

func (c *Controller) failPayment(ctx context.Context, job paymentJob, outcome, notice string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if job.generation != c.generation || c.state.Screen != ScreenPaying {
		paymentRecorder(OutcomeAbandoned)
		return
	}

	paymentRecorder(outcome)
	c.state.TransactionHash = ""
	if err := c.transitionLocked(ctx, ScreenReview); err != nil {
		c.log.Error("failed to return to review", "error", err)
		return
	}
	c.setNoticeLocked(ctx, notice)
}

func (c *Controller) completePayment(ctx context.Context, job paymentJob, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if job.generation != c.generation || c.state.Screen != ScreenPaying {
		c.log.Info("payment confirmed after the session was reset", "tx_hash", hash)
		paymentRecorder(OutcomeAbandoned)
		return
	}

	paymentRecorder(OutcomeSucceeded)
	if err := c.transitionLocked(ctx, ScreenReceipt); err != nil {
		c.log.Error("failed to enter receipt", "error", err)
		return
	}

	if !c.state.CancelPromptVisible {
		c.armTimerLocked()
	}

	c.log.Info("payment confirmed", "tx_hash", hash, "chain_id", job.chainID, "amount", job.cfg.Price)

	if c.dispenser == nil {
		return
	}

	event := DispenseEvent{
		TransactionHash: hash,
		ChainID:         job.chainID,
		Amount:          job.cfg.Price,
	}
	c.goLocked(c.baseCtx, func(ctx context.Context) {
		if err := c.dispenser.Dispense(ctx, event); err != nil {
			c.log.Warn("dispense notification failed", "tx_hash", event.TransactionHash, "error", err)
		}
	})
}

func (c *Controller) transitionLocked(_ context.Context, to Screen) error {
	from := c.state.Screen
	if !IsTransitionAllowed(from, to) {
		c.log.Warn("invalid screen transition", "from", from, "to", to)
		return ErrInvalidTransition
	}

	if from == ScreenReceipt {
		c.stopTimerLocked()
	}

	c.state.Screen = to
	c.state.Notice = ""
	transitionRecorder(string(from), string(to))
	c.commitLocked()

	c.log.Debug("screen transition", "from", from, "to", to)
	return nil
}

func (c *Controller) setNoticeLocked(_ context.Context, notice string) {
	c.state.Notice = notice
	c.commitLocked()
}

func (c *Controller) resetLocked(ctx context.Context, reason string) {
	c.stopTimerLocked()
	c.generation++
	c.session = nil

	// Connect and switch prompts belong to the abandoned session. Broadcast payments run on
	// baseCtx and are left to finish.
	c.sessionCancel()
	c.sessionCtx, c.sessionCancel = context.WithCancel(c.baseCtx)
	c.connecting = false
	c.switching = false

	if c.pending != nil {
		c.cfg = *c.pending
		c.pending = nil
		c.log.Info("queued flow config applied")
	}

	from := c.state.Screen
	c.state = Initial(c.cfg)
	if from != ScreenWelcome {
		transitionRecorder(string(from), string(ScreenWelcome))
	}
	c.commitLocked()

	c.log.Info("flow reset", "from", from, "reason", reason)
}

func (c *Controller) armTimerLocked() {
	c.stopTimerLocked()

	seq := c.timerSeq
	c.timer = c.afterFunc(c.cfg.ReceiptResetAfter, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if seq != c.timerSeq || c.state.Screen != ScreenReceipt {
			return
		}

		c.timer = nil
		c.resetLocked(c.baseCtx, "receipt timeout")
	})
}

// stopTimerLocked also invalidates a callback that already fired and waits on mu.
func (c *Controller) stopTimerLocked() {
	c.timerSeq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) goLocked(ctx context.Context, fn func(ctx context.Context)) {
	if c.closed {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(ctx)
	}()
}

func (c *Controller) commitLocked() {
	c.state.UpdatedAt = time.Now().UTC()
	if c.snapshots != nil {
		c.snapshots.Offer(c.state)
	}
}
