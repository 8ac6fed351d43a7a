package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const storeTimeout = time.Second

// snapshotWriter saves display snapshots off the controller's lock. Only the latest offered
// snapshot is kept, so a slow store skips intermediate states instead of queueing them.
type snapshotWriter struct {
	store   Store
	kioskID string
	log     *slog.Logger

	mu     sync.Mutex
	latest *FlowState

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSnapshotWriter(store Store, kioskID string, log *slog.Logger) *snapshotWriter {
	w := &snapshotWriter{
		store:   store,
		kioskID: kioskID,
		log:     log,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Offer replaces the pending snapshot and never blocks.
func (w *snapshotWriter) Offer(state FlowState) {
	w.mu.Lock()
	w.latest = &state
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close writes the pending snapshot and stops the writer.
func (w *snapshotWriter) Close() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *snapshotWriter) run() {
	defer close(w.done)

	for {
		select {
		case <-w.wake:
			w.flush()
		case <-w.stop:
			w.flush()
			return
		}
	}
}

func (w *snapshotWriter) flush() {
	w.mu.Lock()
	state := w.latest
	w.latest = nil
	w.mu.Unlock()

	if state == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := w.store.Save(ctx, w.kioskID, state); err != nil {
		w.log.Warn("failed to store flow snapshot", "screen", state.Screen, "error", err)
	}
}
