package app

import (
	"context"
	"sync"
	"time"
)

// TurnTimer is the single repeating one-second tick source driving the
// countdown. At most one instance is alive; Start always cancels the
// prior one so two decrement streams can never overlap.
type TurnTimer struct {
	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
}

func NewTurnTimer(interval time.Duration) *TurnTimer {
	return &TurnTimer{interval: interval}
}

// Start begins ticking fn every interval until Stop or a later Start.
func (t *TurnTimer) Start(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.loop(ctx, fn)
}

// Stop is idempotent.
func (t *TurnTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *TurnTimer) loop(ctx context.Context, fn func()) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
