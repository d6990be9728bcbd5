package game

import (
	"context"
	"log/slog"
	"time"
)

// RunReaper retires sessions that received no command for timeout, checking every
// interval until ctx is done. A non-positive timeout disables reaping.
func (e *Engine) RunReaper(ctx context.Context, interval, timeout time.Duration) {
	if timeout <= 0 || interval <= 0 {
		slog.InfoContext(ctx, "game: idle reaper disabled")
		return
	}

	t := e.clock.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			e.Reap(ctx, timeout)
		}
	}
}

// Reap retires every session idle for at least timeout and returns their codes.
func (e *Engine) Reap(ctx context.Context, timeout time.Duration) []string {
	now := e.clock.Now()

	var reaped []string
	for _, s := range e.reg.Sessions() {
		s.mu.Lock()
		if !s.closed && now.Sub(s.lastActive) >= timeout {
			e.retire(ctx, s, "idle")
			reaped = append(reaped, s.code)
		}
		s.mu.Unlock()
	}

	return reaped
}
