package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	"github.com/kurihiro0119/bili-comment/internal/poll"
)

// DefaultPollInterval is the gap between two login status polls.
const DefaultPollInterval = 2 * time.Second

// Watcher polls a Session until its status is terminal.
type Watcher struct {
	session *Session
	loop    *poll.Loop
	logger  *slog.Logger
}

// NewWatcher creates a watcher polling every interval (DefaultPollInterval when zero).
func NewWatcher(session *Session, sched poll.Scheduler, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		session: session,
		loop:    poll.NewLoop(sched, interval),
		logger:  session.logger,
	}
}

// Start begins polling immediately, replacing any running watch. onDone is
// called with the terminal status once polling ends on its own.
func (w *Watcher) Start(ctx context.Context, onDone func(domain.LoginStatus)) {
	w.loop.Start(func() bool {
		outcome, err := w.session.PollOnce(ctx)
		if err != nil {
			w.logger.Warn("login poll failed", "error", err)
		}
		status := w.session.Status()
		if (outcome == nil && err == nil) || status.IsTerminal() {
			if onDone != nil {
				onDone(status)
			}
			return false
		}
		return true
	})
}

// Stop cancels polling. It is safe to call repeatedly.
func (w *Watcher) Stop() {
	w.loop.Stop()
}

// Active reports whether the watcher is still polling.
func (w *Watcher) Active() bool {
	return w.loop.Active()
}
