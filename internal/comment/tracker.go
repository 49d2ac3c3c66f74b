// Package comment submits comments and tracks batch progress on the backend.
package comment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	"github.com/kurihiro0119/bili-comment/internal/gateway"
	"github.com/kurihiro0119/bili-comment/internal/poll"
)

// State is the tracker's local view of the batch it follows.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateCleared    State = "cleared"
	// StateStalled means polling gave up after too many consecutive failures.
	StateStalled State = "stalled"
)

const (
	// FailureThreshold is the number of consecutive poll failures that stops polling.
	FailureThreshold = 5
	// DefaultPollInterval is the gap between two batch status polls.
	DefaultPollInterval = time.Second
	// DefaultCommentInterval is shown until the backend reports its own value.
	DefaultCommentInterval = 5
)

// Snapshot is a consistent view of the tracker.
type Snapshot struct {
	State    State
	BatchID  string
	Status   *domain.BatchStatus
	Failures int
}

// Running reports whether polling is active and the batch is unfinished.
func (s Snapshot) Running() bool {
	return s.State == StatePolling && s.Status != nil && s.Status.Completed < s.Status.Total
}

// Completed reports whether the last observed status covers every job.
// A stalled batch is not completed.
func (s Snapshot) Completed() bool {
	return s.Status != nil && s.Status.Done()
}

// Percent returns the rounded progress in [0,100].
func (s Snapshot) Percent() int {
	if s.Status == nil {
		return 0
	}
	return s.Status.Percent()
}

// BreakerTripped reports whether polling stopped on consecutive failures.
func (s Snapshot) BreakerTripped() bool {
	return s.State == StateStalled
}

// Tracker submits a batch and follows its progress with a self-rescheduling poll.
type Tracker struct {
	gw     gateway.Gateway
	logger *slog.Logger
	loop   *poll.Loop

	mu       sync.Mutex
	state    State
	batchID  string
	status   *domain.BatchStatus
	failures int
	epoch    uint64
	interval int
	onChange func(Snapshot)
}

// NewTracker creates an idle tracker. A nil scheduler uses real timers.
func NewTracker(gw gateway.Gateway, sched poll.Scheduler, logger *slog.Logger) *Tracker {
	return NewTrackerWithInterval(gw, sched, DefaultPollInterval, logger)
}

// NewTrackerWithInterval creates an idle tracker polling every interval.
func NewTrackerWithInterval(gw gateway.Gateway, sched poll.Scheduler, interval time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Tracker{
		gw:       gw,
		logger:   logger,
		loop:     poll.NewLoop(sched, interval),
		state:    StateIdle,
		interval: DefaultCommentInterval,
	}
}

// OnChange registers fn to be called after every state change.
func (t *Tracker) OnChange(fn func(Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// SubmitBatch discards any tracked batch, submits a new one and starts
// polling it immediately. On failure no batch is registered.
func (t *Tracker) SubmitBatch(ctx context.Context, videos []domain.Video, content string) (string, error) {
	t.loop.Stop()

	var epoch uint64
	t.update(func() {
		t.epoch++
		epoch = t.epoch
		t.batchID = ""
		t.status = nil
		t.failures = 0
		t.state = StateSubmitting
	})

	id, err := t.gw.BatchSendComments(ctx, videos, content)

	t.mu.Lock()
	if t.epoch != epoch {
		t.mu.Unlock()
		t.logger.Warn("batch submitted after tracker was reset; not tracking it", "batch_id", id)
		return id, err
	}
	t.mu.Unlock()

	if err != nil {
		t.update(func() { t.state = StateIdle })
		return "", err
	}

	t.update(func() {
		t.batchID = id
		t.state = StatePolling
	})
	t.logger.Info("batch submitted", "batch_id", id, "videos", len(videos))

	pollCtx := context.WithoutCancel(ctx)
	t.loop.Start(func() bool { return t.pollOnce(pollCtx, id, epoch) })
	return id, nil
}

// pollOnce is one loop iteration. It reports whether another poll is due.
func (t *Tracker) pollOnce(ctx context.Context, id string, epoch uint64) bool {
	status, err := t.gw.GetBatchStatus(ctx, id)

	t.mu.Lock()
	if t.epoch != epoch || t.batchID != id || t.state != StatePolling {
		t.mu.Unlock()
		return false
	}

	if err == nil && status == nil {
		err = fmt.Errorf("batch %s: empty status", id)
	}

	again := true
	if err != nil {
		t.failures++
		t.logger.Debug("batch poll failed", "batch_id", id, "failures", t.failures, "error", err)
		if t.failures >= FailureThreshold {
			t.state = StateStalled
			t.logger.Warn("batch polling stopped after consecutive failures", "batch_id", id, "failures", t.failures)
			again = false
		}
	} else {
		t.status = status
		t.failures = 0
		if status.Done() {
			t.state = StateCompleted
			again = false
		}
	}
	snap := t.snapshotLocked()
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return again
}

// StopPolling cancels any scheduled poll. It is safe in every state.
func (t *Tracker) StopPolling() {
	t.loop.Stop()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StatePolling {
		t.state = StateIdle
	}
}

// CancelBatch asks the backend to cancel the tracked batch and stops
// polling whatever the outcome. The cancel error is returned.
func (t *Tracker) CancelBatch(ctx context.Context) error {
	t.mu.Lock()
	id, epoch := t.batchID, t.epoch
	t.mu.Unlock()
	if id == "" {
		return nil
	}

	err := t.gw.CancelBatch(ctx, id)

	// A batch submitted while the cancel was in flight keeps its loop.
	t.mu.Lock()
	if t.epoch != epoch || t.batchID != id {
		t.mu.Unlock()
		return err
	}
	t.loop.Stop()
	t.state = StateCancelled
	snap := t.snapshotLocked()
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	if err != nil {
		t.logger.Warn("cancel batch failed", "batch_id", id, "error", err)
	}
	return err
}

// ClearBatch stops polling, asks the backend to forget the batch and
// discards local state. The remote call is best effort.
func (t *Tracker) ClearBatch(ctx context.Context) {
	t.loop.Stop()

	var id string
	t.update(func() {
		id = t.batchID
		t.epoch++
		t.batchID = ""
		t.status = nil
		t.state = StateCleared
	})

	if id == "" {
		return
	}
	if err := t.gw.ClearBatch(ctx, id); err != nil {
		t.logger.Warn("clear batch failed", "batch_id", id, "error", err)
	}
}

// ForceReset drops all local batch state without any remote call.
func (t *Tracker) ForceReset() {
	t.loop.Stop()
	t.update(func() {
		t.epoch++
		t.batchID = ""
		t.status = nil
		t.failures = 0
		t.state = StateIdle
	})
}

// SendComment sends a single comment. Errors are returned to the caller.
func (t *Tracker) SendComment(ctx context.Context, video domain.Video, content string) (*domain.CommentResult, error) {
	return t.gw.SendComment(ctx, video, content)
}

// FetchCommentInterval loads the backend's comment interval in seconds.
// On failure the previous value is kept.
func (t *Tracker) FetchCommentInterval(ctx context.Context) int {
	secs, err := t.gw.GetCommentInterval(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.logger.Warn("failed to fetch comment interval", "error", err)
		return t.interval
	}
	t.interval = secs
	return secs
}

// CommentInterval returns the last known comment interval in seconds.
func (t *Tracker) CommentInterval() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) State() State { return t.Snapshot().State }
func (t *Tracker) BatchID() string { return t.Snapshot().BatchID }
func (t *Tracker) Status() *domain.BatchStatus { return t.Snapshot().Status }
func (t *Tracker) Failures() int { return t.Snapshot().Failures }
func (t *Tracker) IsRunning() bool { return t.Snapshot().Running() }
func (t *Tracker) IsCompleted() bool { return t.Snapshot().Completed() }
func (t *Tracker) ProgressPercent() int { return t.Snapshot().Percent() }
func (t *Tracker) BreakerTripped() bool { return t.Snapshot().BreakerTripped() }
func (t *Tracker) IsPolling() bool { return t.loop.Active() }

func (t *Tracker) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:    t.state,
		BatchID:  t.batchID,
		Failures: t.failures,
	}
	if t.status != nil {
		st := *t.status
		st.Tasks = append([]domain.CommentJob(nil), t.status.Tasks...)
		snap.Status = &st
	}
	return snap
}

func (t *Tracker) update(mutate func()) {
	t.mu.Lock()
	mutate()
	snap := t.snapshotLocked()
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}
