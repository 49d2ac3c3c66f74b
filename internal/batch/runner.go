// Package batch executes comment batches on the backend, one comment at a
// time, spaced by a rate limiter.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/bili-comment/internal/bilibili"
	"github.com/kurihiro0119/bili-comment/internal/domain"
	apperrors "github.com/kurihiro0119/bili-comment/internal/errors"
	"github.com/kurihiro0119/bili-comment/internal/metrics"
)

// Sender posts a single comment
type Sender interface {
	SendComment(ctx context.Context, aid int64, content string) (*domain.CommentResult, error)
}

// Runner defines the interface for running comment batches
type Runner interface {
	// Start registers a batch and executes it in the background. It returns the batch id.
	Start(videos []domain.Video, content string) string

	// Status returns a copy of the batch progress
	Status(id string) (*domain.BatchStatus, error)

	// Cancel stops the batch after the comment in flight; remaining jobs become cancelled
	Cancel(id string) error

	// Clear cancels the batch and forgets it
	Clear(id string)

	// Wait blocks until every running batch has returned
	Wait()
}

type run struct {
	status    domain.BatchStatus
	cancel    context.CancelFunc
	cancelled bool
}

// runner implements the Runner interface
type runner struct {
	sender  Sender
	limiter bilibili.RateLimiter
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

// NewRunner creates a new batch runner
func NewRunner(sender Sender, limiter bilibili.RateLimiter, m *metrics.Metrics, logger *slog.Logger) Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &runner{
		sender:  sender,
		limiter: limiter,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		runs:    make(map[string]*run),
	}
}

func (r *runner) Start(videos []domain.Video, content string) string {
	id := uuid.NewString()
	created := r.now().Unix()

	tasks := make([]domain.CommentJob, len(videos))
	for i, v := range videos {
		tasks[i] = domain.CommentJob{
			ID:        uuid.NewString(),
			Video:     v,
			Content:   content,
			Status:    domain.TaskStatusPending,
			CreatedAt: created,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.runs[id] = &run{
		status: domain.BatchStatus{BatchID: id, Total: len(tasks), Tasks: tasks},
		cancel: cancel,
	}
	r.mu.Unlock()

	r.metrics.BatchesStarted.Inc()
	r.logger.Info("batch started", "batch_id", id, "tasks", len(tasks))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.execute(ctx, id)
	}()
	return id
}

func (r *runner) execute(ctx context.Context, id string) {
	for i := 0; ; i++ {
		job, ok := r.claim(id, i)
		if !ok {
			break
		}

		if err := r.limiter.Wait(ctx); err != nil {
			r.finish(id, i, domain.TaskStatusCancelled, "")
			continue
		}

		// the comment in flight completes even if the batch is cancelled meanwhile
		res, err := r.sender.SendComment(context.WithoutCancel(ctx), job.Video.AID, job.Content)
		switch {
		case err != nil:
			r.metrics.CommentsSent.WithLabelValues("error").Inc()
			r.finish(id, i, domain.TaskStatusFailed, userMessage(err))
		case res.Success:
			r.metrics.CommentsSent.WithLabelValues("success").Inc()
			r.finish(id, i, domain.TaskStatusSuccess, "")
		default:
			r.metrics.CommentsSent.WithLabelValues("failed").Inc()
			r.finish(id, i, domain.TaskStatusFailed, res.ErrorMessage)
		}
	}

	if st, err := r.Status(id); err == nil {
		r.logger.Info("batch finished", "batch_id", id, "success", st.Success, "failed", st.Failed, "total", st.Total)
	}
}

// claim marks job i running. It reports false when the batch is over.
func (r *runner) claim(id string, i int) (domain.CommentJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[id]
	if !ok || rn.cancelled || i >= len(rn.status.Tasks) {
		return domain.CommentJob{}, false
	}
	rn.status.Tasks[i].Status = domain.TaskStatusRunning
	return rn.status.Tasks[i], true
}

func (r *runner) finish(id string, i int, status domain.TaskStatus, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[id]
	if !ok {
		return
	}
	task := &rn.status.Tasks[i]
	if task.Status.IsFinished() {
		return
	}
	done := r.now().Unix()
	task.Status = status
	task.ErrorMessage = msg
	task.CompletedAt = &done
	rn.status.Completed++
	switch status {
	case domain.TaskStatusSuccess:
		rn.status.Success++
	case domain.TaskStatusFailed:
		rn.status.Failed++
	}
}

func (r *runner) Status(id string) (*domain.BatchStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("batch")
	}
	st := rn.status
	st.Tasks = make([]domain.CommentJob, len(rn.status.Tasks))
	for i, t := range rn.status.Tasks {
		if t.CompletedAt != nil {
			at := *t.CompletedAt
			t.CompletedAt = &at
		}
		st.Tasks[i] = t
	}
	return &st, nil
}

func (r *runner) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[id]
	if !ok {
		return apperrors.NewNotFoundError("batch")
	}
	if rn.cancelled || rn.status.Done() {
		return nil
	}
	rn.cancelled = true
	rn.cancel()

	done := r.now().Unix()
	for i := range rn.status.Tasks {
		task := &rn.status.Tasks[i]
		if task.Status == domain.TaskStatusPending {
			task.Status = domain.TaskStatusCancelled
			task.CompletedAt = &done
			rn.status.Completed++
		}
	}
	r.metrics.BatchesCancelled.Inc()
	r.logger.Info("batch cancelled", "batch_id", id, "completed", rn.status.Completed, "total", rn.status.Total)
	return nil
}

func (r *runner) Clear(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rn, ok := r.runs[id]; ok {
		rn.cancelled = true
		rn.cancel()
		delete(r.runs, id)
	}
}

func (r *runner) Wait() {
	r.wg.Wait()
}

func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
