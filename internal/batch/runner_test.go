package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/bili-comment/internal/bilibili"
	"github.com/kurihiro0119/bili-comment/internal/domain"
	apperrors "github.com/kurihiro0119/bili-comment/internal/errors"
	"github.com/kurihiro0119/bili-comment/internal/metrics"
)

type fakeSender struct {
	mu    sync.Mutex
	aids  []int64
	reply func(aid int64) (*domain.CommentResult, error)
}

func (f *fakeSender) SendComment(ctx context.Context, aid int64, content string) (*domain.CommentResult, error) {
	f.mu.Lock()
	f.aids = append(f.aids, aid)
	f.mu.Unlock()
	return f.reply(aid)
}

func (f *fakeSender) sent() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.aids...)
}

var videos = []domain.Video{{AID: 1, BVID: "BV1"}, {AID: 2, BVID: "BV2"}, {AID: 3, BVID: "BV3"}}

func TestRunner_ExecutesEveryJob(t *testing.T) {
	sender := &fakeSender{reply: func(aid int64) (*domain.CommentResult, error) {
		switch aid {
		case 2:
			return &domain.CommentResult{Success: false, ErrorMessage: "comments are closed for this video"}, nil
		case 3:
			return nil, apperrors.NewUnauthorizedError("not logged in")
		}
		rpid := int64(100 + aid)
		return &domain.CommentResult{Success: true, CommentID: &rpid}, nil
	}}
	m := metrics.New(nil)
	r := NewRunner(sender, bilibili.NewRateLimiter(0), m, nil)

	id := r.Start(videos, "hello")
	r.Wait()

	st, err := r.Status(id)
	require.NoError(t, err)
	require.Equal(t, id, st.BatchID)
	require.Equal(t, 3, st.Total)
	require.Equal(t, 3, st.Completed)
	require.Equal(t, 1, st.Success)
	require.Equal(t, 2, st.Failed)
	require.Equal(t, []int64{1, 2, 3}, sender.sent())

	require.Equal(t, domain.TaskStatusSuccess, st.Tasks[0].Status)
	require.Equal(t, domain.TaskStatusFailed, st.Tasks[1].Status)
	require.Equal(t, "comments are closed for this video", st.Tasks[1].ErrorMessage)
	require.Equal(t, "not logged in", st.Tasks[2].ErrorMessage)
	for _, task := range st.Tasks {
		require.NotNil(t, task.CompletedAt)
		require.Equal(t, "hello", task.Content)
	}

	require.Equal(t, 1.0, testutil.ToFloat64(m.BatchesStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CommentsSent.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CommentsSent.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CommentsSent.WithLabelValues("error")))
}

func TestRunner_CancelConverges(t *testing.T) {
	firstSent := make(chan struct{})
	sender := &fakeSender{reply: func(aid int64) (*domain.CommentResult, error) {
		if aid == 1 {
			close(firstSent)
		}
		return &domain.CommentResult{Success: true}, nil
	}}
	m := metrics.New(nil)
	// the second comment waits an hour for its slot, so it is still pending when cancelled
	r := NewRunner(sender, bilibili.NewRateLimiter(time.Hour), m, nil)

	id := r.Start(videos, "hello")
	<-firstSent

	require.NoError(t, r.Cancel(id))
	require.NoError(t, r.Cancel(id), "cancel is idempotent")
	r.Wait()

	st, err := r.Status(id)
	require.NoError(t, err)
	require.Equal(t, st.Total, st.Completed)
	require.Equal(t, 1, st.Success)
	require.Zero(t, st.Failed)
	require.Equal(t, domain.TaskStatusSuccess, st.Tasks[0].Status)
	require.Equal(t, domain.TaskStatusCancelled, st.Tasks[1].Status)
	require.Equal(t, domain.TaskStatusCancelled, st.Tasks[2].Status)
	require.Equal(t, []int64{1}, sender.sent())
	require.Equal(t, 1.0, testutil.ToFloat64(m.BatchesCancelled))
}

func TestRunner_StatusIsACopy(t *testing.T) {
	sender := &fakeSender{reply: func(int64) (*domain.CommentResult, error) {
		return &domain.CommentResult{Success: true}, nil
	}}
	r := NewRunner(sender, bilibili.NewRateLimiter(0), nil, nil)
	id := r.Start(videos[:1], "hello")
	r.Wait()

	st, _ := r.Status(id)
	*st.Tasks[0].CompletedAt = 0
	st.Tasks[0].Status = domain.TaskStatusPending

	again, _ := r.Status(id)
	require.Equal(t, domain.TaskStatusSuccess, again.Tasks[0].Status)
	require.NotZero(t, *again.Tasks[0].CompletedAt)
}

func TestRunner_UnknownAndClearedBatches(t *testing.T) {
	sender := &fakeSender{reply: func(int64) (*domain.CommentResult, error) {
		return &domain.CommentResult{Success: true}, nil
	}}
	r := NewRunner(sender, bilibili.NewRateLimiter(0), nil, nil)

	_, err := r.Status("missing")
	require.True(t, apperrors.IsNotFound(err))
	require.True(t, apperrors.IsNotFound(r.Cancel("missing")))
	r.Clear("missing")

	id := r.Start(videos[:1], "hello")
	r.Wait()
	require.NoError(t, r.Cancel(id), "cancelling a finished batch is a no-op")

	r.Clear(id)
	_, err = r.Status(id)
	require.True(t, apperrors.IsNotFound(err))
}

func TestRunner_EmptyBatchIsDone(t *testing.T) {
	r := NewRunner(&fakeSender{}, bilibili.NewRateLimiter(0), nil, nil)
	id := r.Start(nil, "hello")
	r.Wait()

	st, err := r.Status(id)
	require.NoError(t, err)
	require.True(t, st.Done())
	require.Zero(t, st.Total)
}
