package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/bili-comment/internal/batch"
	"github.com/kurihiro0119/bili-comment/internal/bilibili"
	"github.com/kurihiro0119/bili-comment/internal/domain"
	apperrors "github.com/kurihiro0119/bili-comment/internal/errors"
	"github.com/kurihiro0119/bili-comment/internal/gateway"
	"github.com/kurihiro0119/bili-comment/internal/metrics"
	"github.com/kurihiro0119/bili-comment/internal/storage"
	"github.com/kurihiro0119/bili-comment/internal/storage/sqlite"
)

type fakeClient struct {
	mu         sync.Mutex
	credential *domain.LoginCredential

	pollOutcome *domain.LoginPollOutcome
	pollCred    *domain.LoginCredential
	user        *domain.UserIdentity
	userErr     error
	sendResult  *domain.CommentResult
	sendErr     error
}

func (f *fakeClient) GenerateQRCode(ctx context.Context) (*domain.QRCredential, error) {
	return &domain.QRCredential{URL: "https://example.test/qr", QRCodeKey: "key"}, nil
}

func (f *fakeClient) PollQRCode(ctx context.Context, key string) (*domain.LoginPollOutcome, *domain.LoginCredential, error) {
	if f.pollCred != nil {
		f.SetCredential(f.pollCred)
	}
	return f.pollOutcome, f.pollCred, nil
}

func (f *fakeClient) UserInfo(ctx context.Context) (*domain.UserIdentity, error) {
	return f.user, f.userErr
}

func (f *fakeClient) SendComment(ctx context.Context, aid int64, content string) (*domain.CommentResult, error) {
	return f.sendResult, f.sendErr
}

func (f *fakeClient) SearchVideos(ctx context.Context, q domain.SearchQuery) (*domain.SearchResultPage, error) {
	return &domain.SearchResultPage{Items: []domain.Video{{AID: 1, BVID: "BV1"}}, Total: 1, Page: q.Page}, nil
}

func (f *fakeClient) SetCredential(cred *domain.LoginCredential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credential = cred
}

func (f *fakeClient) Credential() *domain.LoginCredential {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credential
}

func (f *fakeClient) LoggedIn() bool {
	return f.Credential() != nil
}

func newStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newService(t *testing.T, client *fakeClient, store storage.Storage, m *metrics.Metrics) gateway.Gateway {
	t.Helper()
	limiter := bilibili.NewRateLimiter(0)
	svc, err := New(context.Background(), Options{
		Client:  client,
		Storage: store,
		Limiter: limiter,
		Runner:  batch.NewRunner(client, limiter, m, nil),
		Metrics: m,
	})
	require.NoError(t, err)
	return svc
}

func TestNew_RestoresSavedCredential(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	saved := &domain.LoginCredential{SESSDATA: "s", BiliJct: "j", DedeUserID: "7", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.SaveCredential(ctx, saved))

	client := &fakeClient{}
	newService(t, client, store, nil)
	require.True(t, client.LoggedIn())
	require.Equal(t, "7", client.Credential().DedeUserID)
}

func TestNew_DropsExpiredCredential(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.SaveCredential(ctx, &domain.LoginCredential{SESSDATA: "s", ExpiresAt: time.Now().Add(-time.Minute)}))

	client := &fakeClient{}
	newService(t, client, store, nil)
	require.False(t, client.LoggedIn())

	cred, err := store.LoadCredential(ctx)
	require.NoError(t, err)
	require.Nil(t, cred)
}

func TestLoginLifecycle_PersistsCredential(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	m := metrics.New(nil)
	client := &fakeClient{
		pollOutcome: &domain.LoginPollOutcome{Status: domain.LoginStatusConfirmed, Message: "ok"},
		pollCred:    &domain.LoginCredential{SESSDATA: "s", BiliJct: "j", DedeUserID: "9", ExpiresAt: time.Now().Add(time.Hour)},
	}
	svc := newService(t, client, store, m)

	outcome, err := svc.PollLoginStatus(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, domain.LoginStatusConfirmed, outcome.Status)
	require.Equal(t, 1.0, testutil.ToFloat64(m.QRPolls.WithLabelValues("confirmed")))

	cred, err := store.LoadCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, "9", cred.DedeUserID)

	require.NoError(t, svc.Logout(ctx))
	require.False(t, client.LoggedIn())
	cred, err = store.LoadCredential(ctx)
	require.NoError(t, err)
	require.Nil(t, cred)
}

func TestPollLoginStatus_RequiresKey(t *testing.T) {
	svc := newService(t, &fakeClient{}, newStore(t), nil)
	_, err := svc.PollLoginStatus(context.Background(), " ")
	require.True(t, gateway.IsApplication(err))
	require.Equal(t, apperrors.ErrCodeBadRequest, apperrors.CodeOf(err))
}

func TestCheckLoginValid_DegradesToFalse(t *testing.T) {
	client := &fakeClient{userErr: errors.New("network down")}
	svc := newService(t, client, newStore(t), nil)

	ok, err := svc.CheckLoginValid(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	client.userErr = nil
	client.user = &domain.UserIdentity{ID: 1, IsAuthenticated: true}
	ok, err = svc.CheckLoginValid(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSendComment_CountsResults(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(nil)
	client := &fakeClient{sendResult: &domain.CommentResult{Success: false, ErrorMessage: "comments are closed for this video"}}
	svc := newService(t, client, newStore(t), m)

	res, err := svc.SendComment(ctx, domain.Video{AID: 3}, "hi")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, 1.0, testutil.ToFloat64(m.CommentsSent.WithLabelValues("failed")))

	client.sendResult, client.sendErr = nil, apperrors.NewUnauthorizedError("not logged in")
	_, err = svc.SendComment(ctx, domain.Video{AID: 3}, "hi")
	require.True(t, apperrors.IsUnauthorized(err))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CommentsSent.WithLabelValues("error")))

	_, err = svc.SendComment(ctx, domain.Video{AID: 3}, "   ")
	require.Equal(t, apperrors.ErrCodeBadRequest, apperrors.CodeOf(err))
}

func TestBatchSendComments(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{sendResult: &domain.CommentResult{Success: true}}
	svc := newService(t, client, newStore(t), nil)

	_, err := svc.BatchSendComments(ctx, []domain.Video{{AID: 1}}, "hi")
	require.True(t, apperrors.IsUnauthorized(err), "requires login")

	client.SetCredential(&domain.LoginCredential{SESSDATA: "s"})
	_, err = svc.BatchSendComments(ctx, nil, "hi")
	require.Equal(t, apperrors.ErrCodeBadRequest, apperrors.CodeOf(err))

	id, err := svc.BatchSendComments(ctx, []domain.Video{{AID: 1}, {AID: 2}}, "hi")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		st, err := svc.GetBatchStatus(ctx, id)
		return err == nil && st.Done()
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.ClearBatch(ctx, id))
	_, err = svc.GetBatchStatus(ctx, id)
	require.True(t, apperrors.IsNotFound(err))
	require.True(t, apperrors.IsNotFound(svc.CancelBatch(ctx, id)))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestBatchSendComments_LogsStartOnce(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{sendResult: &domain.CommentResult{Success: true}}
	client.SetCredential(&domain.LoginCredential{SESSDATA: "s"})

	var out syncBuffer
	svc, err := New(ctx, Options{
		Client:  client,
		Storage: newStore(t),
		Limiter: bilibili.NewRateLimiter(0),
		Logger:  slog.New(slog.NewTextHandler(&out, nil)),
	})
	require.NoError(t, err)

	id, err := svc.BatchSendComments(ctx, []domain.Video{{AID: 1}}, "hi")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, err := svc.GetBatchStatus(ctx, id)
		return err == nil && st.Done()
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 1, strings.Count(out.String(), "batch started"))
}

func TestTemplates_CRUD(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, &fakeClient{}, newStore(t), nil)

	created, err := svc.CreateTemplate(ctx, "greeting", "hello")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.NotZero(t, created.CreatedAt)

	updated, err := svc.UpdateTemplate(ctx, created.ID, "greeting", "hi there")
	require.NoError(t, err)
	require.Equal(t, created.CreatedAt, updated.CreatedAt)
	require.Equal(t, "hi there", updated.Content)

	list, err := svc.GetTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.CreateTemplate(ctx, "", "x")
	require.Equal(t, apperrors.ErrCodeBadRequest, apperrors.CodeOf(err))

	_, err = svc.UpdateTemplate(ctx, "missing", "n", "c")
	require.True(t, apperrors.IsNotFound(err))

	require.NoError(t, svc.DeleteTemplate(ctx, created.ID))
	require.True(t, apperrors.IsNotFound(svc.DeleteTemplate(ctx, created.ID)))
}

func TestSearchAndInterval(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, &fakeClient{}, newStore(t), nil)

	page, err := svc.SearchVideos(ctx, domain.SearchQuery{Keyword: "go"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Page)
	require.Len(t, page.Items, 1)

	_, err = svc.SearchVideos(ctx, domain.SearchQuery{Keyword: " "})
	require.Equal(t, apperrors.ErrCodeBadRequest, apperrors.CodeOf(err))

	interval, err := svc.GetCommentInterval(ctx)
	require.NoError(t, err)
	require.Zero(t, interval)
}
