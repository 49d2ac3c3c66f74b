// Package gatewaytest provides a programmable gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"errors"
	"sync"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	"github.com/kurihiro0119/bili-comment/internal/gateway"
)

// ErrNotStubbed is returned by operations whose func field is nil.
var ErrNotStubbed = errors.New("operation not stubbed")

// Fake implements gateway.Gateway by delegating to its func fields.
// Calls are counted per operation name.
type Fake struct {
	GetUserInfoFunc        func(ctx context.Context) (*domain.UserIdentity, error)
	GetLoginQRCodeFunc     func(ctx context.Context) (*domain.QRCredential, error)
	PollLoginStatusFunc    func(ctx context.Context, key string) (*domain.LoginPollOutcome, error)
	LogoutFunc             func(ctx context.Context) error
	CheckLoginValidFunc    func(ctx context.Context) (bool, error)
	GetCommentIntervalFunc func(ctx context.Context) (int, error)
	SendCommentFunc        func(ctx context.Context, video domain.Video, content string) (*domain.CommentResult, error)
	BatchSendCommentsFunc  func(ctx context.Context, videos []domain.Video, content string) (string, error)
	GetBatchStatusFunc     func(ctx context.Context, batchID string) (*domain.BatchStatus, error)
	CancelBatchFunc        func(ctx context.Context, batchID string) error
	ClearBatchFunc         func(ctx context.Context, batchID string) error
	SearchVideosFunc       func(ctx context.Context, query domain.SearchQuery) (*domain.SearchResultPage, error)
	GetTemplatesFunc       func(ctx context.Context) ([]domain.CommentTemplate, error)
	CreateTemplateFunc     func(ctx context.Context, name, content string) (*domain.CommentTemplate, error)
	UpdateTemplateFunc     func(ctx context.Context, id, name, content string) (*domain.CommentTemplate, error)
	DeleteTemplateFunc     func(ctx context.Context, id string) error

	mu    sync.Mutex
	calls map[string]int
}

var _ gateway.Gateway = (*Fake)(nil)

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

func (f *Fake) GetUserInfo(ctx context.Context) (*domain.UserIdentity, error) {
	f.record(gateway.OpGetUserInfo)
	if f.GetUserInfoFunc == nil {
		return nil, ErrNotStubbed
	}
	return f.GetUserInfoFunc(ctx)
}

func (f *Fake) GetLoginQRCode(ctx context.Context) (*domain.QRCredential, error) {
	f.record(gateway.OpGetLoginQRCode)
	if f.GetLoginQRCodeFunc == nil {
		return nil, ErrNotStubbed
	}
	return f.GetLoginQRCodeFunc(ctx)
}

func (f *Fake) PollLoginStatus(ctx context.Context, key string) (*domain.LoginPollOutcome, error) {
	f.record(gateway.OpPollLoginStatus)
	if f.PollLoginStatusFunc == nil {
		return nil, ErrNotStubbed
	}
	return f.PollLoginStatusFunc(ctx, key)
}

func (f *Fake) Logout(ctx context.Context) error {
	f.record(gateway.OpLogout)
	if f.LogoutFunc == nil {
		return ErrNotStubbed
	}
	return f.LogoutFunc(ctx)
}

func (f *Fake) CheckLoginValid(ctx context.Context) (bool, error) {
	f.record(gateway.OpCheckLoginValid)
	if f.CheckLoginValidFunc == nil {
		return false, ErrNotStubbed
	}
	return f.CheckLoginValidFunc(ctx)
}

func (f *Fake) GetCommentInterval(ctx context.Context) (int, error) {
	f.record(gateway.OpGetCommentInterval)
	if f.GetCommentIntervalFunc == nil {
		return 0, ErrNotStubbed
	}
	return f.GetCommentIntervalFunc(ctx)
}

func (f *Fake) SendComment(ctx context.Context, video domain.Video, content string) (*domain.CommentResult, error) {
	f.record(gateway.OpSendComment)
	if f.SendCommentFunc == nil {
		return nil, ErrNotStubbed
	}
	return f.SendCommentFunc(ctx, video, content)
}

func (f *Fake) BatchSendComments(ctx context.Context, videos []domain.Video, content string) (string, error) {
	f.record(gateway.OpBatchSendComments)
	if f.BatchSendCommentsFunc == nil {
		return "", ErrNotStubbed
	}
	return f.BatchSendCommentsFunc(ctx, videos, content)
}

func (f *Fake) GetBatchStatus(ctx context.Context, batchID string) (*domain.BatchStatus, error) {
	f.record(gateway.OpGetBatchStatus)
	if f.GetBatchStatusFunc == nil {
		return nil, ErrNotStubbed
	}
	return f.GetBatchStatusFunc(ctx, batchID)
}

func (f *Fake) CancelBatch(ctx context.Context, batchID string) error {
	f.record(gateway.OpCancelBatch)
	if f.CancelBatchFunc == nil {
		return ErrNotStubbed
	}
	return f.CancelBatchFunc(ctx, batchID)
}

func (f *Fake) ClearBatch(ctx context.Context, batchID string) error {
	f.record(gateway.OpClearBatch)
	if f.ClearBatchFunc == nil {
		return ErrNotStubbed
	}
	return f.ClearBatchFunc(ctx, batchID)
}

func (f *Fake) SearchVideos(ctx context.Context, query domain.SearchQuery) (*domain.SearchResultPage, error) {
	f.record(gateway.OpSearchVideos)
	if f.SearchVideosFunc == nil {
		return nil, ErrNotStubbed
	}
	return f.SearchVideosFunc(ctx, query)
}

func (f *Fake) GetTemplates(ctx context.Context) ([]domain.CommentTemplate, error) {
	f.record(gateway.OpGetTemplates)
	if f.GetTemplatesFunc == nil {
		return nil, ErrNotStubbed
	}
	return f.GetTemplatesFunc(ctx)
}

func (f *Fake) CreateTemplate(ctx context.Context, name, content string) (*domain.CommentTemplate, error) {
	f.record(gateway.OpCreateTemplate)
	if f.CreateTemplateFunc == nil {
		return nil, ErrNotStubbed
	}
	return f.CreateTemplateFunc(ctx, name, content)
}

func (f *Fake) UpdateTemplate(ctx context.Context, id, name, content string) (*domain.CommentTemplate, error) {
	f.record(gateway.OpUpdateTemplate)
	if f.UpdateTemplateFunc == nil {
		return nil, ErrNotStubbed
	}
	return f.UpdateTemplateFunc(ctx, id, name, content)
}

func (f *Fake) DeleteTemplate(ctx context.Context, id string) error {
	f.record(gateway.OpDeleteTemplate)
	if f.DeleteTemplateFunc == nil {
		return ErrNotStubbed
	}
	return f.DeleteTemplateFunc(ctx, id)
}
