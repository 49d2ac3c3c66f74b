// Package service implements the gateway operations in process, on top of
// the platform client, the batch runner and storage.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/bili-comment/internal/batch"
	"github.com/kurihiro0119/bili-comment/internal/bilibili"
	"github.com/kurihiro0119/bili-comment/internal/domain"
	apperrors "github.com/kurihiro0119/bili-comment/internal/errors"
	"github.com/kurihiro0119/bili-comment/internal/gateway"
	"github.com/kurihiro0119/bili-comment/internal/metrics"
	"github.com/kurihiro0119/bili-comment/internal/storage"
)

// Options wires the service dependencies
type Options struct {
	Client  bilibili.Client
	Storage storage.Storage
	Limiter bilibili.RateLimiter
	// Runner defaults to a batch runner over Client and Limiter.
	Runner  batch.Runner
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// service implements gateway.Gateway
type service struct {
	client  bilibili.Client
	store   storage.Storage
	limiter bilibili.RateLimiter
	runner  batch.Runner
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates the service and restores a saved login, if one is still valid
func New(ctx context.Context, opts Options) (gateway.Gateway, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Limiter == nil {
		opts.Limiter = bilibili.NewRateLimiter(5 * time.Second)
	}
	if opts.Runner == nil {
		opts.Runner = batch.NewRunner(opts.Client, opts.Limiter, opts.Metrics, opts.Logger)
	}
	s := &service{
		client:  opts.Client,
		store:   opts.Storage,
		limiter: opts.Limiter,
		runner:  opts.Runner,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     time.Now,
	}
	if err := s.restoreCredential(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore credential: %w", err)
	}
	return s, nil
}

func (s *service) restoreCredential(ctx context.Context) error {
	cred, err := s.store.LoadCredential(ctx)
	if err != nil {
		return err
	}
	if cred == nil {
		return nil
	}
	if cred.Expired(s.now()) {
		s.logger.Info("saved login expired", "dede_user_id", cred.DedeUserID, "expires_at", cred.ExpiresAt)
		return s.store.DeleteCredential(ctx)
	}
	s.client.SetCredential(cred)
	s.logger.Info("restored saved login", "dede_user_id", cred.DedeUserID)
	return nil
}

func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return gateway.Application(op, err)
}

func (s *service) GetUserInfo(ctx context.Context) (*domain.UserIdentity, error) {
	user, err := s.client.UserInfo(ctx)
	if err != nil {
		return nil, fail(gateway.OpGetUserInfo, err)
	}
	return user, nil
}

func (s *service) GetLoginQRCode(ctx context.Context) (*domain.QRCredential, error) {
	qr, err := s.client.GenerateQRCode(ctx)
	if err != nil {
		return nil, fail(gateway.OpGetLoginQRCode, err)
	}
	return qr, nil
}

// PollLoginStatus polls the QR code and persists the credential once confirmed
func (s *service) PollLoginStatus(ctx context.Context, qrcodeKey string) (*domain.LoginPollOutcome, error) {
	if strings.TrimSpace(qrcodeKey) == "" {
		return nil, fail(gateway.OpPollLoginStatus, apperrors.NewBadRequestError("qrcode_key is required"))
	}
	outcome, cred, err := s.client.PollQRCode(ctx, qrcodeKey)
	if err != nil {
		return nil, fail(gateway.OpPollLoginStatus, err)
	}
	s.metrics.QRPolls.WithLabelValues(string(outcome.Status)).Inc()

	if outcome.Status == domain.LoginStatusConfirmed && cred != nil {
		if err := s.store.SaveCredential(ctx, cred); err != nil {
			return nil, fail(gateway.OpPollLoginStatus, apperrors.NewInternalError("failed to save credential", err))
		}
		s.logger.Info("login confirmed", "dede_user_id", cred.DedeUserID)
	}
	return outcome, nil
}

func (s *service) Logout(ctx context.Context) error {
	s.client.SetCredential(nil)
	if err := s.store.DeleteCredential(ctx); err != nil {
		return fail(gateway.OpLogout, apperrors.NewInternalError("failed to delete credential", err))
	}
	s.logger.Info("logged out")
	return nil
}

// CheckLoginValid never fails; any problem reading the account means invalid
func (s *service) CheckLoginValid(ctx context.Context) (bool, error) {
	user, err := s.client.UserInfo(ctx)
	if err != nil {
		s.logger.Debug("login check failed", "error", err)
		return false, nil
	}
	return user != nil && user.IsAuthenticated, nil
}

func (s *service) GetCommentInterval(ctx context.Context) (int, error) {
	return int(s.limiter.Interval() / time.Second), nil
}

// SendComment posts one comment, waiting for the next submission slot
func (s *service) SendComment(ctx context.Context, video domain.Video, content string) (*domain.CommentResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fail(gateway.OpSendComment, apperrors.NewBadRequestError("content is required"))
	}
	if video.AID <= 0 {
		return nil, fail(gateway.OpSendComment, apperrors.NewBadRequestError("video aid is required"))
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fail(gateway.OpSendComment, err)
	}

	result, err := s.client.SendComment(ctx, video.AID, content)
	switch {
	case err != nil:
		s.metrics.CommentsSent.WithLabelValues("error").Inc()
		return nil, fail(gateway.OpSendComment, err)
	case result.Success:
		s.metrics.CommentsSent.WithLabelValues("success").Inc()
	default:
		s.metrics.CommentsSent.WithLabelValues("failed").Inc()
	}
	return result, nil
}

func (s *service) BatchSendComments(ctx context.Context, videos []domain.Video, content string) (string, error) {
	if len(videos) == 0 {
		return "", fail(gateway.OpBatchSendComments, apperrors.NewBadRequestError("at least one video is required"))
	}
	if strings.TrimSpace(content) == "" {
		return "", fail(gateway.OpBatchSendComments, apperrors.NewBadRequestError("content is required"))
	}
	if !s.client.LoggedIn() {
		return "", fail(gateway.OpBatchSendComments, apperrors.NewUnauthorizedError("account is not logged in"))
	}
	id := s.runner.Start(videos, content)
	return id, nil
}

func (s *service) GetBatchStatus(ctx context.Context, batchID string) (*domain.BatchStatus, error) {
	st, err := s.runner.Status(batchID)
	if err != nil {
		return nil, fail(gateway.OpGetBatchStatus, err)
	}
	return st, nil
}

func (s *service) CancelBatch(ctx context.Context, batchID string) error {
	return fail(gateway.OpCancelBatch, s.runner.Cancel(batchID))
}

func (s *service) ClearBatch(ctx context.Context, batchID string) error {
	s.runner.Clear(batchID)
	return nil
}

func (s *service) SearchVideos(ctx context.Context, query domain.SearchQuery) (*domain.SearchResultPage, error) {
	query = query.Normalize()
	if strings.TrimSpace(query.Keyword) == "" {
		return nil, fail(gateway.OpSearchVideos, apperrors.NewBadRequestError("keyword is required"))
	}
	page, err := s.client.SearchVideos(ctx, query)
	if err != nil {
		return nil, fail(gateway.OpSearchVideos, err)
	}
	return page, nil
}

func (s *service) GetTemplates(ctx context.Context) ([]domain.CommentTemplate, error) {
	templates, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, fail(gateway.OpGetTemplates, apperrors.NewInternalError("failed to list templates", err))
	}
	return templates, nil
}

func (s *service) CreateTemplate(ctx context.Context, name, content string) (*domain.CommentTemplate, error) {
	if err := validateTemplate(name, content); err != nil {
		return nil, fail(gateway.OpCreateTemplate, err)
	}
	now := s.now().Unix()
	tpl := &domain.CommentTemplate{
		ID:        uuid.New().String(),
		Name:      name,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveTemplate(ctx, tpl); err != nil {
		return nil, fail(gateway.OpCreateTemplate, apperrors.NewInternalError("failed to save template", err))
	}
	return tpl, nil
}

func (s *service) UpdateTemplate(ctx context.Context, id, name, content string) (*domain.CommentTemplate, error) {
	if err := validateTemplate(name, content); err != nil {
		return nil, fail(gateway.OpUpdateTemplate, err)
	}
	tpl, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, fail(gateway.OpUpdateTemplate, err)
	}
	tpl.Name = name
	tpl.Content = content
	tpl.UpdatedAt = s.now().Unix()
	if err := s.store.SaveTemplate(ctx, tpl); err != nil {
		return nil, fail(gateway.OpUpdateTemplate, apperrors.NewInternalError("failed to save template", err))
	}
	return tpl, nil
}

func (s *service) DeleteTemplate(ctx context.Context, id string) error {
	return fail(gateway.OpDeleteTemplate, s.store.DeleteTemplate(ctx, id))
}

func validateTemplate(name, content string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.NewBadRequestError("template name is required")
	}
	if strings.TrimSpace(content) == "" {
		return apperrors.NewBadRequestError("template content is required")
	}
	return nil
}
