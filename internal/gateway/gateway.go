// Package gateway defines the single boundary through which the client
// controllers reach the backend. Every operation may fail; failures are
// reported as *Error so callers can tell transport problems from
// application rejections.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/kurihiro0119/bili-comment/internal/domain"
)

// Operation names, as they appear in logs and metrics.
const (
	OpGetUserInfo        = "get_user_info"
	OpGetLoginQRCode     = "get_login_qrcode"
	OpPollLoginStatus    = "poll_login_status"
	OpLogout             = "logout"
	OpCheckLoginValid    = "check_login_valid"
	OpGetCommentInterval = "get_comment_interval"
	OpSendComment        = "send_comment"
	OpBatchSendComments  = "batch_send_comments"
	OpGetBatchStatus     = "get_batch_status"
	OpCancelBatch        = "cancel_batch"
	OpClearBatch         = "clear_batch"
	OpSearchVideos       = "search_videos"
	OpGetTemplates       = "get_templates"
	OpCreateTemplate     = "create_template"
	OpUpdateTemplate     = "update_template"
	OpDeleteTemplate     = "delete_template"
)

// Gateway is the set of remote operations the client consumes.
type Gateway interface {
	// GetUserInfo returns nil when nobody is logged in.
	GetUserInfo(ctx context.Context) (*domain.UserIdentity, error)
	GetLoginQRCode(ctx context.Context) (*domain.QRCredential, error)
	PollLoginStatus(ctx context.Context, qrcodeKey string) (*domain.LoginPollOutcome, error)
	Logout(ctx context.Context) error
	CheckLoginValid(ctx context.Context) (bool, error)
	// GetCommentInterval returns the backend's gap between comments, in seconds.
	GetCommentInterval(ctx context.Context) (int, error)

	SendComment(ctx context.Context, video domain.Video, content string) (*domain.CommentResult, error)
	BatchSendComments(ctx context.Context, videos []domain.Video, content string) (string, error)
	GetBatchStatus(ctx context.Context, batchID string) (*domain.BatchStatus, error)
	CancelBatch(ctx context.Context, batchID string) error
	ClearBatch(ctx context.Context, batchID string) error

	SearchVideos(ctx context.Context, query domain.SearchQuery) (*domain.SearchResultPage, error)

	GetTemplates(ctx context.Context) ([]domain.CommentTemplate, error)
	CreateTemplate(ctx context.Context, name, content string) (*domain.CommentTemplate, error)
	UpdateTemplate(ctx context.Context, id, name, content string) (*domain.CommentTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
}

// Kind classifies a failed operation.
type Kind int

const (
	// KindTransport means the backend could not be reached or its reply could not be read.
	KindTransport Kind = iota + 1
	// KindApplication means the backend answered and rejected the request.
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindApplication:
		return "application"
	}
	return "unknown"
}

// Error wraps the failure of one remote operation.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transport wraps err as a transport failure of op.
func Transport(op string, err error) error {
	return &Error{Op: op, Kind: KindTransport, Err: err}
}

// Application wraps err as an application failure of op.
func Application(op string, err error) error {
	return &Error{Op: op, Kind: KindApplication, Err: err}
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Kind == KindTransport
}

// IsApplication reports whether err is an application failure.
func IsApplication(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Kind == KindApplication
}
