package storage

import (
	"context"

	"github.com/kurihiro0119/bili-comment/internal/domain"
)

// Storage is the abstract interface for the persistence layer
type Storage interface {
	// Template operations
	ListTemplates(ctx context.Context) ([]domain.CommentTemplate, error)
	// GetTemplate returns a NOT_FOUND AppError for unknown ids
	GetTemplate(ctx context.Context, id string) (*domain.CommentTemplate, error)
	SaveTemplate(ctx context.Context, tpl *domain.CommentTemplate) error
	// DeleteTemplate returns a NOT_FOUND AppError for unknown ids
	DeleteTemplate(ctx context.Context, id string) error

	// Credential operations. At most one credential is stored.
	SaveCredential(ctx context.Context, cred *domain.LoginCredential) error
	// LoadCredential returns nil when none is stored
	LoadCredential(ctx context.Context) (*domain.LoginCredential, error)
	DeleteCredential(ctx context.Context) error

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
