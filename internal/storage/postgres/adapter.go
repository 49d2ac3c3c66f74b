package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	apperrors "github.com/kurihiro0119/bili-comment/internal/errors"
	"github.com/kurihiro0119/bili-comment/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_templates_created_at ON templates(created_at);

	CREATE TABLE IF NOT EXISTS credentials (
		id SMALLINT PRIMARY KEY CHECK (id = 1),
		sessdata TEXT NOT NULL,
		bili_jct TEXT NOT NULL,
		dede_user_id TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// ListTemplates returns all templates, oldest first
func (s *postgresStorage) ListTemplates(ctx context.Context) ([]domain.CommentTemplate, error) {
	query := `
		SELECT id, name, content, created_at, updated_at
		FROM templates
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []domain.CommentTemplate{}
	for rows.Next() {
		var t domain.CommentTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.Content, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}

	return templates, rows.Err()
}

// GetTemplate retrieves a template by id
func (s *postgresStorage) GetTemplate(ctx context.Context, id string) (*domain.CommentTemplate, error) {
	query := `SELECT id, name, content, created_at, updated_at FROM templates WHERE id = $1`

	var t domain.CommentTemplate
	err := s.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name, &t.Content, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("template")
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTemplate inserts or updates a template
func (s *postgresStorage) SaveTemplate(ctx context.Context, tpl *domain.CommentTemplate) error {
	query := `
		INSERT INTO templates (id, name, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, tpl.ID, tpl.Name, tpl.Content, tpl.CreatedAt, tpl.UpdatedAt)
	return err
}

// DeleteTemplate removes a template
func (s *postgresStorage) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewNotFoundError("template")
	}
	return nil
}

// SaveCredential stores the login credential, replacing any previous one
func (s *postgresStorage) SaveCredential(ctx context.Context, cred *domain.LoginCredential) error {
	query := `
		INSERT INTO credentials (id, sessdata, bili_jct, dede_user_id, expires_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			sessdata = EXCLUDED.sessdata,
			bili_jct = EXCLUDED.bili_jct,
			dede_user_id = EXCLUDED.dede_user_id,
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.db.ExecContext(ctx, query, cred.SESSDATA, cred.BiliJct, cred.DedeUserID, cred.ExpiresAt.UTC())
	return err
}

// LoadCredential returns the stored credential
func (s *postgresStorage) LoadCredential(ctx context.Context) (*domain.LoginCredential, error) {
	query := `SELECT sessdata, bili_jct, dede_user_id, expires_at FROM credentials WHERE id = 1`

	var c domain.LoginCredential
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, query).Scan(&c.SESSDATA, &c.BiliJct, &c.DedeUserID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.ExpiresAt = expiresAt
	return &c, nil
}

// DeleteCredential removes the stored credential
func (s *postgresStorage) DeleteCredential(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials`)
	return err
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}
