package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	apperrors "github.com/kurihiro0119/bili-comment/internal/errors"
	"github.com/kurihiro0119/bili-comment/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_templates_created_at ON templates(created_at);

	CREATE TABLE IF NOT EXISTS credentials (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		sessdata TEXT NOT NULL,
		bili_jct TEXT NOT NULL,
		dede_user_id TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// ListTemplates returns all templates, oldest first
func (s *sqliteStorage) ListTemplates(ctx context.Context) ([]domain.CommentTemplate, error) {
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
func (s *sqliteStorage) GetTemplate(ctx context.Context, id string) (*domain.CommentTemplate, error) {
	query := `SELECT id, name, content, created_at, updated_at FROM templates WHERE id = ?`

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

// SaveTemplate inserts or replaces a template
func (s *sqliteStorage) SaveTemplate(ctx context.Context, tpl *domain.CommentTemplate) error {
	query := `
		INSERT INTO templates (id, name, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			content = excluded.content,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, tpl.ID, tpl.Name, tpl.Content, tpl.CreatedAt, tpl.UpdatedAt)
	return err
}

// DeleteTemplate removes a template
func (s *sqliteStorage) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
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
func (s *sqliteStorage) SaveCredential(ctx context.Context, cred *domain.LoginCredential) error {
	query := `
		INSERT OR REPLACE INTO credentials (id, sessdata, bili_jct, dede_user_id, expires_at)
		VALUES (1, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, cred.SESSDATA, cred.BiliJct, cred.DedeUserID, cred.ExpiresAt.Unix())
	return err
}

// LoadCredential returns the stored credential
func (s *sqliteStorage) LoadCredential(ctx context.Context) (*domain.LoginCredential, error) {
	query := `SELECT sessdata, bili_jct, dede_user_id, expires_at FROM credentials WHERE id = 1`

	var c domain.LoginCredential
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, query).Scan(&c.SESSDATA, &c.BiliJct, &c.DedeUserID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.ExpiresAt = time.Unix(expiresAt, 0)
	return &c, nil
}

// DeleteCredential removes the stored credential
func (s *sqliteStorage) DeleteCredential(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials`)
	return err
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}
