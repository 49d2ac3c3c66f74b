package domain

// CommentTemplate represents a reusable comment text.
// Times are unix seconds.
type CommentTemplate struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}
