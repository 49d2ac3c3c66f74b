package domain

import "math"

// TaskStatus represents the status of a single comment job
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSuccess   TaskStatus = "success"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsFinished returns true if the job will not change again
func (s TaskStatus) IsFinished() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed || s == TaskStatusCancelled
}

// CommentJob represents one unit of batch work.
// Times are unix seconds.
type CommentJob struct {
	ID           string     `json:"id"`
	Video        Video      `json:"video"`
	Content      string     `json:"content"`
	Status       TaskStatus `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    int64      `json:"created_at"`
	CompletedAt  *int64     `json:"completed_at,omitempty"`
}

// CommentResult is the outcome of sending a single comment
type CommentResult struct {
	Success      bool   `json:"success"`
	CommentID    *int64 `json:"comment_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// BatchStatus is the aggregate progress of a batch
type BatchStatus struct {
	BatchID   string       `json:"batch_id"`
	Total     int          `json:"total"`
	Completed int          `json:"completed"`
	Success   int          `json:"success"`
	Failed    int          `json:"failed"`
	Tasks     []CommentJob `json:"tasks"`
}

// Done reports whether every job has reached a terminal status
func (b *BatchStatus) Done() bool {
	return b.Completed >= b.Total
}

// Percent returns the rounded completion percentage, clamped to [0,100]
func (b *BatchStatus) Percent() int {
	if b.Total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(b.Completed) / float64(b.Total)))
	return max(0, min(100, p))
}
