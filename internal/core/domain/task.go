package domain

import "time"

type OCRTaskStatus string

const (
	TaskProcessing OCRTaskStatus = "processing"
	TaskCompleted  OCRTaskStatus = "completed"
	TaskFailed     OCRTaskStatus = "failed"
)

// OCRTask is the observable state of one asynchronous recognition job.
// A task moves from processing to exactly one terminal status and is
// never reused; a fresh identifier is minted per submission.
type OCRTask struct {
	ID        string
	Status    OCRTaskStatus
	Text      string
	Error     string
	CreatedAt time.Time
	DoneAt    time.Time
}

// Terminal reports whether the task has reached its final status.
func (t OCRTask) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}
