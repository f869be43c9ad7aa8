package stream

// RunStatus mirrors the remote run lifecycle.
type RunStatus string

const (
	StatusQueued     RunStatus = "queued"
	StatusInProgress RunStatus = "in_progress"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
	StatusCancelled  RunStatus = "cancelled"
)

// RunHandle identifies one in-flight run. It lives only for the duration of
// a streaming connection and is never persisted. RunID is filled in by the
// adapter once the creation event arrives.
type RunHandle struct {
	ThreadID    string
	AssistantID string
	RunID       string
	Status      RunStatus
}

// Terminal reports whether the handle reached a final status
func (h *RunHandle) Terminal() bool {
	switch h.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
