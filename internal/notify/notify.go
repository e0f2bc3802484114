// Package notify collects the toast notices produced while handling a
// request so the HTTP layer can flush them to the browser.
package notify

import "sync"

// Severity of a notice.
type Severity string

const (
	Success Severity = "success"
	Error   Severity = "error"
	Warning Severity = "warning"
	Info    Severity = "info"
)

// Notice is one message for the toast surface.
type Notice struct {
	Message  string   `json:"message"`
	Severity Severity `json:"type"`
}

// DurationMs is how long the browser keeps the notice on screen.
func (n Notice) DurationMs() int {
	if n.Severity == Error || n.Severity == Warning {
		return 5000
	}
	return 3000
}

// Queue is a per-session FIFO of pending notices. It is safe for
// concurrent use.
type Queue struct {
	mu      sync.Mutex
	pending []Notice
	limit   int
}

// NewQueue returns a queue that keeps at most limit notices, dropping the
// oldest first. A non-positive limit means 50.
func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = 50
	}
	return &Queue{limit: limit}
}

// Notify appends a notice. Empty messages are ignored.
func (q *Queue) Notify(n Notice) {
	if n.Message == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, n)
	if over := len(q.pending) - q.limit; over > 0 {
		q.pending = append([]Notice(nil), q.pending[over:]...)
	}
}

// Drain returns and clears all pending notices.
func (q *Queue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Len returns the number of pending notices.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
