package queue

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// Status is the lifecycle state of a Task.
type Status string

// Task states. pending -> running -> {completed, failed}; pending -> skipped.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// ErrInvalidTransition is returned when a status change is not allowed from
// the task's current state.
var ErrInvalidTransition = errors.New("invalid task transition")

// Task is one document to convert. Status changes go through the Mark
// methods, which are safe to call concurrently with readers.
type Task struct {
	ID         string
	SourcePath string
	OutputDir  string
	Priority   int

	seq uint64

	mu          sync.RWMutex
	status      Status
	errMsg      string
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
}

func newTask(id, source, output string, priority int, seq uint64) *Task {
	return &Task{
		ID:         id,
		SourcePath: source,
		OutputDir:  output,
		Priority:   priority,
		seq:        seq,
		status:     StatusPending,
		createdAt:  time.Now(),
	}
}

// SourceName returns the base name of the source path.
func (t *Task) SourceName() string {
	return filepath.Base(t.SourcePath)
}

// Status returns the current status.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// ErrorMessage returns the failure or skip reason. Empty unless the task
// failed or was skipped.
func (t *Task) ErrorMessage() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.errMsg
}

// CreatedAt returns when the task was queued.
func (t *Task) CreatedAt() time.Time {
	return t.createdAt
}

// StartedAt returns when the task started running. Zero if it never ran.
func (t *Task) StartedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.startedAt
}

// CompletedAt returns when the task reached a terminal state.
func (t *Task) CompletedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completedAt
}

// Duration returns the running time of a finished task, or zero.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.startedAt.IsZero() || t.completedAt.IsZero() {
		return 0
	}
	return t.completedAt.Sub(t.startedAt)
}

// MarkStarted moves a pending task to running.
func (t *Task) MarkStarted() error {
	return t.transition(StatusPending, StatusRunning, "")
}

// MarkCompleted moves a running task to completed.
func (t *Task) MarkCompleted() error {
	return t.transition(StatusRunning, StatusCompleted, "")
}

// MarkFailed moves a running task to failed with msg as the reason.
func (t *Task) MarkFailed(msg string) error {
	if msg == "" {
		msg = "unknown error"
	}
	return t.transition(StatusRunning, StatusFailed, msg)
}

// MarkSkipped moves a pending task to skipped with reason.
func (t *Task) MarkSkipped(reason string) error {
	if reason == "" {
		reason = "skipped"
	}
	return t.transition(StatusPending, StatusSkipped, reason)
}

func (t *Task) transition(from, to Status, msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != from {
		return fmt.Errorf("%w: task %s is %s, cannot become %s", ErrInvalidTransition, t.ID, t.status, to)
	}

	now := time.Now()
	t.status = to
	t.errMsg = msg
	if to == StatusRunning {
		t.startedAt = now
	} else {
		t.completedAt = now
	}
	return nil
}

// Info is a point-in-time copy of a task suitable for reports.
type Info struct {
	ID          string    `json:"id" yaml:"id"`
	SourcePath  string    `json:"source_path" yaml:"source_path"`
	OutputDir   string    `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Priority    int       `json:"priority" yaml:"priority"`
	Status      Status    `json:"status" yaml:"status"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Info returns a consistent copy of the task's state.
func (t *Task) Info() Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Info{
		ID:          t.ID,
		SourcePath:  t.SourcePath,
		OutputDir:   t.OutputDir,
		Priority:    t.Priority,
		Status:      t.status,
		Error:       t.errMsg,
		CreatedAt:   t.createdAt,
		StartedAt:   t.startedAt,
		CompletedAt: t.completedAt,
	}
}
