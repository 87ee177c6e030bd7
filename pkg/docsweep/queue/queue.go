// Package queue holds conversion tasks and their lifecycle state.
//
// Tasks are kept in insertion order and retained after they finish so a run
// can be audited. Pending returns the dispatch order: priority descending,
// then creation time, then insertion sequence.
package queue

import (
	"cmp"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
)

// Stats counts tasks by status.
type Stats struct {
	Total     int `json:"total" yaml:"total"`
	Pending   int `json:"pending" yaml:"pending"`
	Running   int `json:"running" yaml:"running"`
	Completed int `json:"completed" yaml:"completed"`
	Failed    int `json:"failed" yaml:"failed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
}

// Queue is an insertion-ordered collection of tasks. It is safe for
// concurrent use.
type Queue struct {
	mu    sync.Mutex
	tasks []*Task
	seq   uint64
	log   *logging.Logger
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{log: logging.Get("queue")}
}

// Add queues a document. An empty output uses the processor's default.
func (q *Queue) Add(source, output string, priority int) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.addLocked(source, output, priority)
}

func (q *Queue) addLocked(source, output string, priority int) *Task {
	q.seq++
	t := newTask(uuid.NewString(), source, output, priority, q.seq)
	q.tasks = append(q.tasks, t)
	q.log.Debug("added task", "task", t.ID, "source", t.SourceName(), "priority", priority)
	return t
}

// AddMany queues each source with the same output and priority.
func (q *Queue) AddMany(sources []string, output string, priority int) []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]*Task, 0, len(sources))
	for _, src := range sources {
		tasks = append(tasks, q.addLocked(src, output, priority))
	}
	return tasks
}

// Remove deletes t from the queue. It reports false if t was not queued.
func (q *Queue) Remove(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := slices.Index(q.tasks, t)
	if i < 0 {
		return false
	}
	q.tasks = slices.Delete(q.tasks, i, i+1)
	q.log.Debug("removed task", "task", t.ID)
	return true
}

// Clear removes every task.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = nil
	q.log.Debug("cleared queue")
}

// Len returns the number of tasks in any state.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// All returns every task in insertion order.
func (q *Queue) All() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.tasks)
}

// Pending returns pending tasks in dispatch order.
func (q *Queue) Pending() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pendingLocked()
}

func (q *Queue) pendingLocked() []*Task {
	var pending []*Task
	for _, t := range q.tasks {
		if t.Status() == StatusPending {
			pending = append(pending, t)
		}
	}
	slices.SortFunc(pending, dispatchOrder)
	return pending
}

func dispatchOrder(a, b *Task) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	if c := a.createdAt.Compare(b.createdAt); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// ByStatus returns tasks with status s in insertion order.
func (q *Queue) ByStatus(s Status) []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Task
	for _, t := range q.tasks {
		if t.Status() == s {
			out = append(out, t)
		}
	}
	return out
}

// Claim moves the next pending task to running and returns it. Each pending
// task is returned by at most one Claim. It reports false when nothing is
// pending.
func (q *Queue) Claim() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.pendingLocked() {
		if err := t.MarkStarted(); err == nil {
			return t, true
		}
	}
	return nil, false
}

// Stats counts tasks by status.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{Total: len(q.tasks)}
	for _, t := range q.tasks {
		switch t.Status() {
		case StatusPending:
			s.Pending++
		case StatusRunning:
			s.Running++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}
