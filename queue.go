package relay

import (
	"sync"
	"time"
)

// Queue is the ordered buffer of pending tasks. The in-memory default is
// process-local; durable implementations may be substituted behind the
// same contract.
type Queue interface {
	// Enqueue appends a task to the back of the queue.
	Enqueue(task *Task)
	// PushFront returns a task to the front, preserving its place ahead of
	// later submissions.
	PushFront(task *Task)
	// DequeueReady removes and returns the first task whose ReadyAt has
	// elapsed, or nil when none is ready. Not-yet-ready tasks keep their
	// positions.
	DequeueReady(now time.Time) *Task
	// Len reports the number of queued tasks.
	Len() int
}

type memoryQueue struct {
	mu    sync.Mutex
	tasks []*Task
}

var _ Queue = (*memoryQueue)(nil)

// NewMemoryQueue creates the default in-process FIFO queue.
func NewMemoryQueue() Queue {
	return &memoryQueue{}
}

func (q *memoryQueue) Enqueue(task *Task) {
	if task == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = append(q.tasks, task)
}

func (q *memoryQueue) PushFront(task *Task) {
	if task == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = append([]*Task{task}, q.tasks...)
}

func (q *memoryQueue) DequeueReady(now time.Time) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, task := range q.tasks {
		if task.ReadyAt.After(now) {
			continue
		}

		q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)

		return task
	}

	return nil
}

func (q *memoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}
