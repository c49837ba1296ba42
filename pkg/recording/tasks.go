package recording

import "sync"

// TaskQueue runs deferred tasks one at a time on a dedicated goroutine.
//
// State transitions scheduled from inside the duration-timer callback (such
// as the automatic stop at the recording limit) must not re-enter session
// state under the timer's lock, so they are enqueued here instead of run
// inline.
type TaskQueue struct {
	mu     sync.Mutex
	tasks  chan func()
	closed bool
	wg     sync.WaitGroup
}

// NewTaskQueue creates a running TaskQueue.
func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{tasks: make(chan func(), 16)}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *TaskQueue) run() {
	defer q.wg.Done()
	for task := range q.tasks {
		task()
	}
}

// Schedule enqueues a task. Tasks scheduled after Close are dropped.
func (q *TaskQueue) Schedule(task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.tasks <- task
}

// Close stops accepting tasks and waits for queued tasks to finish.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	q.wg.Wait()
}
