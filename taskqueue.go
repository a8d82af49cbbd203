package taonet

import (
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/atomic"
)

// taskQueue carries callables from any goroutine to the loop thread. At most
// one wakeup is in flight no matter how many tasks are queued: producers only
// notify on the idle to busy transition of the notified flag.
type taskQueue struct {
	loop    *Loop
	watcher *WakeupWatcher

	mu      sync.Mutex // guards pending
	pending *queue.Queue

	notified *atomic.Bool
	notifies *atomic.Uint64
	drains   *atomic.Uint64
}

func newTaskQueue(loop *Loop) (*taskQueue, error) {
	q := &taskQueue{
		loop:     loop,
		pending:  queue.New(),
		notified: atomic.NewBool(false),
		notifies: atomic.NewUint64(0),
		drains:   atomic.NewUint64(0),
	}
	q.watcher = NewWakeupWatcher(loop, q.doPending)
	if err := q.watcher.Init(); err != nil {
		return nil, err
	}
	return q, nil
}

// run executes task inline on the loop thread and queues it otherwise.
func (q *taskQueue) run(task func()) {
	if q.loop.IsInLoopThread() {
		task()
		return
	}
	q.queue(task)
}

func (q *taskQueue) queue(task func()) {
	q.mu.Lock()
	q.pending.Add(task)
	q.mu.Unlock()
	tasksQueued.Inc()

	if q.notified.CAS(false, true) {
		q.watcher.Notify()
		q.notifies.Inc()
		wakeups.Inc()
	}
}

// doPending swaps the whole backlog out under the lock, clears the notified
// flag, then runs the tasks in enqueue order without holding the lock so
// they may queue more work.
func (q *taskQueue) doPending() {
	q.mu.Lock()
	tasks := q.pending
	q.pending = queue.New()
	q.notified.Store(false)
	q.mu.Unlock()

	q.drains.Inc()
	for tasks.Length() > 0 {
		tasks.Remove().(func())()
	}
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Length()
}
