package taonet

import (
	"runtime"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// Loop is a single-threaded reactor. Run polls the multiplexer and executes
// every readiness callback, timer callback and queued task on one locked OS
// thread. Only RunInLoop, QueueInLoop, Stop and IsInLoopThread are safe to
// call from other goroutines.
type Loop struct {
	poller   *epollPoller
	watchers map[int]*EventWatcher
	alarms   alarmHeap
	tasks    *taskQueue
	events   []readyEvent
	readBuf  []byte

	tid       *atomic.Int64
	running   *atomic.Bool
	quit      *atomic.Bool
	closed    *atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once
}

// NewLoop returns a loop that has not started running yet.
func NewLoop() (*Loop, error) {
	p, err := openPoller()
	if err != nil {
		return nil, err
	}
	l := &Loop{
		poller:   p,
		watchers: make(map[int]*EventWatcher),
		alarms:   make(alarmHeap, 0),
		events:   make([]readyEvent, MaxPollEvents),
		readBuf:  make([]byte, ReadBufferSize),
		tid:      atomic.NewInt64(0),
		running:  atomic.NewBool(false),
		quit:     atomic.NewBool(false),
		closed:   atomic.NewBool(false),
		done:     make(chan struct{}),
	}
	l.tasks, err = newTaskQueue(l)
	if err != nil {
		p.close()
		return nil, err
	}
	// no loop thread exists yet, registering here is race free.
	if err = l.tasks.watcher.AsyncWait(); err != nil {
		p.close()
		l.tasks.watcher.Close()
		return nil, err
	}
	return l, nil
}

// Run locks the calling goroutine to its OS thread and dispatches events
// until Stop is called.
func (l *Loop) Run() error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	if !l.running.CAS(false, true) {
		return ErrLoopRunning
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.tid.Store(int64(unix.Gettid()))
	defer func() {
		l.tid.Store(0)
		l.running.Store(false)
		l.doneOnce.Do(func() { close(l.done) })
	}()
	logInfof("loop running on thread %d", l.tid.Load())

	for !l.quit.Load() {
		n, err := l.poller.wait(l.events, l.pollTimeout(time.Now()))
		if err != nil {
			logErrorf("loop poll error %v", err)
			return err
		}
		for i := 0; i < n; i++ {
			ready := l.events[i]
			// a callback earlier in this batch may have cancelled it.
			if w, ok := l.watchers[ready.fd]; ok {
				w.handle(ready.ev)
			}
		}
		l.fireTimers(time.Now())
	}
	logInfof("loop on thread %d stopped", l.tid.Load())
	return nil
}

// Stop asks Run to return after the current iteration. Stop is sticky, a
// stopped loop does not run again.
func (l *Loop) Stop() {
	if l.quit.CAS(false, true) {
		l.tasks.watcher.Notify()
	}
}

// Close stops the loop and releases the multiplexer and wakeup resources.
// It must be called after Run has returned.
func (l *Loop) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.Stop()
		l.closed.Store(true)
		err = multierr.Combine(
			l.tasks.watcher.Close(),
			l.poller.close(),
		)
	})
	return err
}

// IsInLoopThread reports whether the caller runs on the loop thread.
func (l *Loop) IsInLoopThread() bool {
	tid := l.tid.Load()
	return tid != 0 && tid == int64(unix.Gettid())
}

// RunInLoop runs task immediately on the loop thread, or queues it when
// called from another goroutine.
func (l *Loop) RunInLoop(task func()) {
	l.tasks.run(task)
}

// QueueInLoop always defers task to the loop's next iteration.
func (l *Loop) QueueInLoop(task func()) {
	l.tasks.queue(task)
}

// runSync runs task on the loop thread and returns its result. Before Run
// starts the caller owns the loop and task runs inline. If the loop exits
// before picking task up, task is abandoned and ErrLoopClosed returned.
func (l *Loop) runSync(task func() error) error {
	if !l.running.Load() || l.IsInLoopThread() {
		return task()
	}
	const (
		waiting = iota
		started
		abandoned
	)
	state := atomic.NewInt32(waiting)
	result := make(chan error, 1)
	l.RunInLoop(func() {
		if state.CAS(waiting, started) {
			result <- task()
		}
	})
	select {
	case err := <-result:
		return err
	case <-l.done:
		if state.CAS(waiting, abandoned) {
			return ErrLoopClosed
		}
		return <-result
	}
}

func (l *Loop) pendingTimers() int {
	return l.alarms.Len()
}

func (l *Loop) pollTimeout(now time.Time) int {
	if l.alarms.Len() == 0 {
		return -1
	}
	d := l.alarms[0].when.Sub(now)
	if d <= 0 {
		return 0
	}
	ms := int(d / time.Millisecond)
	if d%time.Millisecond != 0 {
		ms++
	}
	return ms
}
