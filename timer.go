package taonet

import (
	"container/heap"
	"time"

	"go.uber.org/atomic"
)

// alarm is one scheduled expiration in the loop's heap.
type alarm struct {
	when   time.Time
	repeat bool
	timer  *Timer
	index  int // for container/heap
}

type alarmHeap []*alarm

func (h alarmHeap) Len() int {
	return len(h)
}

func (h alarmHeap) Less(i, j int) bool {
	return h[i].when.Before(h[j].when)
}

func (h alarmHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *alarmHeap) Push(x interface{}) {
	a := x.(*alarm)
	a.index = len(*h)
	*h = append(*h, a)
}

func (h *alarmHeap) Pop() interface{} {
	old := *h
	n := len(old)
	a := old[n-1]
	old[n-1] = nil
	a.index = -1
	*h = old[0 : n-1]
	return a
}

func (l *Loop) schedule(a *alarm) {
	heap.Push(&l.alarms, a)
}

func (l *Loop) unschedule(a *alarm) {
	if a.index >= 0 && a.index < len(l.alarms) && l.alarms[a.index] == a {
		heap.Remove(&l.alarms, a.index)
	}
}

// fireTimers runs the alarms due at now. Alarms armed by these callbacks
// wait for the next iteration.
func (l *Loop) fireTimers(now time.Time) {
	var due []*alarm
	for l.alarms.Len() > 0 && !l.alarms[0].when.After(now) {
		due = append(due, heap.Pop(&l.alarms).(*alarm))
	}
	for _, a := range due {
		a.timer.fire(a)
	}
}

// Timer runs a callback on the loop thread after a delay, once or every
// interval. Its methods may be called from any goroutine.
type Timer struct {
	loop     *Loop
	interval time.Duration
	oneShot  bool

	// loop thread only
	ctx     *timerContext
	current *alarm

	pending  *atomic.Bool
	canceled *atomic.Bool
}

// NewTimer arms a timer firing cb after delay. A persistent timer (oneShot
// false) re-arms itself every delay and needs a positive delay.
func NewTimer(loop *Loop, delay time.Duration, cb func(), oneShot bool) (*Timer, error) {
	if !oneShot && delay <= 0 {
		return nil, ErrInvalidInterval
	}
	t := newTimer(loop, delay, cb, oneShot)
	t.pending.Store(true)
	loop.RunInLoop(func() {
		t.arm(delay, !oneShot)
	})
	return t, nil
}

// NewIdleTimer returns an unarmed one-shot timer. Arm it with Add.
func NewIdleTimer(loop *Loop, cb func()) *Timer {
	return newTimer(loop, 0, cb, true)
}

func newTimer(loop *Loop, delay time.Duration, cb func(), oneShot bool) *Timer {
	return &Timer{
		loop:     loop,
		interval: delay,
		oneShot:  oneShot,
		ctx:      &timerContext{task: cb},
		pending:  atomic.NewBool(false),
		canceled: atomic.NewBool(false),
	}
}

// Add arms a one-shot alarm after delay unless an alarm is already pending.
func (t *Timer) Add(delay time.Duration) {
	t.loop.RunInLoop(func() {
		if t.canceled.Load() || t.current != nil {
			return
		}
		t.arm(delay, false)
	})
}

// Cancel deregisters the pending alarm, then releases the callback. It is
// safe to call more than once.
func (t *Timer) Cancel() {
	if !t.canceled.CAS(false, true) {
		return
	}
	t.loop.RunInLoop(func() {
		if t.current != nil {
			t.loop.unschedule(t.current)
			t.current = nil
		}
		t.pending.Store(false)
		t.ctx = nil
	})
}

// Pending reports whether an alarm is armed.
func (t *Timer) Pending() bool {
	return t.pending.Load()
}

// Interval returns the period of a persistent timer.
func (t *Timer) Interval() time.Duration {
	return t.interval
}

func (t *Timer) arm(delay time.Duration, repeat bool) {
	if t.canceled.Load() {
		return
	}
	a := &alarm{
		when:   time.Now().Add(delay),
		repeat: repeat,
		timer:  t,
		index:  -1,
	}
	t.current = a
	t.pending.Store(true)
	t.loop.schedule(a)
}

func (t *Timer) fire(a *alarm) {
	if t.current != a {
		return
	}
	t.current = nil
	t.pending.Store(false)
	if t.canceled.Load() || t.ctx == nil {
		return
	}
	ctx := t.ctx
	if a.repeat {
		t.arm(t.interval, true)
	}
	ctx.task()
}
