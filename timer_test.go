package taonet

import (
	"container/heap"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/atomic"
)

func TestAlarmHeapOrder(t *testing.T) {
	base := time.Now()
	offsets := []int{5, 1, 4, 2, 3, 0}
	h := make(alarmHeap, 0)
	for _, off := range offsets {
		heap.Push(&h, &alarm{when: base.Add(time.Duration(off) * time.Millisecond), index: -1})
	}
	var got []int
	for h.Len() > 0 {
		a := heap.Pop(&h).(*alarm)
		got = append(got, int(a.when.Sub(base)/time.Millisecond))
		if a.index != -1 {
			t.Fatalf("popped alarm index %d, want -1", a.index)
		}
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4, 5}, got); diff != "" {
		t.Fatalf("pop order mismatch (-want +got):\n%s", diff)
	}
}

func TestPollTimeout(t *testing.T) {
	loop, err := NewLoop()
	if err != nil {
		t.Fatalf("NewLoop() error %v", err)
	}
	defer loop.Close()

	now := time.Now()
	if got := loop.pollTimeout(now); got != -1 {
		t.Fatalf("pollTimeout() with no timers = %d, want -1", got)
	}
	timer := &Timer{}
	loop.schedule(&alarm{when: now.Add(1500 * time.Microsecond), timer: timer, index: -1})
	if got := loop.pollTimeout(now); got != 2 {
		t.Fatalf("pollTimeout() = %d, want 2", got)
	}
	if got := loop.pollTimeout(now.Add(time.Second)); got != 0 {
		t.Fatalf("pollTimeout() for an expired timer = %d, want 0", got)
	}
}

func TestPersistentTimerRejectsZeroInterval(t *testing.T) {
	loop, err := NewLoop()
	if err != nil {
		t.Fatalf("NewLoop() error %v", err)
	}
	defer loop.Close()
	if _, err := NewTimer(loop, 0, func() {}, false); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("NewTimer() error %v, want %v", err, ErrInvalidInterval)
	}
}

func TestOneShotTimerFiresOnce(t *testing.T) {
	loop := runLoop(t)
	fired := atomic.NewInt32(0)
	timer, err := NewTimer(loop, 10*time.Millisecond, func() {
		if !loop.IsInLoopThread() {
			t.Errorf("timer callback off the loop thread")
		}
		fired.Inc()
	}, true)
	if err != nil {
		t.Fatalf("NewTimer() error %v", err)
	}
	waitFor(t, "timer", func() bool { return fired.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Fatalf("one-shot timer fired %d times", n)
	}
	if timer.Pending() {
		t.Fatalf("Pending() = true after a one-shot timer fired")
	}
}

func TestPersistentTimerRearms(t *testing.T) {
	loop := runLoop(t)
	fired := atomic.NewInt32(0)
	timer, err := NewTimer(loop, 10*time.Millisecond, func() { fired.Inc() }, false)
	if err != nil {
		t.Fatalf("NewTimer() error %v", err)
	}
	waitFor(t, "three ticks", func() bool { return fired.Load() >= 3 })
	if !timer.Pending() {
		t.Fatalf("Pending() = false for a running persistent timer")
	}

	timer.Cancel()
	timer.Cancel()
	after := fired.Load()
	time.Sleep(50 * time.Millisecond)
	if n := fired.Load(); n > after+1 {
		t.Fatalf("timer fired %d times after Cancel", n-after)
	}
	var pending int
	inLoop(t, loop, func() { pending = loop.pendingTimers() })
	if pending != 0 {
		t.Fatalf("%d alarms left after Cancel", pending)
	}
}

func TestTimerCancelBeforeFire(t *testing.T) {
	loop := runLoop(t)
	fired := atomic.NewInt32(0)
	timer, err := NewTimer(loop, 30*time.Millisecond, func() { fired.Inc() }, true)
	if err != nil {
		t.Fatalf("NewTimer() error %v", err)
	}
	timer.Cancel()
	time.Sleep(80 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Fatalf("canceled timer fired %d times", n)
	}
}

func TestTimerAddDebounces(t *testing.T) {
	loop := runLoop(t)
	fired := atomic.NewInt32(0)
	timer := NewIdleTimer(loop, func() { fired.Inc() })
	if timer.Pending() {
		t.Fatalf("idle timer armed at construction")
	}
	for i := 0; i < 3; i++ {
		timer.Add(20 * time.Millisecond)
	}
	waitFor(t, "timer", func() bool { return fired.Load() >= 1 })
	time.Sleep(60 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Fatalf("debounced timer fired %d times, want 1", n)
	}

	// it can be armed again once nothing is pending
	timer.Add(5 * time.Millisecond)
	waitFor(t, "second fire", func() bool { return fired.Load() == 2 })
	timer.Cancel()
}

func TestOneShotTimerRearmsFromCallback(t *testing.T) {
	loop := runLoop(t)
	fired := atomic.NewInt32(0)
	var timer *Timer
	timer = NewIdleTimer(loop, func() {
		if fired.Inc() < 3 {
			timer.Add(5 * time.Millisecond)
		}
	})
	timer.Add(5 * time.Millisecond)
	waitFor(t, "three fires", func() bool { return fired.Load() == 3 })
	timer.Cancel()
}
