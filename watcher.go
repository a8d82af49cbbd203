package taonet

import (
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// EventWatcher binds one file descriptor and an interest set to a callback
// on the loop. Apart from construction it must only be used on the loop
// thread, or before the loop starts running.
type EventWatcher struct {
	loop     *Loop
	fd       int
	interest IOEvent
	handler  func(IOEvent)
	onCancel func()
	inited   bool
	watching bool
}

// NewEventWatcher returns an unregistered watcher for fd.
func NewEventWatcher(loop *Loop, fd int, interest IOEvent, handler func(IOEvent)) *EventWatcher {
	return &EventWatcher{
		loop:     loop,
		fd:       fd,
		interest: interest,
		handler:  handler,
	}
}

// Init registers the watcher with the loop. Initializing a watcher twice is
// a programming error and panics.
func (w *EventWatcher) Init() error {
	if w.inited {
		panic(fmt.Sprintf("taonet: watcher for fd %d initialized twice", w.fd))
	}
	w.inited = true
	return w.Watch()
}

// Watch (re-)arms the registration for the current interest set. A previous
// registration is torn down first.
func (w *EventWatcher) Watch() error {
	if w.watching {
		w.unregister()
	}
	if err := w.loop.poller.add(w.fd, w.interest); err != nil {
		return fmt.Errorf("%w: %w", ErrWatcherInit, err)
	}
	w.loop.watchers[w.fd] = w
	w.watching = true
	return nil
}

// SetInterest changes the interest set, updating a live registration.
func (w *EventWatcher) SetInterest(ev IOEvent) {
	if w.interest == ev {
		return
	}
	w.interest = ev
	if !w.watching {
		return
	}
	if err := w.loop.poller.mod(w.fd, ev); err != nil {
		logWarnf("watcher fd %d interest %s: %v", w.fd, ev, err)
	}
}

// Interest returns the current interest set.
func (w *EventWatcher) Interest() IOEvent {
	return w.interest
}

// Disable removes the registration without touching the descriptor.
func (w *EventWatcher) Disable() {
	if w.watching {
		w.unregister()
	}
}

// SetCancelCallback sets the one-shot callback invoked by Cancel.
func (w *EventWatcher) SetCancelCallback(cb func()) {
	w.onCancel = cb
}

// Cancel deregisters the watcher, then invokes and clears the cancel
// callback so it fires at most once.
func (w *EventWatcher) Cancel() {
	w.Disable()
	if cb := w.onCancel; cb != nil {
		w.onCancel = nil
		cb()
	}
}

func (w *EventWatcher) unregister() {
	if err := w.loop.poller.del(w.fd); err != nil {
		logDebugf("watcher unregister: %v", err)
	}
	if w.loop.watchers[w.fd] == w {
		delete(w.loop.watchers, w.fd)
	}
	w.watching = false
}

func (w *EventWatcher) handle(ev IOEvent) {
	if w.handler != nil {
		w.handler(ev)
	}
}

// WakeupWatcher lets other goroutines wake the loop. It is backed by a
// connected local socket pair: Notify writes one byte to one end, the loop
// watches the other end, drains it and calls the fixed handler.
type WakeupWatcher struct {
	loop    *Loop
	pair    [2]int
	handler func()
	ev      *EventWatcher
	drain   [64]byte
}

// NewWakeupWatcher returns a watcher calling handler on the loop every
// time a notification is received.
func NewWakeupWatcher(loop *Loop, handler func()) *WakeupWatcher {
	return &WakeupWatcher{
		loop:    loop,
		pair:    [2]int{-1, -1},
		handler: handler,
	}
}

// Init creates the socket pair. It is safe to call from any goroutine and
// fails if the descriptors cannot be allocated.
func (w *WakeupWatcher) Init() error {
	if w.ev != nil {
		panic("taonet: wakeup watcher initialized twice")
	}
	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("%w: socketpair: %w", ErrWatcherInit, err)
	}
	w.pair = pair
	w.ev = NewEventWatcher(w.loop, pair[1], EventRead, w.onReadable)
	return nil
}

// AsyncWait starts watching for notifications. It must run on the loop
// thread, or before the loop starts running.
func (w *WakeupWatcher) AsyncWait() error {
	if !w.ev.inited {
		return w.ev.Init()
	}
	return w.ev.Watch()
}

// Notify wakes the loop. It never blocks and ignores write failures: a full
// socket buffer means a wakeup is already pending.
func (w *WakeupWatcher) Notify() {
	if w.pair[0] < 0 {
		return
	}
	one := [1]byte{1}
	unix.Write(w.pair[0], one[:])
}

// Cancel stops watching.
func (w *WakeupWatcher) Cancel() {
	if w.ev != nil {
		w.ev.Cancel()
	}
}

// Close releases both ends of the socket pair.
func (w *WakeupWatcher) Close() error {
	if w.pair[0] < 0 {
		return nil
	}
	var err error
	for i, fd := range w.pair {
		err = multierr.Append(err, unix.Close(fd))
		w.pair[i] = -1
	}
	return err
}

func (w *WakeupWatcher) onReadable(IOEvent) {
	for {
		n, err := unix.Read(w.pair[1], w.drain[:])
		if n <= 0 || err != nil {
			break
		}
	}
	w.handler()
}
