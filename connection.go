package taonet

import (
	"sync"
	"time"
	"weak"

	"go.uber.org/atomic"
)

// TCPConnection owns one connected socket registered on a Loop. Its
// handlers, state machine and input buffer belong to the loop thread; Send,
// Close, the setters and the accessors may be called from any goroutine.
type TCPConnection struct {
	loop *Loop
	id   int64
	name string

	// loop thread only
	fd         int
	watcher    *EventWatcher
	idle       *Timer
	readPaused bool
	counted    bool

	state          *atomic.Int32
	activeTime     *atomic.Int64
	closed         *atomic.Bool
	writeScheduled *atomic.Bool

	input  *Buffer
	output *Buffer
	sendMu sync.Mutex // serializes Send against Close

	mu            sync.Mutex // guards following
	remoteAddr    string
	localAddr     string
	onConnect     ConnectionCallback
	onMessage     MessageCallback
	onClose       CloseCallback
	onHeartBeat   HeartBeatCallback
	onWriteDone   WriteCompleteCallback
	readLow       int
	readHigh      int
	writeLow      int
	writeHigh     int
	heartBeat     bool
	heartInterval time.Duration
	ctx           interface{}
}

func newTCPConnection(loop *Loop, fd int, id int64, name string) *TCPConnection {
	c := &TCPConnection{
		loop:           loop,
		id:             id,
		name:           name,
		fd:             fd,
		state:          atomic.NewInt32(int32(Connecting)),
		activeTime:     atomic.NewInt64(time.Now().UnixNano()),
		closed:         atomic.NewBool(false),
		writeScheduled: atomic.NewBool(false),
		input:          &Buffer{},
		output:         &Buffer{},
	}
	c.idle = NewIdleTimer(loop, c.onIdle)
	c.input.onConsume = c.consumed
	logInfof("get connection name:%s, fd:%d", name, fd)
	return c
}

// ID returns the connection's unique id.
func (c *TCPConnection) ID() int64 {
	return c.id
}

// Name returns the connection's unique name.
func (c *TCPConnection) Name() string {
	return c.name
}

// State returns the lifecycle state.
func (c *TCPConnection) State() State {
	return State(c.state.Load())
}

func (c *TCPConnection) setState(s State) {
	c.state.Store(int32(s))
}

// ActiveTime returns the time bytes were last received.
func (c *TCPConnection) ActiveTime() time.Time {
	return time.Unix(0, c.activeTime.Load())
}

// RemoteAddress returns the peer address as "ip:port".
func (c *TCPConnection) RemoteAddress() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteAddr
}

// LocalAddress returns the local address as "ip:port".
func (c *TCPConnection) LocalAddress() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localAddr
}

// Loop returns the loop the connection is registered on.
func (c *TCPConnection) Loop() *Loop {
	return c.loop
}

// SetContext attaches an opaque value to the connection.
func (c *TCPConnection) SetContext(v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = v
}

// Context returns the value set by SetContext.
func (c *TCPConnection) Context() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// SetConnectionCallback sets the callback invoked once established.
func (c *TCPConnection) SetConnectionCallback(cb ConnectionCallback) {
	c.mu.Lock()
	c.onConnect = cb
	c.mu.Unlock()
}

// SetMessageCallback sets the callback invoked when bytes arrive.
func (c *TCPConnection) SetMessageCallback(cb MessageCallback) {
	c.mu.Lock()
	c.onMessage = cb
	c.mu.Unlock()
}

// SetCloseCallback sets the callback invoked once on teardown.
func (c *TCPConnection) SetCloseCallback(cb CloseCallback) {
	c.mu.Lock()
	c.onClose = cb
	c.mu.Unlock()
}

// SetHBCallback sets the heartbeat callback.
func (c *TCPConnection) SetHBCallback(cb HeartBeatCallback) {
	c.mu.Lock()
	c.onHeartBeat = cb
	c.mu.Unlock()
}

// SetWriteCompleteCallback sets the callback invoked when the output buffer
// drains to the write low water mark.
func (c *TCPConnection) SetWriteCompleteCallback(cb WriteCompleteCallback) {
	c.mu.Lock()
	c.onWriteDone = cb
	c.mu.Unlock()
}

// SetReadWaterMark sets the read water marks. The message callback is only
// invoked once at least low bytes are buffered, and reading pauses while
// high or more bytes are buffered. Zero disables a mark.
func (c *TCPConnection) SetReadWaterMark(low, high int) {
	c.mu.Lock()
	c.readLow, c.readHigh = low, high
	c.mu.Unlock()
	c.loop.RunInLoop(c.updateInterest)
}

// SetWriteWaterMark sets the write water marks. The write complete callback
// fires once output drains to low; buffering past high is logged.
func (c *TCPConnection) SetWriteWaterMark(low, high int) {
	c.mu.Lock()
	c.writeLow, c.writeHigh = low, high
	c.mu.Unlock()
}

// SetHeartBeatOpt enables or disables the idle heartbeat. Once the
// connection has received nothing for interval the heartbeat callback is
// invoked and the idle timer re-armed. The connection is never closed for being
// idle.
func (c *TCPConnection) SetHeartBeatOpt(enabled bool, interval time.Duration) {
	c.mu.Lock()
	c.heartBeat, c.heartInterval = enabled, interval
	c.mu.Unlock()
	c.loop.RunInLoop(func() {
		if c.State() == Connected {
			c.armIdle()
		}
	})
}

// HeartBeatOpt returns the heartbeat settings.
func (c *TCPConnection) HeartBeatOpt() (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartBeat, c.heartInterval
}

// Send appends p to the output buffer and returns the bytes accepted. It
// never blocks and returns 0 once the connection is closed.
func (c *TCPConnection) Send(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	c.sendMu.Lock()
	if c.closed.Load() {
		c.sendMu.Unlock()
		return 0
	}
	size := c.output.Append(p)
	c.sendMu.Unlock()

	c.mu.Lock()
	high := c.writeHigh
	c.mu.Unlock()
	if high > 0 && size >= high && size-len(p) < high {
		logWarnf("connection %s output %d bytes reached high water mark %d", c.name, size, high)
	}

	if c.writeScheduled.CAS(false, true) {
		c.loop.RunInLoop(c.enableWriting)
	}
	return len(p)
}

// SendString is Send for a string.
func (c *TCPConnection) SendString(s string) int {
	return c.Send([]byte(s))
}

// Close tears the connection down. Only the first call has an effect: it
// releases the socket and invokes the close callback exactly once.
func (c *TCPConnection) Close() {
	c.sendMu.Lock()
	first := c.closed.CAS(false, true)
	c.sendMu.Unlock()
	if !first {
		return
	}
	c.loop.RunInLoop(c.teardown)
}

// IsClosed reports whether Close has been called.
func (c *TCPConnection) IsClosed() bool {
	return c.closed.Load()
}

// Weak returns a reference that does not keep the connection alive.
func (c *TCPConnection) Weak() WeakConn {
	return WeakConn{p: weak.Make(c)}
}

// WeakConn is a weak reference to a TCPConnection for caches that must not
// extend its lifetime.
type WeakConn struct {
	p weak.Pointer[TCPConnection]
}

// Get returns the connection, or nil once it has been closed or collected.
func (w WeakConn) Get() *TCPConnection {
	c := w.p.Value()
	if c == nil || c.closed.Load() {
		return nil
	}
	return c
}

func (c *TCPConnection) callbacks() (ConnectionCallback, MessageCallback, CloseCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onConnect, c.onMessage, c.onClose
}

func (c *TCPConnection) readWaterMark() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLow, c.readHigh
}
