package taonet

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// TCPClient owns one outbound connection and a periodic health check that
// rebuilds it when the connect failed, the connection closed, or nothing
// was received for the invalid interval. Retries happen at the fixed check
// cadence, there is no backoff.
type TCPClient struct {
	loop          *Loop
	name          string
	checkInterval time.Duration

	connected  *atomic.Bool
	closing    *atomic.Bool
	nextConnID *atomic.Int64

	mu              sync.Mutex // guards following
	ip              string
	port            int
	conn            *TCPConnection
	timer           *Timer
	onConnect       ConnectionCallback
	onMessage       MessageCallback
	onClose         CloseCallback
	onHeartBeat     HeartBeatCallback
	onWriteDone     WriteCompleteCallback
	heartBeat       bool
	hbInterval      time.Duration
	invalidInterval time.Duration
}

// NewTCPClient returns a client that checks its connection every
// checkInterval, DefaultCheckInterval if it is not positive.
func NewTCPClient(loop *Loop, name string, checkInterval time.Duration) *TCPClient {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	return &TCPClient{
		loop:          loop,
		name:          name,
		checkInterval: checkInterval,
		connected:     atomic.NewBool(false),
		closing:       atomic.NewBool(false),
		nextConnID:    atomic.NewInt64(0),
	}
}

// Connect starts connecting to address:port and arms the health check. It
// returns false if the connect could not even be initiated; failures
// reported later by the socket are retried by the health check. A
// connection left from an earlier Connect is closed.
func (c *TCPClient) Connect(address string, port int) bool {
	if _, err := toSockaddr(address, port); err != nil {
		logWarnf("tcpclient %s connect: %v", c.name, err)
		return false
	}
	c.mu.Lock()
	c.closing.Store(false)
	c.ip, c.port = address, port
	c.mu.Unlock()

	if err := c.connect(); err != nil {
		logWarnf("tcpclient %s connect %s: %v", c.name, joinHostPort(address, port), err)
		return false
	}

	timer, err := NewTimer(c.loop, c.checkInterval, c.check, false)
	if err != nil {
		logErrorf("tcpclient %s health check: %v", c.name, err)
		return false
	}
	c.mu.Lock()
	if c.closing.Load() {
		c.mu.Unlock()
		timer.Cancel()
		return false
	}
	old := c.timer
	c.timer = timer
	c.mu.Unlock()
	if old != nil {
		old.Cancel()
	}
	return true
}

// connect builds a fresh connection and starts a non-blocking connect.
func (c *TCPClient) connect() error {
	c.mu.Lock()
	ip, port := c.ip, c.port
	onConnect, onMessage, onWriteDone := c.onConnect, c.onMessage, c.onWriteDone
	heartBeat, interval := c.heartBeat, c.hbInterval
	c.mu.Unlock()

	sock, err := newSocket()
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err = sock.setNoDelay(); err != nil {
		logDebugf("tcpclient %s set nodelay: %v", c.name, err)
	}
	// a refused connect is reported by the socket like any async failure
	if err = sock.connect(ip, port); err != nil && err != unix.ECONNREFUSED {
		sock.close()
		return err
	}

	conn := newTCPConnection(c.loop, int(sock), c.nextConnID.Inc()-1, c.name)
	conn.SetConnectionCallback(onConnect)
	conn.SetMessageCallback(onMessage)
	conn.SetWriteCompleteCallback(onWriteDone)
	conn.SetCloseCallback(c.connectionClosed)
	conn.SetHeartBeatOpt(heartBeat, interval)
	conn.SetHBCallback(func(conn *TCPConnection) {
		c.mu.Lock()
		cb := c.onHeartBeat
		c.mu.Unlock()
		if cb != nil {
			cb(conn)
		}
	})

	c.mu.Lock()
	if c.closing.Load() {
		c.mu.Unlock()
		sock.close()
		return ErrClientClosed
	}
	old := c.conn
	c.conn = conn
	c.connected.Store(true)
	c.mu.Unlock()
	// its close callback no longer sees it as current
	if old != nil {
		old.Close()
	}
	c.loop.RunInLoop(conn.connectStart)
	return nil
}

func (c *TCPClient) connectionClosed(conn *TCPConnection) {
	if c.Conn() == conn {
		c.connected.Store(false)
	}
	c.mu.Lock()
	onClose := c.onClose
	c.mu.Unlock()
	if onClose != nil {
		onClose(conn)
	}
}

// check runs on the loop thread every checkInterval.
func (c *TCPClient) check() {
	if c.closing.Load() {
		return
	}
	if !c.connected.Load() {
		logWarnf("tcpclient %s connection failed, and begin to retry", c.name)
		c.reconnect()
		return
	}
	c.mu.Lock()
	conn, invalid := c.conn, c.invalidInterval
	c.mu.Unlock()
	if invalid > 0 && conn != nil && time.Since(conn.ActiveTime()) > invalid {
		logWarnf("tcpclient %s connection timeout, and begin to retry", c.name)
		c.reconnect()
	}
}

func (c *TCPClient) reconnect() {
	reconnects.Inc()
	if err := c.connect(); err != nil {
		logWarnf("tcpclient %s reconnect: %v", c.name, err)
	}
}

// Send forwards p to the current connection. While disconnected the bytes
// are dropped and 0 is returned.
func (c *TCPClient) Send(p []byte) int {
	conn := c.Conn()
	if !c.connected.Load() || conn == nil {
		logWarnf("tcp %s client connection has closed", c.name)
		return 0
	}
	return conn.Send(p)
}

// SendString is Send for a string.
func (c *TCPClient) SendString(s string) int {
	return c.Send([]byte(s))
}

// Write implements io.Writer on top of Send.
func (c *TCPClient) Write(p []byte) (int, error) {
	if n := c.Send(p); n > 0 || len(p) == 0 {
		return n, nil
	}
	return 0, ErrNotConnected
}

// Close tears down the current connection and stops the health check. The
// teardown runs on the loop thread, serialized with the health check, and
// no connection is built after Close returns.
func (c *TCPClient) Close() {
	c.mu.Lock()
	c.closing.Store(true)
	c.mu.Unlock()
	c.loop.RunInLoop(func() {
		c.mu.Lock()
		conn, timer := c.conn, c.timer
		c.timer = nil
		c.mu.Unlock()
		if timer != nil {
			timer.Cancel()
		}
		if conn != nil {
			conn.Close()
		}
	})
}

// Conn returns the current connection, nil before the first Connect.
func (c *TCPClient) Conn() *TCPConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// IsConnected reports the connect flag: set when a connect is initiated,
// cleared when that connection closes.
func (c *TCPClient) IsConnected() bool {
	return c.connected.Load()
}

// Name returns the client name, also used for its connections.
func (c *TCPClient) Name() string {
	return c.name
}

// SetHeartBeat configures the heartbeat of the connection and the
// invalid interval after which a silent connection is rebuilt. A zero
// invalid interval disables the staleness check.
func (c *TCPClient) SetHeartBeat(enabled bool, sendInterval, invalidInterval time.Duration) {
	c.mu.Lock()
	c.heartBeat, c.hbInterval, c.invalidInterval = enabled, sendInterval, invalidInterval
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.SetHeartBeatOpt(enabled, sendInterval)
	}
}

// SetConnectionCallback sets a callback to call once connected.
func (c *TCPClient) SetConnectionCallback(cb ConnectionCallback) {
	c.mu.Lock()
	c.onConnect = cb
	c.mu.Unlock()
}

// SetMessageCallback sets a callback to call on bytes arrived.
func (c *TCPClient) SetMessageCallback(cb MessageCallback) {
	c.mu.Lock()
	c.onMessage = cb
	c.mu.Unlock()
}

// SetCloseCallback sets a callback to call on connection closed.
func (c *TCPClient) SetCloseCallback(cb CloseCallback) {
	c.mu.Lock()
	c.onClose = cb
	c.mu.Unlock()
}

// SetHBCallback sets a callback to call on heartbeat timeouts.
func (c *TCPClient) SetHBCallback(cb HeartBeatCallback) {
	c.mu.Lock()
	c.onHeartBeat = cb
	c.mu.Unlock()
}

// SetWriteCompleteCallback sets a callback to call when output drained.
func (c *TCPClient) SetWriteCompleteCallback(cb WriteCompleteCallback) {
	c.mu.Lock()
	c.onWriteDone = cb
	c.mu.Unlock()
}
