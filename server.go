package taonet

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

type options struct {
	maxConns   int
	heartBeat  bool
	hbInterval time.Duration
	onClose    CloseCallback
}

// ServerOption sets server options.
type ServerOption func(*options)

// MaxConnections returns a ServerOption that refuses connections once n
// are open. Zero means no limit.
func MaxConnections(n int) ServerOption {
	return func(o *options) {
		o.maxConns = n
	}
}

// WithHeartBeat returns a ServerOption that enables the idle heartbeat on
// every accepted connection.
func WithHeartBeat(enabled bool, interval time.Duration) ServerOption {
	return func(o *options) {
		o.heartBeat = enabled
		o.hbInterval = interval
	}
}

// OnClose returns a ServerOption that will set callback to call when a
// connection is closed.
func OnClose(cb CloseCallback) ServerOption {
	return func(o *options) {
		o.onClose = cb
	}
}

var _ Server = (*TCPServer)(nil)

// TCPServer accepts connections on a Loop and keeps them in a table keyed
// by connection name. The table is only mutated on the loop thread; other
// goroutines marshal work there with RunInLoop, which shares the loop's
// task queue so it is ordered with connection and timer work.
type TCPServer struct {
	loop       *Loop
	opts       options
	conns      *connTable
	nextConnID *atomic.Int64
	stopped    *atomic.Bool
	closed     *atomic.Bool
	closeOnce  sync.Once

	// loop thread only
	listener socket
	acceptor *EventWatcher

	mu          sync.Mutex // guards following
	ip          string
	port        int
	listening   bool
	onConnect   ConnectionCallback
	onMessage   MessageCallback
	onHeartBeat HeartBeatCallback
	onClose     CloseCallback
	heartBeat   bool
	hbInterval  time.Duration
}

// NewTCPServer returns a server bound to loop which is not listening yet.
func NewTCPServer(loop *Loop, opt ...ServerOption) (*TCPServer, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	if loop.closed.Load() {
		return nil, ErrLoopClosed
	}
	s := &TCPServer{
		loop:       loop,
		opts:       opts,
		conns:      newConnTable(),
		nextConnID: atomic.NewInt64(0),
		stopped:    atomic.NewBool(false),
		closed:     atomic.NewBool(false),
		listener:   socket(-1),
		onClose:    opts.onClose,
		heartBeat:  opts.heartBeat,
		hbInterval: opts.hbInterval,
	}
	return s, nil
}

// Listen binds ip:port and starts accepting. It returns once the listener
// is registered with the loop; a bind or registration failure is returned
// and never retried. Port 0 picks a free port, see Addr. A server listens
// on one address only.
func (s *TCPServer) Listen(ip string, port int) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	s.mu.Lock()
	if s.listening {
		addr := joinHostPort(s.ip, s.port)
		s.mu.Unlock()
		return fmt.Errorf("%w: already listening on %s", ErrListen, addr)
	}
	s.listening = true
	s.mu.Unlock()

	sock, err := listenSocket(ip, port)
	if err == nil {
		if _, bound, lerr := localAddr(int(sock)); lerr == nil {
			port = bound
		}
		err = s.loop.runSync(func() error {
			acceptor := NewEventWatcher(s.loop, int(sock), EventRead, s.handleAccept)
			if err := acceptor.Init(); err != nil {
				return err
			}
			s.listener, s.acceptor = sock, acceptor
			if s.stopped.Load() {
				acceptor.Disable()
			}
			return nil
		})
		if err != nil {
			sock.close()
		}
	}
	if err != nil {
		s.mu.Lock()
		s.listening = false
		s.mu.Unlock()
		logErrorf("tcp server listen %s error: %v", joinHostPort(ip, port), err)
		return fmt.Errorf("%w: %w", ErrListen, err)
	}

	s.mu.Lock()
	s.ip, s.port = ip, port
	s.mu.Unlock()
	logInfof("tcp server listen %s", joinHostPort(ip, port))
	return nil
}

// Addr returns the address passed to Listen with the port actually bound.
func (s *TCPServer) Addr() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ip, s.port
}

// accept4 is replaced in tests to inject listener failures.
var accept4 = unix.Accept4

// handleAccept drains the accept backlog. Any error apart from EAGAIN,
// EINTR and ECONNABORTED is fatal and stops the loop.
func (s *TCPServer) handleAccept(IOEvent) {
	for {
		fd, sa, err := accept4(int(s.listener), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EINTR, unix.ECONNABORTED:
				continue
			}
			logErrorf("Got an error %v on the listener, Shutting down.", err)
			s.loop.Stop()
			return
		}
		s.newConnection(fd, sa)
	}
}

func (s *TCPServer) newConnection(fd int, sa unix.Sockaddr) {
	if max := s.opts.maxConns; max > 0 && s.conns.size() >= max {
		logWarnf("max connections size %d, refuse", s.conns.size())
		unix.Close(fd)
		return
	}
	if err := socket(fd).setNoDelay(); err != nil {
		logDebugf("set nodelay on fd %d: %v", fd, err)
	}

	id := s.nextConnID.Inc() - 1
	name := fmt.Sprintf("server%s#%d", sockaddrIP(sa), id)
	conn := newTCPConnection(s.loop, fd, id, name)

	s.mu.Lock()
	onConnect, onMessage := s.onConnect, s.onMessage
	heartBeat, interval := s.heartBeat, s.hbInterval
	s.mu.Unlock()

	conn.SetConnectionCallback(onConnect)
	conn.SetMessageCallback(onMessage)
	conn.SetCloseCallback(s.removeConnection)
	conn.SetHeartBeatOpt(heartBeat, interval)
	conn.SetHBCallback(func(c *TCPConnection) {
		s.mu.Lock()
		cb := s.onHeartBeat
		s.mu.Unlock()
		if cb != nil {
			cb(c)
		}
	})

	// in the table before the connection callback can close it
	s.conns.put(conn)
	conn.connectEstablished()
	logInfof("accepted client %s, id %d, total %d", name, id, s.conns.size())
}

// removeConnection is the close callback of every accepted connection.
func (s *TCPServer) removeConnection(c *TCPConnection) {
	s.RunInLoop(func() {
		s.conns.remove(c)
		logInfof("connection %s removed, total %d", c.Name(), s.conns.size())
	})
	s.mu.Lock()
	onClose := s.onClose
	s.mu.Unlock()
	if onClose != nil {
		onClose(c)
	}
}

// Stop closes every tracked connection and stops accepting. It is
// idempotent.
func (s *TCPServer) Stop() {
	if !s.stopped.CAS(false, true) {
		return
	}
	s.RunInLoop(func() {
		for _, c := range s.conns.snapshot() {
			c.Close()
		}
		if s.acceptor != nil {
			s.acceptor.Disable()
		}
		logInfof("tcp server stopped")
	})
}

// ReStart resumes accepting after Stop. It is idempotent.
func (s *TCPServer) ReStart() {
	if !s.stopped.CAS(true, false) {
		return
	}
	s.RunInLoop(func() {
		if s.acceptor == nil {
			return
		}
		if err := s.acceptor.Watch(); err != nil {
			logErrorf("tcp server restart: %v", err)
			return
		}
		logInfof("tcp server restarted")
	})
}

// IsStopped reports whether Stop was called without a later ReStart.
func (s *TCPServer) IsStopped() bool {
	return s.stopped.Load()
}

// RunInLoop runs task synchronously on the loop thread, otherwise it is
// queued and the loop woken once for the whole backlog.
func (s *TCPServer) RunInLoop(task func()) {
	s.loop.RunInLoop(task)
}

// QueueInLoop defers task to the loop thread.
func (s *TCPServer) QueueInLoop(task func()) {
	s.loop.QueueInLoop(task)
}

// Loop returns the server's loop.
func (s *TCPServer) Loop() *Loop {
	return s.loop
}

// Conn returns the connection registered under name.
func (s *TCPServer) Conn(name string) (*TCPConnection, bool) {
	return s.conns.get(name)
}

// ConnCount returns the number of connections in the table.
func (s *TCPServer) ConnCount() int {
	return s.conns.size()
}

// Conns returns the connections in the table at the time of the call.
func (s *TCPServer) Conns() []*TCPConnection {
	return s.conns.snapshot()
}

// Close stops the server and releases the listener. It must be called on
// the loop thread, or from anywhere once the loop has stopped running; from
// another goroutine while the loop runs the release is queued.
func (s *TCPServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.Stop()
		if s.loop.running.Load() && !s.loop.IsInLoopThread() {
			s.RunInLoop(func() {
				if err := s.release(); err != nil {
					logWarnf("tcp server close: %v", err)
				}
			})
			return
		}
		// no loop thread, the caller owns the loop state
		s.loop.tasks.doPending()
		err = s.release()
	})
	return err
}

func (s *TCPServer) release() error {
	var err error
	if s.acceptor != nil {
		s.acceptor.Cancel()
		s.acceptor = nil
	}
	if s.listener >= 0 {
		err = multierr.Append(err, s.listener.close())
		s.listener = socket(-1)
	}
	if !s.conns.isEmpty() {
		logDebugf("tcp server released with %d connections closing", s.conns.size())
		s.conns.clear()
	}
	return err
}

// SetConnectionCallback sets a callback to call on client connected.
func (s *TCPServer) SetConnectionCallback(cb ConnectionCallback) {
	s.mu.Lock()
	s.onConnect = cb
	s.mu.Unlock()
}

// SetMessageCallback sets a callback to call on bytes arrived.
func (s *TCPServer) SetMessageCallback(cb MessageCallback) {
	s.mu.Lock()
	s.onMessage = cb
	s.mu.Unlock()
}

// SetCloseCallback sets a callback to call on client closed.
func (s *TCPServer) SetCloseCallback(cb CloseCallback) {
	s.mu.Lock()
	s.onClose = cb
	s.mu.Unlock()
}

// SetHeartBeat configures the heartbeat of connections accepted from now on.
func (s *TCPServer) SetHeartBeat(enabled bool, interval time.Duration) {
	s.mu.Lock()
	s.heartBeat, s.hbInterval = enabled, interval
	s.mu.Unlock()
}

// SetHBCallback sets a callback to call on heartbeat timeouts.
func (s *TCPServer) SetHBCallback(cb HeartBeatCallback) {
	s.mu.Lock()
	s.onHeartBeat = cb
	s.mu.Unlock()
}
