package taonet

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"
)

func hostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort(%q) error %v", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		t.Fatalf("port %q: %v", p, err)
	}
	return host, port
}

// closedPort returns a loopback port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func TestClientConnectAndSend(t *testing.T) {
	loop := runLoop(t)
	var (
		mu       sync.Mutex
		received []byte
	)
	_, addr := runServer(t, loop, func(s *TCPServer) {
		s.SetMessageCallback(func(c *TCPConnection, buf *Buffer) {
			mu.Lock()
			received = append(received, buf.Next(buf.Len())...)
			mu.Unlock()
		})
	})
	connected := atomic.NewInt32(0)
	client := NewTCPClient(loop, "client", 50*time.Millisecond)
	client.SetConnectionCallback(func(*TCPConnection) { connected.Inc() })
	defer client.Close()

	ip, port := hostPort(t, addr)
	if !client.Connect(ip, port) {
		t.Fatalf("Connect() = false")
	}
	waitFor(t, "connected", func() bool { return connected.Load() == 1 })
	if !client.IsConnected() || client.Conn().State() != Connected {
		t.Fatalf("IsConnected() = %t, state %s", client.IsConnected(), client.Conn().State())
	}
	if got := client.Conn().RemoteAddress(); got != addr {
		t.Fatalf("RemoteAddress() = %q, want %q", got, addr)
	}
	if n := client.SendString("hello"); n != 5 {
		t.Fatalf("Send() = %d, want 5", n)
	}
	waitFor(t, "server receive", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(received) == "hello"
	})
}

func TestClientSendWhileDisconnected(t *testing.T) {
	loop := runLoop(t)
	client := NewTCPClient(loop, "idle", 0)
	if client.checkInterval != DefaultCheckInterval {
		t.Fatalf("checkInterval = %s, want %s", client.checkInterval, DefaultCheckInterval)
	}
	if n := client.SendString("dropped"); n != 0 {
		t.Fatalf("Send() while disconnected = %d, want 0", n)
	}
	if _, err := client.Write([]byte("dropped")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Write() while disconnected error %v, want %v", err, ErrNotConnected)
	}
}

func TestClientConnectRejectsBadAddress(t *testing.T) {
	loop := runLoop(t)
	client := NewTCPClient(loop, "bad", 0)
	if client.Connect("not-an-ip", 80) {
		t.Fatalf("Connect() to a bad address = true")
	}
	if client.IsConnected() {
		t.Fatalf("IsConnected() = true after a rejected Connect")
	}
}

func TestClientFailedConnectRetries(t *testing.T) {
	loop := runLoop(t)
	port := closedPort(t)
	closed := atomic.NewInt32(0)
	client := NewTCPClient(loop, "retry", 30*time.Millisecond)
	client.SetCloseCallback(func(*TCPConnection) { closed.Inc() })
	defer client.Close()

	if !client.Connect("127.0.0.1", port) {
		t.Fatalf("Connect() to a closed port = false, want an asynchronous failure")
	}
	first := client.Conn()
	waitFor(t, "connect failure", func() bool { return first.State() == Disconnected })
	waitFor(t, "rebuild", func() bool { return client.Conn() != first })
	waitFor(t, "more failures", func() bool { return closed.Load() >= 2 })
}

func TestClientRebuildsStaleConnection(t *testing.T) {
	loop := runLoop(t)
	s, addr := runServer(t, loop, nil)
	client := NewTCPClient(loop, "stale", 20*time.Millisecond)
	client.SetHeartBeat(false, 0, 100*time.Millisecond)
	defer client.Close()

	ip, port := hostPort(t, addr)
	if !client.Connect(ip, port) {
		t.Fatalf("Connect() = false")
	}
	old := client.Conn()
	waitFor(t, "connected", func() bool { return old.State() == Connected })

	// the server never sends, so the connection goes stale
	waitFor(t, "rebuild", func() bool { return client.Conn() != old })
	waitFor(t, "stale connection closed", old.IsClosed)
	waitFor(t, "old connection torn down", func() bool { return old.State() == Disconnected })
	waitFor(t, "reconnected", func() bool {
		return client.IsConnected() && client.Conn().State() == Connected
	})
	if s.ConnCount() == 0 {
		t.Fatalf("server lost every connection")
	}
}

func TestClientKeepsActiveConnection(t *testing.T) {
	loop := runLoop(t)
	_, addr := runServer(t, loop, func(s *TCPServer) {
		s.SetHeartBeat(true, 10*time.Millisecond)
		s.SetHBCallback(func(c *TCPConnection) { c.SendString("hb") })
	})
	client := NewTCPClient(loop, "active", 20*time.Millisecond)
	client.SetHeartBeat(false, 0, 200*time.Millisecond)
	client.SetMessageCallback(func(c *TCPConnection, buf *Buffer) { buf.RetrieveAll() })
	defer client.Close()

	ip, port := hostPort(t, addr)
	if !client.Connect(ip, port) {
		t.Fatalf("Connect() = false")
	}
	first := client.Conn()
	time.Sleep(400 * time.Millisecond)
	if client.Conn() != first {
		t.Fatalf("connection receiving heartbeats was rebuilt")
	}
}

func TestClientClose(t *testing.T) {
	loop := runLoop(t)
	_, addr := runServer(t, loop, nil)
	client := NewTCPClient(loop, "closing", 20*time.Millisecond)
	ip, port := hostPort(t, addr)
	if !client.Connect(ip, port) {
		t.Fatalf("Connect() = false")
	}
	conn := client.Conn()
	waitFor(t, "connected", func() bool { return conn.State() == Connected })

	client.Close()
	waitFor(t, "disconnected", func() bool { return !client.IsConnected() })
	time.Sleep(60 * time.Millisecond)
	if client.Conn() != conn {
		t.Fatalf("closed client reconnected")
	}
	if n := client.SendString("late"); n != 0 {
		t.Fatalf("Send() after Close = %d, want 0", n)
	}
}

func TestClientCloseStopsRebuilding(t *testing.T) {
	loop := runLoop(t)
	s, addr := runServer(t, loop, nil)
	ip, port := hostPort(t, addr)

	for i := 0; i < 50; i++ {
		// a tick every millisecond, every connection is stale at once
		client := NewTCPClient(loop, "churn", time.Millisecond)
		client.SetHeartBeat(false, 0, time.Nanosecond)
		if !client.Connect(ip, port) {
			t.Fatalf("Connect() = false")
		}
		time.Sleep(time.Duration(i%5) * time.Millisecond)
		client.Close()

		inLoop(t, loop, func() {})
		last := client.Conn()
		time.Sleep(5 * time.Millisecond)
		if client.Conn() != last {
			t.Fatalf("round %d: connection rebuilt after Close", i)
		}
		waitFor(t, "last connection closed", func() bool {
			return last.IsClosed() && last.State() == Disconnected
		})
		if client.IsConnected() {
			t.Fatalf("round %d: IsConnected() = true after Close", i)
		}
	}
	waitFor(t, "server drained", func() bool { return s.ConnCount() == 0 })
}

func TestClientReconnectClosesPrevious(t *testing.T) {
	loop := runLoop(t)
	s, addr := runServer(t, loop, nil)
	client := NewTCPClient(loop, "again", time.Second)
	ip, port := hostPort(t, addr)

	if !client.Connect(ip, port) {
		t.Fatalf("first Connect() = false")
	}
	first := client.Conn()
	waitFor(t, "first connected", func() bool { return first.State() == Connected })
	if !client.Connect(ip, port) {
		t.Fatalf("second Connect() = false")
	}
	second := client.Conn()
	if second == first {
		t.Fatalf("second Connect() kept the first connection")
	}
	waitFor(t, "first torn down", func() bool { return first.State() == Disconnected })
	waitFor(t, "second connected", func() bool { return second.State() == Connected })
	if !client.IsConnected() {
		t.Fatalf("IsConnected() = false after closing the replaced connection")
	}
	waitFor(t, "one server connection", func() bool { return s.ConnCount() == 1 })

	client.Close()
	waitFor(t, "second torn down", func() bool { return second.State() == Disconnected })
	waitFor(t, "server drained", func() bool { return s.ConnCount() == 0 })
}
