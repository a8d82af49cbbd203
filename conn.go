package taonet

import (
	"time"

	"golang.org/x/sys/unix"
)

// Loop-side half of TCPConnection. Everything here runs on the loop thread.

// connectEstablished promotes an accepted or freshly connected socket to
// Connected, starts reading and invokes the connection callback.
func (c *TCPConnection) connectEstablished() {
	if c.closed.Load() {
		return
	}
	c.setState(Connected)
	c.fillAddrs()
	c.activeTime.Store(time.Now().UnixNano())

	if c.watcher == nil {
		c.watcher = NewEventWatcher(c.loop, c.fd, EventRead, c.handleEvent)
		if err := c.watcher.Init(); err != nil {
			logWarnf("connection %s register: %v", c.name, err)
			c.Close()
			return
		}
	}
	c.updateInterest()
	c.counted = true
	connectionsTotal.Inc()
	liveConns.Inc()
	c.armIdle()

	logInfof("connection %s established <%s -> %s>", c.name, c.LocalAddress(), c.RemoteAddress())
	if onConnect, _, _ := c.callbacks(); onConnect != nil {
		onConnect(c)
	}
	// bytes sent from the connection callback
	if c.output.Len() > 0 {
		c.enableWriting()
	}
}

// connectStart watches a socket with a non-blocking connect in progress.
// It becomes writable once the connect completes or fails.
func (c *TCPConnection) connectStart() {
	if c.closed.Load() {
		return
	}
	c.watcher = NewEventWatcher(c.loop, c.fd, EventWrite, c.handleEvent)
	if err := c.watcher.Init(); err != nil {
		logWarnf("connection %s register: %v", c.name, err)
		c.Close()
	}
}

func (c *TCPConnection) handleEvent(ev IOEvent) {
	if c.closed.Load() {
		return
	}
	if c.State() == Connecting {
		c.handleConnect(ev)
		return
	}
	if ev&EventError != 0 {
		err := socketError(c.fd)
		logWarnf("connection:%s recv err: %v", c.name, err)
		c.shutdown()
		return
	}
	if ev&EventHup != 0 && ev&EventRead == 0 {
		logWarnf("connection:%s recv EOF", c.name)
		c.shutdown()
		return
	}
	if ev&EventRead != 0 {
		c.handleRead()
	}
	if ev&EventWrite != 0 && !c.closed.Load() {
		c.handleWrite()
	}
}

func (c *TCPConnection) handleConnect(ev IOEvent) {
	if err := socketError(c.fd); err != nil || ev&(EventError|EventHup) != 0 {
		if err == nil {
			err = unix.ECONNREFUSED
		}
		logWarnf("connection:%s connect failed: %v", c.name, err)
		c.shutdown()
		return
	}
	logInfof("connection %s connected", c.name)
	c.watcher.SetInterest(EventRead)
	c.connectEstablished()
}

func (c *TCPConnection) handleRead() {
	buf := c.loop.readBuf
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return
		}
		logWarnf("connection:%s recv err: %v", c.name, err)
		c.shutdown()
		return
	}
	if n == 0 {
		logWarnf("connection:%s recv EOF", c.name)
		c.shutdown()
		return
	}
	bytesRead.Add(n)
	c.activeTime.Store(time.Now().UnixNano())
	if logEnabled(LevelTrace) {
		logTracef("connection %s read %d bytes\n%s", c.name, n, Hexdump(buf[:n]))
	}

	size := c.input.Append(buf[:n])
	low, high := c.readWaterMark()
	if size >= low {
		if _, onMessage, _ := c.callbacks(); onMessage != nil {
			onMessage(c, c.input)
		}
	}
	if !c.closed.Load() && high > 0 && c.input.Len() >= high && !c.readPaused {
		logDebugf("connection %s input reached high water mark %d, pause reading", c.name, high)
		c.readPaused = true
		c.updateInterest()
	}
}

func (c *TCPConnection) handleWrite() {
	n, left, err := c.output.flush(c.fd)
	if n > 0 {
		bytesWritten.Add(n)
	}
	if err != nil {
		logWarnf("connection:%s send err: %v", c.name, err)
		c.shutdown()
		return
	}
	if left == 0 {
		c.writeScheduled.Store(false)
	}
	c.updateInterest()

	c.mu.Lock()
	low, onWriteDone := c.writeLow, c.onWriteDone
	c.mu.Unlock()
	if n > 0 && left <= low && onWriteDone != nil {
		onWriteDone(c)
	}
}

// enableWriting is scheduled by Send.
func (c *TCPConnection) enableWriting() {
	if c.closed.Load() || c.State() != Connected {
		return
	}
	c.handleWrite()
}

// consumed resumes reading once the message callback drained the input
// below the high water mark. It may be called from any goroutine.
func (c *TCPConnection) consumed() {
	c.loop.RunInLoop(func() {
		if !c.readPaused || c.closed.Load() {
			return
		}
		if _, high := c.readWaterMark(); high <= 0 || c.input.Len() < high {
			c.readPaused = false
			c.updateInterest()
		}
	})
}

func (c *TCPConnection) updateInterest() {
	if c.watcher == nil || c.closed.Load() {
		return
	}
	if _, high := c.readWaterMark(); high <= 0 {
		c.readPaused = false
	}
	var ev IOEvent
	if !c.readPaused {
		ev |= EventRead
	}
	if c.State() == Connecting || c.output.Len() > 0 {
		ev |= EventWrite
	}
	c.watcher.SetInterest(ev)
}

func (c *TCPConnection) armIdle() {
	enabled, interval := c.HeartBeatOpt()
	if enabled && interval > 0 {
		c.idle.Add(interval)
	}
}

// onIdle fires when the heartbeat interval elapsed. The heartbeat callback
// only runs when nothing was received for a full interval; otherwise the
// idle timer is re-armed for the remainder.
func (c *TCPConnection) onIdle() {
	if c.State() != Connected || c.closed.Load() {
		return
	}
	enabled, interval := c.HeartBeatOpt()
	if !enabled || interval <= 0 {
		return
	}
	idle := time.Since(c.ActiveTime())
	if idle < interval {
		c.idle.Add(interval - idle)
		return
	}
	heartBeats.Inc()
	c.mu.Lock()
	onHeartBeat := c.onHeartBeat
	c.mu.Unlock()
	if onHeartBeat != nil {
		onHeartBeat(c)
	}
	c.idle.Add(interval)
}

// shutdown handles I/O failures: they always resolve to Close.
func (c *TCPConnection) shutdown() {
	if c.State() < Disconnecting {
		c.setState(Disconnecting)
	}
	c.Close()
}

func (c *TCPConnection) teardown() {
	c.idle.Cancel()
	if c.State() == Connected {
		c.setState(Disconnecting)
		// best effort, the peer may already be gone
		if _, _, err := c.output.flush(c.fd); err != nil {
			logDebugf("connection %s final flush: %v", c.name, err)
		}
	}
	if c.watcher != nil {
		c.watcher.Cancel()
	}
	if c.fd >= 0 {
		if err := unix.Close(c.fd); err != nil {
			logDebugf("connection %s close fd %d: %v", c.name, c.fd, err)
		}
		c.fd = -1
	}
	if c.counted {
		liveConns.Dec()
		c.counted = false
	}
	logWarnf("%s close connection", c.name)

	if _, _, onClose := c.callbacks(); onClose != nil {
		onClose(c)
	}
	c.setState(Disconnected)
}

func (c *TCPConnection) fillAddrs() {
	remote, local := "", ""
	if ip, port, err := peerAddr(c.fd); err == nil {
		remote = joinHostPort(ip, port)
	}
	if ip, port, err := localAddr(c.fd); err == nil {
		local = joinHostPort(ip, port)
	}
	c.mu.Lock()
	c.remoteAddr, c.localAddr = remote, local
	c.mu.Unlock()
}
