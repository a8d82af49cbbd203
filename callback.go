package taonet

// ConnectionCallback is called once a connection is established.
type ConnectionCallback func(*TCPConnection)

// MessageCallback is called when bytes arrive. The callback owns framing: it
// consumes the prefix it understands with Retrieve or Next and leaves the
// rest in the buffer for the next call.
type MessageCallback func(*TCPConnection, *Buffer)

// CloseCallback is called exactly once when a connection is torn down.
type CloseCallback func(*TCPConnection)

// HeartBeatCallback is called when a connection with heartbeat enabled has
// been idle for its heartbeat interval.
type HeartBeatCallback func(*TCPConnection)

// WriteCompleteCallback is called when the output buffer drains to the write
// low water mark.
type WriteCompleteCallback func(*TCPConnection)

// timerContext is the callback context owned by a Timer. It is released only
// after the alarm referring to it has been removed from the loop.
type timerContext struct {
	task func()
}
