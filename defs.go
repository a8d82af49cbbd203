package taonet

import (
	"fmt"
	"time"
)

// definitions about some constants.
const (
	// MaxPollEvents is the number of readiness events fetched per poll.
	MaxPollEvents = 128
	// ReadBufferSize is the size of the per-loop scratch buffer used for reads.
	ReadBufferSize = 64 * 1024
	// DefaultCheckInterval is the TCPClient health-check period used when
	// a non-positive interval is given.
	DefaultCheckInterval = 3 * time.Second
)

// State is the lifecycle state of a TCPConnection. States only move forward.
type State int32

// Connection states.
const (
	Connecting State = iota
	Connected
	Disconnecting
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	case Disconnected:
		return "Disconnected"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// IOEvent is a readiness mask reported by the poller.
type IOEvent uint32

// Readiness flags.
const (
	EventRead IOEvent = 1 << iota
	EventWrite
	EventError
	EventHup
)

func (ev IOEvent) String() string {
	s := ""
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if ev&EventRead != 0 {
		add("READ")
	}
	if ev&EventWrite != 0 {
		add("WRITE")
	}
	if ev&EventError != 0 {
		add("ERROR")
	}
	if ev&EventHup != 0 {
		add("HUP")
	}
	if s == "" {
		return "NONE"
	}
	return s
}

// Server is the accept/dispatch surface a protocol layer builds on. The
// protocol layer installs its own connection and message callbacks and
// marshals work onto the loop with RunInLoop.
type Server interface {
	Listen(ip string, port int) error
	Stop()
	ReStart()
	IsStopped() bool
	RunInLoop(task func())
	QueueInLoop(task func())
	SetConnectionCallback(cb ConnectionCallback)
	SetMessageCallback(cb MessageCallback)
	SetHeartBeat(enabled bool, interval time.Duration)
	SetHBCallback(cb HeartBeatCallback)
}
