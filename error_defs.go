package taonet

import "errors"

// Error codes returned by failures dealing with loop, server or connection.
var (
	ErrLoopClosed      = errors.New("loop has been closed")
	ErrLoopRunning     = errors.New("loop is already running")
	ErrWatcherInit     = errors.New("watcher init failed")
	ErrListen          = errors.New("listen failed")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrNotConnected    = errors.New("connection not established")
	ErrServerClosed    = errors.New("server has been closed")
	ErrClientClosed    = errors.New("client has been closed")
	ErrInvalidInterval = errors.New("interval must be positive")
)
