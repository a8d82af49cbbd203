package taonet

import (
	"os/signal"
	"sync"
	"syscall"
)

// Version is the library version reported by the CLI.
const Version = "0.3.0"

var setupOnce sync.Once

// Setup performs the process-wide initialization a hosting binary needs
// before any loop starts: writes to a peer that went away must fail with
// EPIPE instead of killing the process. Constructors never call it.
func Setup() {
	setupOnce.Do(func() {
		signal.Ignore(syscall.SIGPIPE)
	})
}
