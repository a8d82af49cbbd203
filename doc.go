/*
Package taonet implements a reactor-pattern TCP runtime for Linux.

Loop is a single-threaded event loop. Run locks the calling goroutine to
its OS thread and from then on every readiness callback, timer callback and
queued task runs on that thread, one at a time and to completion. Work is
marshaled onto the loop from other goroutines with RunInLoop or
QueueInLoop; a backlog of queued tasks costs a single wakeup.

EventWatcher binds a file descriptor to a callback on the loop, and
WakeupWatcher is the socket-pair variant other goroutines use to wake it.

Timer schedules a one-shot or persistent callback on the loop.

TCPConnection owns one connected socket. Bytes received are appended to an
input Buffer handed to the MessageCallback, which frames them itself:

	func(conn *taonet.TCPConnection, buf *taonet.Buffer) {
		conn.Send(buf.Next(buf.Len()))
	}

Send and Close may be called from any goroutine. Send never blocks and
returns 0 once the connection is closed; Close is idempotent and invokes the
close callback exactly once.

TCPServer accepts connections into a table keyed by a unique name of the
form server<ip>#<id>. Various ServerOption are supported:

1. MaxConnections refuses connections above a limit;
2. WithHeartBeat enables the idle heartbeat on accepted connections;
3. OnClose sets a callback on connection closed.

TCPClient keeps one outbound connection alive: a health check running every
check interval rebuilds it after a failed connect, a close, or a silence
longer than the invalid interval.

Hosting binaries call Setup once before starting any loop. Logging goes
through Log and the sinks registered with AddSink; MonitorOn exposes the
runtime metrics over HTTP.
*/
package taonet
