package taonet

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// connTable maps connection names to connections. The server only mutates
// it on the loop thread; lookups such as Conn and ConnCount may come from
// any goroutine.
type connTable struct {
	m *xsync.MapOf[string, *TCPConnection]
}

func newConnTable() *connTable {
	return &connTable{m: xsync.NewMapOf[string, *TCPConnection]()}
}

func (t *connTable) put(c *TCPConnection) {
	t.m.Store(c.Name(), c)
}

func (t *connTable) get(name string) (*TCPConnection, bool) {
	return t.m.Load(name)
}

// remove deletes the entry for c only, a newer connection registered under
// the same name is left alone.
func (t *connTable) remove(c *TCPConnection) {
	t.m.Compute(c.Name(), func(old *TCPConnection, loaded bool) (*TCPConnection, bool) {
		return old, !loaded || old == c
	})
}

func (t *connTable) size() int {
	return t.m.Size()
}

func (t *connTable) isEmpty() bool {
	return t.size() == 0
}

// snapshot returns the connections present at the time of the call.
func (t *connTable) snapshot() []*TCPConnection {
	conns := make([]*TCPConnection, 0, t.size())
	t.m.Range(func(_ string, c *TCPConnection) bool {
		conns = append(conns, c)
		return true
	})
	return conns
}

func (t *connTable) clear() {
	t.m.Clear()
}
