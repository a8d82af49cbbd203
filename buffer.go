package taonet

import (
	"bytes"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer is a byte buffer safe for concurrent use. Connections hand their
// input buffer to the message callback, which consumes the prefix it can
// frame and leaves the rest for the next call.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer

	// onConsume runs after bytes are consumed, outside the lock.
	onConsume func()
}

func (b *Buffer) consumed() {
	if b.onConsume != nil {
		b.onConsume()
	}
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// Bytes returns a copy of the unread bytes.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// Peek returns a copy of at most n unread bytes without consuming them.
func (b *Buffer) Peek(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.buf.Len() {
		n = b.buf.Len()
	}
	if n <= 0 {
		return nil
	}
	return append([]byte(nil), b.buf.Bytes()[:n]...)
}

// Retrieve discards the first n unread bytes.
func (b *Buffer) Retrieve(n int) {
	b.mu.Lock()
	if n >= b.buf.Len() {
		b.buf.Reset()
	} else if n > 0 {
		b.buf.Next(n)
	}
	b.mu.Unlock()
	b.consumed()
}

// RetrieveAll discards every unread byte.
func (b *Buffer) RetrieveAll() {
	b.mu.Lock()
	b.buf.Reset()
	b.mu.Unlock()
	b.consumed()
}

// Next consumes and returns at most n bytes.
func (b *Buffer) Next(n int) []byte {
	b.mu.Lock()
	p := append([]byte(nil), b.buf.Next(n)...)
	b.mu.Unlock()
	b.consumed()
	return p
}

// RetrieveAllAsString consumes every unread byte and returns it as a string.
func (b *Buffer) RetrieveAllAsString() string {
	b.mu.Lock()
	s := b.buf.String()
	b.buf.Reset()
	b.mu.Unlock()
	b.consumed()
	return s
}

// String returns the unread bytes without consuming them.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Write appends p. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

// Append appends p and returns the buffered length afterwards.
func (b *Buffer) Append(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	return b.buf.Len()
}

// flush writes as much as fd accepts and consumes it. It returns the bytes
// written and the bytes left.
func (b *Buffer) flush(fd int) (int, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	written := 0
	for b.buf.Len() > 0 {
		n, err := unix.Write(fd, b.buf.Bytes())
		if n > 0 {
			written += n
			b.buf.Next(n)
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				err = nil
			}
			return written, b.buf.Len(), err
		}
		if n == 0 {
			break
		}
	}
	if b.buf.Len() == 0 {
		b.buf.Reset()
	}
	return written, b.buf.Len(), nil
}
