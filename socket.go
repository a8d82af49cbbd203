package taonet

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type socket int

func newSocket() (socket, error) {
	sfd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return socket(-1), err
	}
	return socket(sfd), nil
}

func (sock socket) setSockOpt(opts ...int) error {
	for _, opt := range opts {
		err := unix.SetsockoptInt(int(sock), unix.SOL_SOCKET, opt, 1)
		if err != nil {
			return err
		}
	}
	return nil
}

func (sock socket) setNoDelay() error {
	return unix.SetsockoptInt(int(sock), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}

func (sock socket) bind(ip string, port int) error {
	sa, err := toSockaddr(ip, port)
	if err != nil {
		return err
	}
	return unix.Bind(int(sock), sa)
}

func (sock socket) listen() error {
	return unix.Listen(int(sock), unix.SOMAXCONN)
}

// connect starts a non-blocking connect. EINPROGRESS is not an error.
func (sock socket) connect(ip string, port int) error {
	sa, err := toSockaddr(ip, port)
	if err != nil {
		return err
	}
	err = unix.Connect(int(sock), sa)
	if err == nil || err == unix.EINPROGRESS {
		return nil
	}
	return err
}

func (sock socket) close() error {
	return unix.Close(int(sock))
}

// listenSocket returns a bound, listening, non-blocking IPv4 socket.
func listenSocket(ip string, port int) (socket, error) {
	sock, err := newSocket()
	if err != nil {
		return sock, fmt.Errorf("socket: %w", err)
	}
	if err = sock.setSockOpt(unix.SO_REUSEADDR); err != nil {
		sock.close()
		return socket(-1), fmt.Errorf("setsockopt: %w", err)
	}
	if err = sock.bind(ip, port); err != nil {
		sock.close()
		return socket(-1), fmt.Errorf("bind %s: %w", joinHostPort(ip, port), err)
	}
	if err = sock.listen(); err != nil {
		sock.close()
		return socket(-1), fmt.Errorf("listen %s: %w", joinHostPort(ip, port), err)
	}
	return sock, nil
}

// socketError returns the pending error of fd, nil if there is none.
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}
