package taonet

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

func peerAddr(fd int) (string, int, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return "", 0, err
	}
	return sockaddrIP(sa), sockaddrPort(sa), nil
}

func localAddr(fd int) (string, int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", 0, err
	}
	return sockaddrIP(sa), sockaddrPort(sa), nil
}

func sockaddrIP(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(sa.Addr[:]).String()
	case *unix.SockaddrInet6:
		return net.IP(sa.Addr[:]).String()
	}
	return ""
}

func sockaddrPort(sa unix.Sockaddr) int {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return sa.Port
	case *unix.SockaddrInet6:
		return sa.Port
	}
	return 0
}

// toSockaddr converts a dotted IPv4 address; an empty ip means any address.
func toSockaddr(ip string, port int) (unix.Sockaddr, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d", ErrInvalidAddress, port)
	}
	sa := &unix.SockaddrInet4{Port: port}
	if ip == "" {
		return sa, nil
	}
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}
	copy(sa.Addr[:], parsed)
	return sa, nil
}

func joinHostPort(ip string, port int) string {
	return ip + ":" + strconv.Itoa(port)
}

// ParseAddress splits "ip:port" into the arguments of Listen and Connect.
func ParseAddress(address string) (string, int, error) {
	host, p, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("%w: port %q", ErrInvalidAddress, p)
	}
	return host, port, nil
}

// NowMillis returns the current Unix time in milliseconds.
func NowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// TimeToDate formats t as "2006-01-02 15:04:05" in local time.
func TimeToDate(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

// Hexdump renders b in the canonical hex+ASCII layout.
func Hexdump(b []byte) string {
	return hex.Dump(b)
}
