package taonet

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type readyEvent struct {
	fd int
	ev IOEvent
}

// epollPoller is a level-triggered epoll multiplexer. It is only touched
// from the loop thread, except open and close.
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

func openPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, MaxPollEvents),
	}, nil
}

func toEpoll(ev IOEvent) uint32 {
	var events uint32
	if ev&EventRead != 0 {
		events |= unix.EPOLLIN | unix.EPOLLPRI | unix.EPOLLRDHUP
	}
	if ev&EventWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func fromEpoll(events uint32) IOEvent {
	var ev IOEvent
	if events&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0 {
		ev |= EventRead
	}
	if events&unix.EPOLLOUT != 0 {
		ev |= EventWrite
	}
	if events&unix.EPOLLERR != 0 {
		ev |= EventError
	}
	if events&unix.EPOLLHUP != 0 {
		ev |= EventHup
	}
	return ev
}

// add registers fd with the given interest set.
func (p *epollPoller) add(fd int, ev IOEvent) error {
	event := unix.EpollEvent{Events: toEpoll(ev), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return fmt.Errorf("epoll ctl add fd %d: %w", fd, err)
	}
	return nil
}

// mod replaces the interest set of a registered fd.
func (p *epollPoller) mod(fd int, ev IOEvent) error {
	event := unix.EpollEvent{Events: toEpoll(ev), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &event); err != nil {
		return fmt.Errorf("epoll ctl mod fd %d: %w", fd, err)
	}
	return nil
}

// del removes fd from the watch list.
func (p *epollPoller) del(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del fd %d: %w", fd, err)
	}
	return nil
}

// wait blocks for at most timeoutMs milliseconds, -1 meaning forever, and
// fills out with ready descriptors.
func (p *epollPoller) wait(out []readyEvent, timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		out[i] = readyEvent{fd: int(p.events[i].Fd), ev: fromEpoll(p.events[i].Events)}
	}
	return n, nil
}

// close releases the epoll fd; later calls fail with EBADF.
func (p *epollPoller) close() error {
	err := unix.Close(p.epfd)
	p.epfd = -1
	return err
}
