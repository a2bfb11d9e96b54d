package iodispatch

import (
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLPRI
	writeEvents = unix.EPOLLOUT
	errorEvents = unix.EPOLLERR | unix.EPOLLHUP | unix.EPOLLRDHUP
)

// epollPoller keeps the kernel interest list in step with the sets handed to
// Poll: descriptors are added, modified or deleted so that epoll watches
// exactly what the caller asked for. No EPOLLET, so readiness is reported on
// every wait just like poll(2).
type epollPoller struct {
	fd         int
	events     []unix.EpollEvent
	registered map[int]uint32
	wanted     map[int]uint32
}

func newEpollPoller() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &epollPoller{
		fd:         fd,
		events:     make([]unix.EpollEvent, 64),
		registered: make(map[int]uint32),
		wanted:     make(map[int]uint32),
	}, nil
}

func (p *epollPoller) Poll(reads, writes *FDSet, timeoutMs int) (int, error) {
	clear(p.wanted)
	for i, n := 0, reads.Count(); i < n; i++ {
		p.wanted[reads.Get(i)] |= readEvents
	}
	for i, n := 0, writes.Count(); i < n; i++ {
		p.wanted[writes.Get(i)] |= writeEvents
	}
	p.syncInterest()

	if len(p.wanted) > len(p.events) {
		p.events = make([]unix.EpollEvent, len(p.wanted))
	}
	n, err := unix.EpollWait(p.fd, p.events, timeoutMs)
	if err != nil && err != unix.EINTR {
		return 0, os.NewSyscallError("epoll_wait", err)
	}
	reads.Reset()
	writes.Reset()
	ready := 0
	for i := 0; i < n; i++ {
		event := p.events[i]
		fd := int(event.Fd)
		wanted := p.wanted[fd]
		if wanted&readEvents != 0 && event.Events&(readEvents|errorEvents) != 0 {
			reads.Add(fd)
			ready++
		}
		if wanted&writeEvents != 0 && event.Events&(writeEvents|errorEvents) != 0 {
			writes.Add(fd)
			ready++
		}
	}
	return ready, nil
}

func (p *epollPoller) syncInterest() {
	for fd, events := range p.wanted {
		current, ok := p.registered[fd]
		if ok && current == events {
			continue
		}
		var err error
		if ok {
			err = p.modify(fd, events)
		} else {
			err = p.add(fd, events)
		}
		if err != nil {
			log.Error().Msgf("[%d] error occurs while attaching fd to epoll: %v", fd, err)
			continue
		}
		p.registered[fd] = events
	}
	for fd := range p.registered {
		if _, ok := p.wanted[fd]; !ok {
			p.delete(fd)
			delete(p.registered, fd)
		}
	}
}

// add and modify fall back to each other because a descriptor closed by its
// owner leaves the interest list silently and its number may come back from
// accept.
func (p *epollPoller) add(fd int, events uint32) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
	if err == unix.EEXIST {
		err = unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
	}
	if err != nil {
		return os.NewSyscallError("epoll_ctl add", err)
	}
	return nil
}

func (p *epollPoller) modify(fd int, events uint32) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
	if err == unix.ENOENT {
		err = unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
	}
	if err != nil {
		return os.NewSyscallError("epoll_ctl mod", err)
	}
	return nil
}

func (p *epollPoller) delete(fd int) {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		if log.Debug().Enabled() {
			log.Debug().Msgf("[%d] error occurs while detaching fd from epoll: %v", fd, err)
		}
	}
}

func (p *epollPoller) Close() error {
	return os.NewSyscallError("close", unix.Close(p.fd))
}
