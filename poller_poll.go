package iodispatch

import (
	"os"

	"golang.org/x/sys/unix"
)

const (
	pollReadReady  = unix.POLLIN | unix.POLLPRI | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
	pollWriteReady = unix.POLLOUT | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
)

type pollPoller struct {
	pfds []unix.PollFd
}

func newPollPoller() *pollPoller {
	return &pollPoller{}
}

func (p *pollPoller) Poll(reads, writes *FDSet, timeoutMs int) (int, error) {
	p.pfds = p.pfds[:0]
	readCount := reads.Count()
	for i := 0; i < readCount; i++ {
		p.pfds = append(p.pfds, unix.PollFd{Fd: int32(reads.Get(i)), Events: unix.POLLIN})
	}
	for i, n := 0, writes.Count(); i < n; i++ {
		p.pfds = append(p.pfds, unix.PollFd{Fd: int32(writes.Get(i)), Events: unix.POLLOUT})
	}

	n, err := unix.Poll(p.pfds, timeoutMs)
	if err != nil && err != unix.EINTR {
		return 0, os.NewSyscallError("poll", err)
	}
	reads.Reset()
	writes.Reset()
	if n <= 0 {
		return 0, nil
	}

	ready := 0
	for i := range p.pfds {
		pfd := &p.pfds[i]
		if pfd.Revents == 0 {
			continue
		}
		if i < readCount {
			if pfd.Revents&pollReadReady != 0 {
				reads.Add(int(pfd.Fd))
				ready++
			}
		} else if pfd.Revents&pollWriteReady != 0 {
			writes.Add(int(pfd.Fd))
			ready++
		}
	}
	return ready, nil
}

func (p *pollPoller) Close() error {
	p.pfds = nil
	return nil
}
