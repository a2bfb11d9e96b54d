package iodispatch

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Channel is a non-blocking byte stream bound to one descriptor. Read and
// Write return ErrWouldBlock instead of waiting, and Read reports an orderly
// close by the peer as io.EOF.
type Channel interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Fd() int
	Close() error
}

type ChannelFactory interface {
	NewChannel(fd int) (Channel, error)
}

type NetworkChannel struct {
	fd int
}

func NewNetworkChannel(fd int) *NetworkChannel {
	return &NetworkChannel{fd: fd}
}

func (c *NetworkChannel) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := ignoringEINTR(func() (int, error) { return unix.Read(c.fd, p) })
	if err != nil {
		if err == unix.EAGAIN {
			return 0, ErrWouldBlock
		}
		return 0, os.NewSyscallError("read", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (c *NetworkChannel) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := ignoringEINTR(func() (int, error) { return unix.Write(c.fd, p) })
	if err != nil {
		if err == unix.EAGAIN {
			return 0, ErrWouldBlock
		}
		return 0, os.NewSyscallError("write", err)
	}
	return n, nil
}

func (c *NetworkChannel) Fd() int {
	return c.fd
}

func (c *NetworkChannel) Close() error {
	return os.NewSyscallError("close", unix.Close(c.fd))
}

type PlainChannelFactory struct{}

func (PlainChannelFactory) NewChannel(fd int) (Channel, error) {
	return NewNetworkChannel(fd), nil
}

func ignoringEINTR(fn func() (int, error)) (int, error) {
	for {
		n, err := fn()
		if err != unix.EINTR {
			return n, err
		}
	}
}
