package iodispatch

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

type wouldBlockError struct{}

func (wouldBlockError) Error() string   { return "resource temporarily unavailable" }
func (wouldBlockError) Timeout() bool   { return true }
func (wouldBlockError) Temporary() bool { return true }

var errTemporary net.Error = wouldBlockError{}

// fdConn adapts a raw non-blocking descriptor to net.Conn for crypto/tls.
// With a deadline set it waits for readiness like a blocking socket; this
// is only used for the handshake. Without one, reads report a temporary
// error that crypto/tls tolerates, and writes the socket cannot take are
// kept in pending and go out first on the next write.
type fdConn struct {
	fd       int
	pending  []byte
	deadline time.Time
}

func (c *fdConn) Read(p []byte) (int, error) {
	for {
		n, err := ignoringEINTR(func() (int, error) { return unix.Read(c.fd, p) })
		if err == unix.EAGAIN {
			if c.deadline.IsZero() {
				return 0, errTemporary
			}
			if err = c.wait(unix.POLLIN); err != nil {
				return 0, err
			}
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("read", err)
		}
		if n == 0 && len(p) > 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

func (c *fdConn) Write(p []byte) (int, error) {
	if err := c.flush(); err != nil {
		return 0, err
	}
	if len(c.pending) > 0 {
		c.pending = append(c.pending, p...)
		return len(p), nil
	}
	written := 0
	for written < len(p) {
		n, err := ignoringEINTR(func() (int, error) { return unix.Write(c.fd, p[written:]) })
		if n > 0 {
			written += n
		}
		if err == unix.EAGAIN {
			if c.deadline.IsZero() {
				c.pending = append(c.pending, p[written:]...)
				return len(p), nil
			}
			if err = c.wait(unix.POLLOUT); err != nil {
				return written, err
			}
			continue
		}
		if err != nil {
			return written, os.NewSyscallError("write", err)
		}
	}
	return written, nil
}

func (c *fdConn) flush() error {
	for len(c.pending) > 0 {
		n, err := ignoringEINTR(func() (int, error) { return unix.Write(c.fd, c.pending) })
		if n > 0 {
			c.pending = c.pending[n:]
		}
		if err == unix.EAGAIN {
			if c.deadline.IsZero() {
				return nil
			}
			if err = c.wait(unix.POLLOUT); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return os.NewSyscallError("write", err)
		}
	}
	c.pending = nil
	return nil
}

func (c *fdConn) wait(events int16) error {
	for {
		remaining := time.Until(c.deadline)
		if remaining <= 0 {
			return ErrHandshakeTimeout
		}
		ms := int(remaining / time.Millisecond)
		if ms == 0 {
			ms = 1
		}
		n, err := unix.Poll([]unix.PollFd{{Fd: int32(c.fd), Events: events}}, ms)
		if err == unix.EINTR || (err == nil && n == 0) {
			continue
		}
		if err != nil {
			return os.NewSyscallError("poll", err)
		}
		return nil
	}
}

func (c *fdConn) Close() error {
	return os.NewSyscallError("close", unix.Close(c.fd))
}

func (c *fdConn) LocalAddr() net.Addr {
	sa, err := unix.Getsockname(c.fd)
	if err != nil {
		return &net.TCPAddr{}
	}
	return toNetAddr(sa)
}

func (c *fdConn) RemoteAddr() net.Addr {
	sa, err := unix.Getpeername(c.fd)
	if err != nil {
		return &net.TCPAddr{}
	}
	return toNetAddr(sa)
}

func (c *fdConn) SetDeadline(time.Time) error      { return nil }
func (c *fdConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fdConn) SetWriteDeadline(time.Time) error { return nil }

func toNetAddr(sa unix.Sockaddr) net.Addr {
	if addr, ok := sa.(*unix.SockaddrUnix); ok {
		return &net.UnixAddr{Name: addr.Name, Net: "unix"}
	}
	if addr := sockaddrToTCPAddr(sa); addr != nil {
		return addr
	}
	return &net.TCPAddr{}
}

// SecureChannel is a TLS server session over a raw descriptor. The handshake
// runs on first use and may wait up to the handshake timeout; after that the
// channel behaves like NetworkChannel.
type SecureChannel struct {
	conn             *fdConn
	tls              *tls.Conn
	handshakeTimeout time.Duration
	handshaken       bool
}

func newSecureChannel(fd int, config *tls.Config, handshakeTimeout time.Duration) *SecureChannel {
	conn := &fdConn{fd: fd}
	return &SecureChannel{
		conn:             conn,
		tls:              tls.Server(conn, config),
		handshakeTimeout: handshakeTimeout,
	}
}

func (c *SecureChannel) handshake() error {
	if c.handshaken {
		return nil
	}
	c.conn.deadline = time.Now().Add(c.handshakeTimeout)
	err := c.tls.Handshake()
	c.conn.deadline = time.Time{}
	if err != nil {
		return err
	}
	c.handshaken = true
	return nil
}

func (c *SecureChannel) Read(p []byte) (int, error) {
	if err := c.handshake(); err != nil {
		return 0, err
	}
	n, err := c.tls.Read(p)
	if n > 0 {
		return n, nil
	}
	if errors.Is(err, errTemporary) {
		return 0, ErrWouldBlock
	}
	return n, err
}

func (c *SecureChannel) Write(p []byte) (int, error) {
	if err := c.handshake(); err != nil {
		return 0, err
	}
	if err := c.conn.flush(); err != nil {
		return 0, err
	}
	if len(c.conn.pending) > 0 {
		return 0, ErrWouldBlock
	}
	return c.tls.Write(p)
}

func (c *SecureChannel) Fd() int {
	return c.conn.fd
}

func (c *SecureChannel) Close() error {
	return c.tls.Close()
}
