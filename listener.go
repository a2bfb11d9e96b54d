package iodispatch

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listenTCP opens a non-blocking listening socket and returns its descriptor
// together with the address it is actually bound to, which matters when port
// is 0.
func listenTCP(ip string, port int, backlog int) (int, *net.TCPAddr, error) {
	family, sa, err := toSockaddr(ip, port)
	if err != nil {
		return -1, nil, err
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)
	fail := func(call string, err error) (int, *net.TCPAddr, error) {
		_ = unix.Close(fd)
		return -1, nil, os.NewSyscallError(call, err)
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		return fail("setnonblock", err)
	}
	if err = unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err = unix.Listen(fd, backlog); err != nil {
		return fail("listen", err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}
	return fd, sockaddrToTCPAddr(bound), nil
}

func toSockaddr(ip string, port int) (int, unix.Sockaddr, error) {
	if ip == "" {
		ip = "0.0.0.0"
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return 0, nil, fmt.Errorf("%w: bad bind address %q", errBadConfig, ip)
	}
	if v4 := parsed.To4(); v4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], v4)
		return unix.AF_INET, sa, nil
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], parsed.To16())
	return unix.AF_INET6, sa, nil
}

func sockaddrToTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append(net.IP(nil), addr.Addr[:]...), Port: addr.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append(net.IP(nil), addr.Addr[:]...), Port: addr.Port}
	}
	return nil
}
