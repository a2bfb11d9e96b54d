//go:build !linux

package iodispatch

func newEpollPoller() (Poller, error) {
	return nil, ErrPollerNotSupported
}
