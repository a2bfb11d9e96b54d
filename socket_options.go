package iodispatch

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// configureAcceptedSocket puts a freshly accepted descriptor into the mode the
// dispatcher needs. Only the non-blocking switch is mandatory; buffer sizes
// are best effort.
func configureAcceptedSocket(fd int, rcvBuf, sndBuf int) error {
	err := unix.SetNonblock(fd, true)
	if err != nil {
		return err
	}
	unix.CloseOnExec(fd)
	if rcvBuf > 0 {
		err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBuf)
		if err != nil {
			log.Error().Msgf("[%d] got error while setting socket options SO_RCVBUF: %+v", fd, err)
		}
	}
	if sndBuf > 0 {
		err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, sndBuf)
		if err != nil {
			log.Error().Msgf("[%d] got error while setting socket options SO_SNDBUF: %+v", fd, err)
		}
	}
	return nil
}
