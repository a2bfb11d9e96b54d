package iodispatch

import (
	"errors"
	"io"

	"github.com/rs/zerolog/log"
)

// EchoHandler writes back whatever it reads.
type EchoHandler struct{}

func (EchoHandler) Handle(context *IOContext, operation ChannelStatus, registrar Registrar) {
	if operation == StatusRead {
		buf := context.ReadBuffer()
		for {
			n, err := context.Channel().Read(buf)
			if n > 0 {
				context.Enqueue(buf[:n])
			}
			if err == ErrWouldBlock {
				break
			}
			if errors.Is(err, io.EOF) {
				registrar.RegisterChannel(context, StatusEOF)
				return
			}
			if err != nil {
				log.Error().Msgf("[%d] read failed: %v", context.Fd(), err)
				registrar.RegisterChannel(context, StatusDisconnected)
				return
			}
		}
	}

	flushed, err := context.Flush()
	if err != nil {
		log.Error().Msgf("[%d] write failed: %v", context.Fd(), err)
		registrar.RegisterChannel(context, StatusDisconnected)
		return
	}
	if flushed {
		registrar.RegisterChannel(context, StatusRead)
	} else {
		registrar.RegisterChannel(context, StatusWrite)
	}
}
