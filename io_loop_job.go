package iodispatch

import (
	"iodispatch/mp"
)

// Handler processes one ready connection. The handler owns context for the
// duration of the call and must end by handing it back through registrar,
// either with the next interest or with a terminal status.
type Handler interface {
	Handle(context *IOContext, operation ChannelStatus, registrar Registrar)
}

type HandlerFunc func(context *IOContext, operation ChannelStatus, registrar Registrar)

func (f HandlerFunc) Handle(context *IOContext, operation ChannelStatus, registrar Registrar) {
	f(context, operation, registrar)
}

// IOLoopJob drains the I/O ring. Any number of workers may run the same job;
// the consumer sequence hands each event to exactly one of them.
type IOLoopJob struct {
	queue     *mp.RingQueue[*IOEvent]
	sequence  *mp.MCSequence
	handler   Handler
	registrar Registrar
}

func NewIOLoopJob(queue *mp.RingQueue[*IOEvent], sequence *mp.MCSequence, handler Handler, registrar Registrar) *IOLoopJob {
	return &IOLoopJob{
		queue:     queue,
		sequence:  sequence,
		handler:   handler,
		registrar: registrar,
	}
}

func (j *IOLoopJob) Run() bool {
	useful := false
	for {
		cursor := j.sequence.Next()
		if cursor == mp.Contended {
			continue
		}
		if cursor < 0 {
			return useful
		}
		evt := j.queue.Get(cursor)
		context, operation := evt.Context, evt.Operation
		evt.Context = nil
		j.sequence.Done(cursor)
		j.handler.Handle(context, operation, j.registrar)
		useful = true
	}
}

// Drain hands every event left on the ring back to registrar as done, so the
// dispatcher closes those connections on shutdown. Workers must be halted.
func (j *IOLoopJob) Drain() int {
	drained := 0
	for {
		cursor := j.sequence.Next()
		if cursor == mp.Contended {
			continue
		}
		if cursor < 0 {
			return drained
		}
		evt := j.queue.Get(cursor)
		context := evt.Context
		evt.Context = nil
		j.sequence.Done(cursor)
		j.registrar.RegisterChannel(context, StatusDone)
		drained++
	}
}
