package iodispatch

import (
	"fmt"
	"net"
	"os"

	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"iodispatch/mp"
)

const (
	fdRead  = 1
	fdWrite = 2
)

// IOEvent is a ring slot: a connection and the operation it is ready for
// (on the I/O ring) or wants next (on the interest ring).
type IOEvent struct {
	Context   *IOContext
	Operation ChannelStatus
}

// NewIOEvent is the slot factory for both rings.
func NewIOEvent() *IOEvent {
	return &IOEvent{}
}

// Registrar is what workers use to hand a connection back to the dispatcher.
type Registrar interface {
	RegisterChannel(context *IOContext, operation ChannelStatus)
}

// IODispatcherConfig carries the configuration sections the dispatcher reads
// plus the collaborators tests and callers may swap in.
type IODispatcherConfig struct {
	Server     ServerConfig
	Dispatcher DispatcherConfig
	Buffers    BufferConfig
	// Optional collaborators. Nil means poll(2) or the configured poller,
	// the wall clock, plain channels and no event routing.
	Poller   Poller
	Clock    Clock
	Contexts *ContextFactory
	Router   EventRouter
}

// IODispatcher is the reactor. It owns the listening socket, the readiness
// sets and the pending table, and must only ever be driven by one goroutine
// at a time: Run guarantees that, RunSerially does not.
type IODispatcher struct {
	*SynchronizedJob
	listenFd            int
	addr                *net.TCPAddr
	readSet             *FDSet
	writeSet            *FDSet
	ioQueue             *mp.RingQueue[*IOEvent]
	ioSequence          mp.Sequence
	interestQueue       *mp.RingQueue[*IOEvent]
	interestPubSequence *mp.MPSequence
	interestSubSequence *mp.SCSequence
	poller              Poller
	clock               Clock
	contexts            *ContextFactory
	router              EventRouter
	timeout             int64
	pollTimeout         int
	maxConnections      int64
	rcvBuf              int
	sndBuf              int
	pending             *PendingTable
	ready               map[int]int
	connectionCount     *atomic.Int64
	stats               *DispatcherStats
	closed              bool
}

// NewIODispatcher binds the listening socket and wires the interest ring.
// ioSequence is the producer side of ioQueue; the caller links it to the
// consumer sequence its workers drain. ioQueue must hold at least one event
// per allowed connection, otherwise a dispatcher sharing its goroutine with
// the ring consumer could wait on itself.
func NewIODispatcher(config IODispatcherConfig, ioQueue *mp.RingQueue[*IOEvent], ioSequence mp.Sequence) (*IODispatcher, error) {
	if ioQueue.Capacity() < config.Dispatcher.MaxConnections {
		return nil, fmt.Errorf("%w: i/o ring of %d slots is below max connections %d",
			errBadConfig, ioQueue.Capacity(), config.Dispatcher.MaxConnections)
	}
	poller := config.Poller
	if poller == nil {
		var err error
		if poller, err = NewPoller(config.Dispatcher.Poller); err != nil {
			return nil, err
		}
	}
	clock := config.Clock
	if clock == nil {
		clock = SystemClock
	}
	contexts := config.Contexts
	if contexts == nil {
		contexts = NewContextFactory(PlainChannelFactory{}, config.Buffers)
	}
	router := config.Router
	if router == nil {
		router = nopEventRouter{}
	}

	listenFd, addr, err := listenTCP(config.Server.IP, config.Server.Port, config.Server.Backlog)
	if err != nil {
		_ = poller.Close()
		return nil, fmt.Errorf("%w %s:%d: %w", ErrBind, config.Server.IP, config.Server.Port, err)
	}

	// Each connection has at most one interest event in flight, so sizing the
	// interest ring for every connection means RegisterChannel never waits.
	interestCapacity := ioQueue.Capacity()
	if config.Dispatcher.MaxConnections > interestCapacity {
		interestCapacity = config.Dispatcher.MaxConnections
	}
	interestQueue := mp.NewRingQueue(interestCapacity, NewIOEvent)
	interestPubSequence := mp.NewMPSequence(interestQueue.Capacity())
	interestSubSequence := mp.NewSCSequence()
	interestPubSequence.Then(interestSubSequence).Then(interestPubSequence)

	d := &IODispatcher{
		listenFd:            listenFd,
		addr:                addr,
		readSet:             NewFDSet(config.Dispatcher.Capacity),
		writeSet:            NewFDSet(config.Dispatcher.Capacity),
		ioQueue:             ioQueue,
		ioSequence:          ioSequence,
		interestQueue:       interestQueue,
		interestPubSequence: interestPubSequence,
		interestSubSequence: interestSubSequence,
		poller:              poller,
		clock:               clock,
		contexts:            contexts,
		router:              router,
		timeout:             config.Dispatcher.TimeoutMs,
		pollTimeout:         config.Dispatcher.PollTimeoutMs,
		maxConnections:      int64(config.Dispatcher.MaxConnections),
		rcvBuf:              config.Buffers.SocketRcvBuf,
		sndBuf:              config.Buffers.SocketSndBuf,
		pending:             NewPendingTable(config.Dispatcher.Capacity),
		ready:               make(map[int]int, config.Dispatcher.Capacity),
		connectionCount:     atomic.NewInt64(0),
		stats:               newDispatcherStats(),
	}
	d.SynchronizedJob = NewSynchronizedJob(d)
	d.pending.Append(clock.Millis(), listenFd, StatusRead, nil)
	d.readSet.Add(listenFd)
	log.Info().Msgf("listening on %s [fd=%d]", addr, listenFd)
	return d, nil
}

func (d *IODispatcher) Addr() *net.TCPAddr {
	return d.addr
}

func (d *IODispatcher) ConnectionCount() int64 {
	return d.connectionCount.Load()
}

func (d *IODispatcher) Stats() *DispatcherStats {
	return d.stats
}

// RegisterChannel hands context back to the dispatcher. The caller gives up
// ownership: it must not touch context after this call.
func (d *IODispatcher) RegisterChannel(context *IOContext, operation ChannelStatus) {
	cursor := d.interestPubSequence.NextBully()
	evt := d.interestQueue.Get(cursor)
	evt.Context = context
	evt.Operation = operation
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%d] re-queuing %s", context.Fd(), operation)
	}
	d.interestPubSequence.Done(cursor)
}

// RunSerially performs one poll cycle and reports whether it did any work.
func (d *IODispatcher) RunSerially() bool {
	count, err := d.poller.Poll(d.readSet, d.writeSet, d.pollTimeout)
	if err != nil {
		d.stats.PollErrors.Inc()
		log.Error().Msgf("error in poll(): %v", err)
		return false
	}

	timestamp := d.clock.Millis()
	useful := false
	clear(d.ready)

	if count > 0 {
		d.queryFdSets(timestamp)
		useful = true
	}

	useful = d.processRegistrations(timestamp) || useful

	d.readSet.Reset()
	d.writeSet.Reset()
	deadline := timestamp - d.timeout
	for i, n := 0, d.pending.Size(); i < n; {
		fd := d.pending.Fd(i)
		op, fired := d.ready[fd]

		if !fired {
			if d.pending.Timestamp(i) < deadline && fd != d.listenFd {
				d.disconnect(d.pending.Context(i), ReasonIdle, timestamp)
				d.pending.DeleteRow(i)
				n--
				useful = true
				continue
			}

			switch operation := d.pending.Operation(i); operation {
			case StatusRead:
				d.readSet.Add(fd)
				i++
			case StatusWrite:
				d.writeSet.Add(fd)
				i++
			default:
				d.disconnect(d.pending.Context(i), terminalReason(operation), timestamp)
				d.pending.DeleteRow(i)
				n--
				useful = true
			}
			continue
		}

		context := d.pending.Context(i)
		if op&fdRead != 0 {
			d.publish(context, StatusRead)
		}
		if op&fdWrite != 0 {
			d.publish(context, StatusWrite)
		}
		d.pending.DeleteRow(i)
		n--
	}
	return useful
}

// Close disconnects everything still owned by the dispatcher, including
// connections workers have already handed back, and releases the listener.
// Workers must be stopped first. Contexts still waiting on the I/O ring are
// not seen here: drain them back with IOLoopJob.Drain before calling Close.
func (d *IODispatcher) Close() {
	if d.closed {
		return
	}
	d.closed = true
	timestamp := d.clock.Millis()
	d.processRegistrations(timestamp)
	for i, n := 0, d.pending.Size(); i < n; i++ {
		if context := d.pending.Context(i); context != nil {
			d.disconnect(context, ReasonShutdown, timestamp)
		}
	}
	d.pending.Clear()
	if err := unix.Close(d.listenFd); err != nil {
		log.Error().Msgf("got error while closing listener: %v", os.NewSyscallError("close", err))
	}
	d.readSet.Close()
	d.writeSet.Close()
	if err := d.poller.Close(); err != nil {
		log.Error().Msgf("got error while closing poller: %v", err)
	}
}

func (d *IODispatcher) queryFdSets(timestamp int64) {
	for i, n := 0, d.readSet.Count(); i < n; i++ {
		fd := d.readSet.Get(i)
		if fd == d.listenFd {
			d.accept(timestamp)
		} else {
			d.ready[fd] = fdRead
		}
	}
	for i, n := 0, d.writeSet.Count(); i < n; i++ {
		d.ready[d.writeSet.Get(i)] |= fdWrite
	}
}

func (d *IODispatcher) accept(timestamp int64) {
	for {
		fd, _, err := unix.Accept(d.listenFd)
		if err != nil {
			if err == unix.EINTR || err == unix.ECONNABORTED {
				continue
			}
			if err != unix.EAGAIN {
				log.Error().Msgf("error in accept(): %v", err)
			}
			return
		}

		log.Info().Msgf("[%d] connected", fd)

		if err = configureAcceptedSocket(fd, d.rcvBuf, d.sndBuf); err != nil {
			log.Error().Msgf("[%d] cannot make fd non-blocking: %v", fd, err)
			closeFd(fd)
			continue
		}

		count := d.connectionCount.Inc()
		if count > d.maxConnections {
			log.Info().Msgf("[%d] too many connections, kicking out", fd)
			closeFd(fd)
			count = d.connectionCount.Dec()
			d.stats.Rejected.Inc()
			d.route(genConnEvent(EventRejected, timestamp, fd, count))
			return
		}

		context, err := d.contexts.NewContext(fd, timestamp)
		if err != nil {
			log.Error().Msgf("[%d] cannot create channel: %v", fd, err)
			closeFd(fd)
			d.connectionCount.Dec()
			continue
		}
		d.stats.Accepted.Inc()
		d.pending.Append(timestamp, fd, StatusRead, context)
		d.route(genConnEvent(EventConnected, timestamp, fd, count))
	}
}

func (d *IODispatcher) processRegistrations(timestamp int64) bool {
	useful := false
	for {
		cursor := d.interestSubSequence.Next()
		if cursor < 0 {
			return useful
		}
		useful = true
		evt := d.interestQueue.Get(cursor)
		context, operation := evt.Context, evt.Operation
		evt.Context = nil
		d.interestSubSequence.Done(cursor)

		context.lastActivity = timestamp
		context.status = operation
		d.pending.Append(timestamp, context.Fd(), operation, context)
	}
}

func (d *IODispatcher) publish(context *IOContext, operation ChannelStatus) {
	cursor := d.ioSequence.NextBully()
	evt := d.ioQueue.Get(cursor)
	evt.Context = context
	evt.Operation = operation
	d.ioSequence.Done(cursor)
	d.stats.Dispatched.Inc()
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%d] queuing %s", context.Fd(), operation)
	}
}

func (d *IODispatcher) disconnect(context *IOContext, reason DisconnectReason, timestamp int64) {
	fd := context.Fd()
	log.Info().Msgf("[%d] disconnected: %s", fd, reason)
	if err := context.Close(); err != nil {
		log.Error().Msgf("[%d] got error while closing connection: %v", fd, err)
	}
	count := d.connectionCount.Dec()
	d.stats.disconnected(reason)
	d.route(genDisconnectEvent(timestamp, fd, reason, count))
}

func (d *IODispatcher) route(event Event) {
	if err := d.router.Process(event.Id, &event); err != nil {
		log.Error().Msgf("[%d] got error while routing %s event: %v", event.Fd, event.Type, err)
	}
}

func terminalReason(operation ChannelStatus) DisconnectReason {
	switch operation {
	case StatusEOF:
		return ReasonPeer
	case StatusDone:
		return ReasonWorker
	}
	return ReasonSilly
}

func closeFd(fd int) {
	if err := unix.Close(fd); err != nil {
		log.Error().Msgf("[%d] got error while closing fd: %v", fd, err)
	}
}
