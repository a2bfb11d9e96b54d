package iodispatch

// ChannelStatus is the operation a connection wants next, or the terminal
// state a worker hands back through RegisterChannel.
type ChannelStatus int

const (
	StatusRead ChannelStatus = iota
	StatusWrite
	StatusDisconnected
	StatusEOF
	StatusDone
)

func (s ChannelStatus) String() string {
	switch s {
	case StatusRead:
		return "read"
	case StatusWrite:
		return "write"
	case StatusDisconnected:
		return "disconnected"
	case StatusEOF:
		return "eof"
	case StatusDone:
		return "done"
	}
	return "unknown"
}

type DisconnectReason int

const (
	ReasonIdle DisconnectReason = iota
	ReasonPeer
	ReasonSilly
	ReasonWorker
	ReasonShutdown
	reasonCount
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonIdle:
		return "idle"
	case ReasonPeer:
		return "peer"
	case ReasonSilly:
		return "silly"
	case ReasonWorker:
		return "worker"
	case ReasonShutdown:
		return "shutdown"
	}
	return "unknown"
}
