package iodispatch

import "fmt"

const (
	PollerPoll  = "poll"
	PollerEpoll = "epoll"
)

// Poller waits for level-triggered readiness. Poll watches every descriptor
// in reads for input and every descriptor in writes for output, then
// rewrites both sets to hold only the ready descriptors and returns how many
// there are. A descriptor stays ready on every call until the condition is
// consumed. On error both sets are left as they were.
type Poller interface {
	Poll(reads, writes *FDSet, timeoutMs int) (int, error)
	Close() error
}

func NewPoller(kind string) (Poller, error) {
	switch kind {
	case "", PollerPoll:
		return newPollPoller(), nil
	case PollerEpoll:
		return newEpollPoller()
	}
	return nil, fmt.Errorf("%w: unknown poller %q", errBadConfig, kind)
}
