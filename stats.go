package iodispatch

import "go.uber.org/atomic"

type DispatcherStats struct {
	Accepted    *atomic.Uint64
	Rejected    *atomic.Uint64
	Dispatched  *atomic.Uint64
	PollErrors  *atomic.Uint64
	disconnects [reasonCount]*atomic.Uint64
}

type StatsSnapshot struct {
	Accepted    uint64
	Rejected    uint64
	Dispatched  uint64
	PollErrors  uint64
	Disconnects map[string]uint64
}

func newDispatcherStats() *DispatcherStats {
	s := &DispatcherStats{
		Accepted:   atomic.NewUint64(0),
		Rejected:   atomic.NewUint64(0),
		Dispatched: atomic.NewUint64(0),
		PollErrors: atomic.NewUint64(0),
	}
	for i := range s.disconnects {
		s.disconnects[i] = atomic.NewUint64(0)
	}
	return s
}

func (s *DispatcherStats) disconnected(reason DisconnectReason) {
	s.disconnects[reason].Inc()
}

func (s *DispatcherStats) Disconnects(reason DisconnectReason) uint64 {
	return s.disconnects[reason].Load()
}

func (s *DispatcherStats) Snapshot() StatsSnapshot {
	snapshot := StatsSnapshot{
		Accepted:    s.Accepted.Load(),
		Rejected:    s.Rejected.Load(),
		Dispatched:  s.Dispatched.Load(),
		PollErrors:  s.PollErrors.Load(),
		Disconnects: make(map[string]uint64, len(s.disconnects)),
	}
	for i, counter := range s.disconnects {
		snapshot.Disconnects[DisconnectReason(i).String()] = counter.Load()
	}
	return snapshot
}
