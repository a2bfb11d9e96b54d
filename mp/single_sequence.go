package mp

import "go.uber.org/atomic"

// singleSequence is owned by exactly one goroutine on its side of the ring.
// It is the producer (SP) or consumer (SC) depending on the lead it is
// allowed over its barrier.
type singleSequence struct {
	_       [cacheLinePad]byte
	value   *atomic.Int64
	_       [cacheLinePad]byte
	limit   int64
	lead    int64
	barrier Barrier
}

// SPSequence is a single-producer sequence.
type SPSequence struct {
	singleSequence
}

// SCSequence is a single-consumer sequence.
type SCSequence struct {
	singleSequence
}

// NewSPSequence creates a producer sequence for a ring of the given capacity.
func NewSPSequence(capacity int) *SPSequence {
	return &SPSequence{newSingleSequence(int64(ceilPow2(capacity)))}
}

// NewSCSequence creates a consumer sequence.
func NewSCSequence() *SCSequence {
	return &SCSequence{newSingleSequence(0)}
}

func newSingleSequence(lead int64) singleSequence {
	return singleSequence{
		value:   atomic.NewInt64(-1),
		limit:   -1,
		lead:    lead,
		barrier: openBarrier{},
	}
}

func (s *singleSequence) Available() int64 {
	return s.value.Load()
}

func (s *singleSequence) Next() int64 {
	next := s.value.Load() + 1
	if next > s.limit {
		s.limit = s.barrier.Available() + s.lead
		if next > s.limit {
			return Unavailable
		}
	}
	return next
}

func (s *singleSequence) Done(cursor int64) {
	s.value.Store(cursor)
}

func (s *singleSequence) SetBarrier(barrier Barrier) {
	s.barrier = barrier
	s.limit = -1
}

func (s *SPSequence) NextBully() int64 {
	return nextBully(s)
}

func (s *SPSequence) Then(next Sequence) Sequence {
	next.SetBarrier(s)
	return next
}

func (s *SCSequence) NextBully() int64 {
	return nextBully(s)
}

func (s *SCSequence) Then(next Sequence) Sequence {
	next.SetBarrier(s)
	return next
}
