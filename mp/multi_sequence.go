package mp

import (
	"math/bits"

	"go.uber.org/atomic"
)

// multiSequence is shared by several goroutines on its side of the ring.
// Slots are claimed with a CAS on cursor and may be marked done out of
// order; flags records, per slot, the round in which it was last done so
// Available can fold finished slots into one contiguous position.
type multiSequence struct {
	_         [cacheLinePad]byte
	cursor    *atomic.Int64
	_         [cacheLinePad]byte
	available *atomic.Int64
	_         [cacheLinePad]byte
	flags     []atomic.Int64
	mask      int64
	shift     uint
	lead      int64
	barrier   Barrier
}

// MPSequence is a multi-producer sequence.
type MPSequence struct {
	multiSequence
}

// MCSequence is a multi-consumer sequence.
type MCSequence struct {
	multiSequence
}

// NewMPSequence creates a producer sequence for a ring of the given capacity.
func NewMPSequence(capacity int) *MPSequence {
	return &MPSequence{newMultiSequence(capacity, true)}
}

// NewMCSequence creates a consumer sequence for a ring of the given capacity.
func NewMCSequence(capacity int) *MCSequence {
	return &MCSequence{newMultiSequence(capacity, false)}
}

func newMultiSequence(capacity int, producer bool) multiSequence {
	size := ceilPow2(capacity)
	s := multiSequence{
		cursor:    atomic.NewInt64(-1),
		available: atomic.NewInt64(-1),
		flags:     make([]atomic.Int64, size),
		mask:      int64(size - 1),
		shift:     uint(bits.TrailingZeros(uint(size))),
		barrier:   openBarrier{},
	}
	if producer {
		s.lead = int64(size)
	}
	for i := range s.flags {
		s.flags[i].Store(-1)
	}
	return s
}

func (s *multiSequence) Next() int64 {
	current := s.cursor.Load()
	next := current + 1
	if next > s.barrier.Available()+s.lead {
		return Unavailable
	}
	if s.cursor.CAS(current, next) {
		return next
	}
	return Contended
}

func (s *multiSequence) Done(cursor int64) {
	s.flags[cursor&s.mask].Store(cursor >> s.shift)
}

func (s *multiSequence) Available() int64 {
	for {
		from := s.available.Load()
		limit := s.cursor.Load()
		n := from + 1
		for n <= limit && s.flags[n&s.mask].Load() == n>>s.shift {
			n++
		}
		if n-1 == from || s.available.CAS(from, n-1) {
			return n - 1
		}
	}
}

func (s *multiSequence) SetBarrier(barrier Barrier) {
	s.barrier = barrier
}

func (s *MPSequence) NextBully() int64 {
	return nextBully(s)
}

func (s *MPSequence) Then(next Sequence) Sequence {
	next.SetBarrier(s)
	return next
}

func (s *MCSequence) NextBully() int64 {
	return nextBully(s)
}

func (s *MCSequence) Then(next Sequence) Sequence {
	next.SetBarrier(s)
	return next
}

func ceilPow2(n int) int {
	if n < 2 {
		return 2
	}
	return 1 << bits.Len(uint(n-1))
}
