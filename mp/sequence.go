// Package mp moves work between goroutines through fixed rings of reusable slots.
//
// A ring is driven by a pair of sequences: a producer sequence that hands out
// slots to writers and a consumer sequence that hands them to readers. Each
// sequence gates on the other, so a producer can never lap a consumer and a
// consumer never reads past the last published slot.
//
//	pub := mp.NewMPSequence(queue.Capacity())
//	sub := mp.NewSCSequence()
//	pub.Then(sub).Then(pub)
package mp

import "runtime"

const (
	// Unavailable is returned by Next when there is nothing to claim.
	Unavailable = int64(-1)
	// Contended is returned by Next when another writer won the slot; retry.
	Contended = int64(-2)
)

type Barrier interface {
	// Available returns the highest cursor that the owner of this barrier
	// has finished with. Every cursor at or below it is done.
	Available() int64
}

type Sequence interface {
	Barrier
	Next() int64
	NextBully() int64
	Done(cursor int64)
	SetBarrier(barrier Barrier)
	Then(next Sequence) Sequence
}

const cacheLinePad = 64

func nextBully(s Sequence) int64 {
	for {
		cursor := s.Next()
		if cursor > -1 {
			return cursor
		}
		if cursor == Unavailable {
			runtime.Gosched()
		}
	}
}

type openBarrier struct{}

func (openBarrier) Available() int64 {
	return -1
}
