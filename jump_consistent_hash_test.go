package iodispatch

import (
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/segmentio/kafka-go"
)

func BenchmarkJumpHash(b *testing.B) {
	const buckets = 20
	key := uint64(rand.Int63n(math.MaxInt64))
	for i := 0; i < b.N; i++ {
		JumpHash(key+uint64(i), buckets)
	}
}

func TestJumpHash(t *testing.T) {
	const buckets = 20
	for i := 0; i < 100000; i++ {
		key := rand.Int63n(math.MaxInt64)
		hash := JumpHash(uint64(key), buckets)
		if hash < 0 || hash >= buckets {
			t.Fatalf("Hash: %d", hash)
		}
	}
}

func TestJumpHashDistribution(t *testing.T) {
	const buckets = 10
	const keys = 1000000
	var counters [buckets]int
	for i := 0; i < keys; i++ {
		counters[JumpHash(uint64(rand.Int63n(math.MaxInt64)), buckets)]++
	}
	for bucket, count := range counters {
		t.Logf("%d: %d", bucket, count)
		if count < keys/buckets*9/10 || count > keys/buckets*11/10 {
			t.Fatalf("bucket %d is off balance: %d", bucket, count)
		}
	}
}

func TestJumpHashMovesFewKeys(t *testing.T) {
	moved := 0
	const keys = 100000
	for i := 0; i < keys; i++ {
		key := uint64(rand.Int63n(math.MaxInt64))
		if JumpHash(key, 10) != JumpHash(key, 11) {
			moved++
		}
	}
	// One key in eleven should move.
	if moved > keys/11*12/10 {
		t.Fatalf("%d of %d keys moved", moved, keys)
	}
}

func TestJumpHashBalancerIsSticky(t *testing.T) {
	partitions := []int{3, 5, 8, 13}
	balancer := JumpHashBalancer{}
	for fd := 0; fd < 100; fd++ {
		msg := kafka.Message{Key: []byte(strconv.Itoa(fd))}
		first := balancer.Balance(msg, partitions...)
		if first != 3 && first != 5 && first != 8 && first != 13 {
			t.Fatalf("fd %d: partition %d is not offered", fd, first)
		}
		if again := balancer.Balance(msg, partitions...); again != first {
			t.Fatalf("fd %d: moved from %d to %d", fd, first, again)
		}
	}
}
