package iodispatch

import (
	"hash/fnv"

	"github.com/segmentio/kafka-go"
)

const MagicNumber = uint64(2862933555777941757)

// JumpHash maps key onto one of numBuckets buckets. Growing the bucket count
// from n to n+1 moves only 1/(n+1) of the keys.
func JumpHash(key uint64, numBuckets int) int {
	var bucket int64 = -1 // bucket number before the previous jump
	var jump int64 = 0    // bucket number before the current jump
	for jump < int64(numBuckets) {
		bucket = jump
		key = key*MagicNumber + 1
		jump = int64(float64(bucket+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}
	return int(bucket)
}

// JumpHashBalancer keeps every message with the same key on the same
// partition, and keeps most keys in place when partitions are added.
type JumpHashBalancer struct{}

func (JumpHashBalancer) Balance(msg kafka.Message, partitions ...int) int {
	if len(partitions) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(msg.Key)
	return partitions[JumpHash(h.Sum64(), len(partitions))]
}
