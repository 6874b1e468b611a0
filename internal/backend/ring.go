package backend

import (
	"hash/crc32"
	"strings"
	"sync/atomic"
)

// Ring maps queue keys onto shard indexes: response queues (those containing
// ResponseQueueMarker) hash consistently so every reply for a given queue
// lands on the same shard; everything else round-robins, distributing
// inbound service-queue traffic randomly across the ring.
type Ring struct {
	size   uint32
	cursor uint32 // atomic round-robin cursor
}

// NewRing builds a ring over size shards. size must be >= 1.
func NewRing(size int) *Ring {
	if size < 1 {
		panic("backend: ring size must be >= 1")
	}
	return &Ring{size: uint32(size)}
}

// Size returns the number of shards in the ring.
func (r *Ring) Size() int { return int(r.size) }

// Index returns the shard index for queueKey.
func (r *Ring) Index(queueKey string) int {
	if strings.Contains(queueKey, ResponseQueueMarker) {
		return r.consistentHashIndex(queueKey)
	}
	return r.nextIndex()
}

func (r *Ring) nextIndex() int {
	n := atomic.AddUint32(&r.cursor, 1) - 1
	return int(n % r.size)
}

// consistentHashIndex maps key to a bucket in [0, 4096) via CRC32, then down
// to one of the ring's shards. Buckets are fixed regardless of ring size so
// behavior is stable as the ring is resized.
func (r *Ring) consistentHashIndex(key string) int {
	bucket := crc32.ChecksumIEEE([]byte(key)) & 0xfff
	divisor := 4096.0 / float64(r.size)
	return int(float64(bucket) / divisor)
}
