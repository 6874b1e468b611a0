// Package backend abstracts "which Redis connection should this queue key
// talk to?" for the gateway transport. Two variants share the ring-selection
// and capacity-script logic: Standard (a static list of masters) and
// Sentinel (Sentinel-discovered masters with failover retries).
package backend

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// ResponseQueueMarker appears only in per-client, per-thread reply queue
// names; its presence routes a queue key to the consistent-hash path instead
// of round-robin.
const ResponseQueueMarker = "!"

// QueueKeyPrefix is prefixed onto every queue name before it is used as a
// Redis key.
const QueueKeyPrefix = "pysoa:"

// Backend selects a Redis connection for a queue key. Queue capacity is
// enforced separately, by SendToQueue run against the returned connection.
type Backend interface {
	// GetConnection returns the connection that should be used for
	// queueKey: consistent-hashed for response queues, round-robin for
	// everything else.
	GetConnection(ctx context.Context, queueKey string) (*redis.Client, error)

	// Close releases all underlying connections.
	Close() error
}
