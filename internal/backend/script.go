package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrQueueFull is returned by SendToQueue when the capacity script finds the
// queue already at capacity; it is the only send failure callers retry on.
var ErrQueueFull = errors.New("backend: queue full")

// ErrCannotGetConnection is returned when a backend cannot produce a usable
// connection for a queue key, e.g. Sentinel failover retries exhausted.
var ErrCannotGetConnection = errors.New("backend: cannot get connection")

// capacityScriptSource is the server-side atomic capacity check: reject when
// at capacity, otherwise push and refresh the queue's expiry.
const capacityScriptSource = `
if redis.call('llen', KEYS[1]) >= tonumber(ARGV[2]) then
    return redis.error_reply('queue full')
end
redis.call('rpush', KEYS[1], ARGV[3])
redis.call('expire', KEYS[1], ARGV[1])
`

var capacityScript = redis.NewScript(capacityScriptSource)

// SendToQueue atomically enforces queue capacity, pushes payload onto
// queueKey, and refreshes the queue's TTL to expirySeconds. Returns
// ErrQueueFull when the script reports the queue was at capacity.
func SendToQueue(ctx context.Context, conn *redis.Client, queueKey string, payload []byte, expirySeconds, capacity int64) error {
	err := capacityScript.Run(ctx, conn, []string{queueKey}, expirySeconds, capacity, payload).Err()
	// The script returns no value after a successful push, which go-redis
	// reports as redis.Nil.
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	if strings.Contains(err.Error(), "queue full") {
		return ErrQueueFull
	}
	return fmt.Errorf("backend: send to queue %q: %w", queueKey, err)
}
