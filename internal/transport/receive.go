package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaygate/transport/internal/backend"
	"github.com/relaygate/transport/internal/envelope"
	"github.com/relaygate/transport/internal/metrics"
	"github.com/relaygate/transport/internal/serializer"
)

// Receive blocks (up to timeoutOverride or the configured default) waiting
// for one message on queueName, reassembling it from chunks if needed, and
// returns its request_id, meta (with serializer/protocol_version injected),
// and body. An expired message is discarded and reported as
// ErrReceiveTimeout rather than delivered.
func (c *Core) Receive(
	ctx context.Context,
	queueName string,
	timeoutOverride *time.Duration,
) (*int64, map[string]any, any, error) {
	key := backend.QueueKeyPrefix + queueName
	timeout := c.receiveTimeout
	if timeoutOverride != nil {
		timeout = *timeoutOverride
	}

	conn, err := c.backend.GetConnection(ctx, key)
	if err != nil {
		return nil, nil, nil, &ReceiveError{Queue: queueName, Cause: err}
	}

	env, err := c.blpopEnvelope(ctx, conn, key, queueName, timeout)
	if err != nil {
		return nil, nil, nil, err
	}

	payload := env.Payload
	version := env.ProtocolVersion
	contentType := env.Header.ContentType

	if env.IsChunk() {
		if c.role == RoleServer {
			return nil, nil, nil, invalidMessage("requests may not be chunked")
		}
		if env.Header.ChunkID != 1 {
			return nil, nil, nil, invalidMessage(
				"missing chunk ID: first chunk out of order, expected chunk ID 1, got %d", env.Header.ChunkID,
			)
		}

		reassembleStart := time.Now()
		payload, err = c.reassembleChunks(ctx, conn, key, queueName, timeout, env)
		metrics.ChunkReassemblyDuration.Observe(time.Since(reassembleStart).Seconds())
		if err != nil {
			return nil, nil, nil, err
		}
	}

	kind, err := serializer.KindFromContentType(contentType)
	if err != nil {
		return nil, nil, nil, invalidMessage("%v", err)
	}
	ser, err := serializer.For(kind)
	if err != nil {
		return nil, nil, nil, invalidMessage("%v", err)
	}

	var wire wireMessage
	if err := ser.Deserialize(payload, &wire); err != nil {
		return nil, nil, nil, invalidMessage("deserialize: %v", err)
	}

	if wire.Meta != nil {
		if exp, ok := toFloat(wire.Meta["__expiry__"]); ok && exp != 0 && exp < nowSeconds() {
			metrics.RecordReceiveTimeout()
			return nil, nil, nil, &TimeoutError{Queue: queueName, Reason: ReasonMessageExpired}
		}
	}

	if wire.RequestID == nil {
		return nil, nil, nil, invalidMessage("no request ID")
	}

	meta := wire.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	meta["serializer"] = kind
	meta["protocol_version"] = version

	return wire.RequestID, meta, wire.Body, nil
}

// blpopEnvelope performs one blocking pop on key and decodes its envelope.
func (c *Core) blpopEnvelope(
	ctx context.Context,
	conn *redis.Client,
	key, queueName string,
	timeout time.Duration,
) (*envelope.Envelope, error) {
	result, err := conn.BLPop(ctx, timeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RecordReceiveTimeout()
			return nil, &TimeoutError{Queue: queueName, Reason: ReasonBLPopTimeout}
		}
		return nil, &ReceiveError{Queue: queueName, Cause: err}
	}
	if len(result) < 2 {
		return nil, &ReceiveError{Queue: queueName, Cause: fmt.Errorf("unexpected BLPOP reply")}
	}

	env, err := envelope.Decode([]byte(result[1]), c.logger.Component("chunking"))
	if err != nil {
		return nil, invalidMessage("%v", err)
	}
	return env, nil
}

// reassembleChunks issues first.Header.ChunkCount-1 additional BLPOPs on the
// same queue, verifying chunk-count/chunk-id agreement, and concatenates
// payload bytes in order.
func (c *Core) reassembleChunks(
	ctx context.Context,
	conn *redis.Client,
	key, queueName string,
	timeout time.Duration,
	first *envelope.Envelope,
) ([]byte, error) {
	count := first.Header.ChunkCount
	buf := make([]byte, 0, count*len(first.Payload))
	buf = append(buf, first.Payload...)

	for i := 2; i <= count; i++ {
		env, err := c.blpopEnvelope(ctx, conn, key, queueName, timeout)
		if err != nil {
			return nil, err
		}
		if !env.IsChunk() {
			return nil, invalidMessage("missing chunk headers on chunk %d", i)
		}
		if env.Header.ChunkCount != count {
			return nil, invalidMessage("different chunk count: expected %d, got %d", count, env.Header.ChunkCount)
		}
		if env.Header.ChunkID != i {
			return nil, invalidMessage("incorrect chunk ID: expected %d, got %d", i, env.Header.ChunkID)
		}
		buf = append(buf, env.Payload...)
	}

	return buf, nil
}
