package transport

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/relaygate/transport/internal/backend"
	"github.com/relaygate/transport/internal/envelope"
	"github.com/relaygate/transport/internal/metrics"
	"github.com/relaygate/transport/internal/serializer"
)

// Send stamps expiry, serializes, envelopes (chunking if needed and
// permitted), and sends requestID/meta/body to queueName, retrying on
// capacity exhaustion. requestID must be non-nil.
func (c *Core) Send(
	ctx context.Context,
	queueName string,
	requestID *int64,
	meta map[string]any,
	body any,
	expiryOverride *time.Duration,
) error {
	if requestID == nil {
		return invalidMessage("no request ID")
	}

	expiry := c.messageExpiry
	if expiryOverride != nil {
		expiry = *expiryOverride
	}

	version := c.protocolVersionDefault
	if v, ok := meta["protocol_version"]; ok {
		if iv, ok := toInt(v); ok {
			version = iv
		}
	}

	kind := c.defaultSerializerKind
	if v, ok := meta["serializer"]; ok {
		switch sv := v.(type) {
		case serializer.Kind:
			kind = sv
		case string:
			if parsed, err := serializer.KindFromName(sv); err == nil {
				kind = parsed
			}
		}
	}
	if version == 1 {
		// A bare V1 payload carries no content-type header, so the peer
		// will always decode it as MsgPack.
		kind = serializer.KindMsgPack
	}
	ser, err := serializer.For(kind)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	txMeta := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		if k == "serializer" || k == "protocol_version" {
			continue
		}
		txMeta[k] = v
	}
	txMeta["__expiry__"] = nowSeconds() + expiry.Seconds()

	wire := wireMessage{RequestID: requestID, Meta: txMeta, Body: body}

	serializeStart := time.Now()
	payload, err := ser.Serialize(wire)
	metrics.SendSerializeDuration.Observe(time.Since(serializeStart).Seconds())
	if err != nil {
		metrics.RecordSendError("unknown")
		return &SendError{Queue: queueName, Cause: fmt.Errorf("serialize: %w", err)}
	}

	parts, err := c.buildParts(version, kind.ContentType(), payload)
	if err != nil {
		metrics.RecordSendError("message_too_large")
		return err
	}
	if len(parts) > 1 {
		c.logger.Component("chunking").WithQueue(queueName).DebugContext(
			ctx, "splitting outbound message into chunks", "chunks", len(parts), "payload_bytes", len(payload),
		)
	}

	key := backend.QueueKeyPrefix + queueName
	for _, part := range parts {
		if err := c.sendOnePart(ctx, key, queueName, part, expiry); err != nil {
			return err
		}
	}

	return nil
}

// buildParts encodes payload into one or more envelope byte strings: a
// single non-chunked envelope when it fits under the chunk threshold (or
// chunking is disabled), or a sequence of chunk envelopes when the server
// core permits chunking and the peer's negotiated version supports it.
func (c *Core) buildParts(version int, contentType string, payload []byte) ([][]byte, error) {
	single, err := envelope.Encode(version, contentType, payload)
	if err != nil {
		return nil, tooLarge("%v", err)
	}

	fitsChunkThreshold := c.chunkThreshold == 0 || len(single) <= c.chunkThreshold
	if len(single) <= c.maximumMessageSize && fitsChunkThreshold {
		return [][]byte{single}, nil
	}

	if c.chunkThreshold == 0 || c.role != RoleServer {
		return nil, tooLarge("message of %d bytes exceeds the maximum and this core does not chunk", len(single))
	}

	if version != 3 {
		return nil, tooLarge("client does not support chunking")
	}

	if len(payload) > c.maximumMessageSize {
		return nil, tooLarge("message cannot fit within maximum_message_size_in_bytes even when chunked")
	}

	chunkCount := int(math.Ceil(float64(len(payload)) / float64(c.chunkThreshold)))
	parts := make([][]byte, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		start := i * c.chunkThreshold
		end := start + c.chunkThreshold
		if end > len(payload) {
			end = len(payload)
		}
		chunk, err := envelope.EncodeChunk(3, contentType, chunkCount, i+1, payload[start:end])
		if err != nil {
			return nil, tooLarge("%v", err)
		}
		parts = append(parts, chunk)
	}
	return parts, nil
}

// sendOnePart runs the capacity-enforcing send-retry loop for a single
// envelope (one chunk, or the whole message when unchunked). i == -1 is the
// first, unconditional try; i >= 0 are the retries, so queueFullRetries == 0
// means "try exactly once."
func (c *Core) sendOnePart(ctx context.Context, key, queueName string, part []byte, expiry time.Duration) error {
	enqueueStart := time.Now()
	defer func() {
		metrics.SendEnqueueDuration.Observe(time.Since(enqueueStart).Seconds())
	}()

	// The queue's own TTL must stay positive even when the caller sends
	// with an already-elapsed message expiry; EXPIRE with a non-positive
	// value would delete the queue out from under waiting consumers.
	queueTTL := int64(expiry.Seconds())
	if queueTTL < 1 {
		queueTTL = 1
	}

	for i := -1; i < c.queueFullRetries; i++ {
		if i >= 0 {
			backoff := (math.Pow(2, float64(i)) + rand.Float64()) / 4.0
			if err := sleepOrCancel(ctx, backoff); err != nil {
				return &SendError{Queue: queueName, Cause: err}
			}
			metrics.RecordQueueFullRetry(i + 1)
		}

		// A fresh connection every attempt: request queue keys round-robin
		// across the ring, so a retry after "queue full" gets a chance to
		// land on a different, less loaded shard.
		connStart := time.Now()
		conn, err := c.backend.GetConnection(ctx, key)
		metrics.SendGetConnectionDuration.Observe(time.Since(connStart).Seconds())
		if err != nil {
			metrics.RecordSendError("unknown")
			return &SendError{Queue: queueName, Cause: err}
		}

		sendErr := backend.SendToQueue(ctx, conn, key, part, queueTTL, c.queueCapacity)
		if sendErr == nil {
			return nil
		}
		if errors.Is(sendErr, backend.ErrQueueFull) {
			c.logger.Component(c.role.String()).WithQueue(queueName).WarnContext(
				ctx, "queue full, backing off", "attempt", i+1,
			)
			continue
		}

		metrics.RecordSendError("unknown")
		return &SendError{Queue: queueName, Cause: sendErr}
	}

	metrics.RecordSendError("redis_queue_full")
	return &SendError{
		Queue:   queueName,
		Retries: c.queueFullRetries,
		Cause:   fmt.Errorf("redis queue %q was full after %d retries", queueName, c.queueFullRetries),
	}
}

func sleepOrCancel(ctx context.Context, seconds float64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return nil
	}
}
