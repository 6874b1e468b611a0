// Package transport implements the envelope encode/decode, chunking,
// serializer selection, expiry stamping, send-retry, and receive-reassembly
// logic shared by the client and server transports.
package transport

import (
	"fmt"
	"time"

	"github.com/relaygate/transport/internal/backend"
	"github.com/relaygate/transport/internal/logging"
	"github.com/relaygate/transport/internal/serializer"
)

// minChunkThreshold is the floor on ChunkMessagesLargerThanBytes; chunks
// smaller than this cost more in Redis round trips than they save.
const minChunkThreshold = 102400

// defaultMaxMessageSize is the client-side default cap on an encoded
// message, and the cap for a server with no chunking configured.
const defaultMaxMessageSize = 102400

// Role gates which side of the round trip a Core plays, and in turn whether
// it may chunk outbound messages (servers only).
type Role int

const (
	// RoleClient sends requests and receives responses. May not chunk.
	RoleClient Role = iota
	// RoleServer receives requests and sends responses. May chunk outbound
	// and must reject chunked inbound requests.
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// CoreConfig configures a Core. Zero values fall back to the defaults noted
// on each field.
type CoreConfig struct {
	Backend backend.Backend
	Logger  *logging.Logger

	// QueueCapacity is the per-queue cap enforced by the capacity script.
	// Defaults to 10000.
	QueueCapacity int64

	// QueueFullRetries bounds how many times a send retries a full queue.
	// Defaults to 10; -1 (not 0) disables retries so the send is tried
	// exactly once.
	QueueFullRetries int

	// MessageExpiry is the default send expiry. Defaults to 60s.
	MessageExpiry time.Duration

	// ReceiveTimeout is the default BLPOP timeout. Defaults to 5s.
	ReceiveTimeout time.Duration

	// MaximumMessageSizeInBytes hard-caps an encoded message. Defaults to
	// 102400 for clients, or 5x ChunkMessagesLargerThanBytes for a chunking
	// server.
	MaximumMessageSizeInBytes int

	// ChunkMessagesLargerThanBytes enables server-side outbound chunking
	// above this size. Zero disables it. Client cores must leave this zero.
	ChunkMessagesLargerThanBytes int

	// ProtocolVersionDefault is the outbound envelope version used when a
	// message isn't a reply to something that negotiated a version.
	// Defaults to 3.
	ProtocolVersionDefault int

	// DefaultSerializer is the serializer used when no meta override is
	// present. Defaults to MsgPack.
	DefaultSerializer serializer.Kind
}

// Core handles envelope encode/decode, serialization, expiry, and the
// send-retry / receive-reassembly loops against a Backend.
type Core struct {
	role    Role
	backend backend.Backend
	logger  *logging.Logger

	queueCapacity          int64
	queueFullRetries       int
	messageExpiry          time.Duration
	receiveTimeout         time.Duration
	maximumMessageSize     int
	chunkThreshold         int
	protocolVersionDefault int
	defaultSerializerKind  serializer.Kind
}

// NewClientCore builds a Core for a Client Transport. Returns an error if
// ChunkMessagesLargerThanBytes is set -- clients may not chunk.
func NewClientCore(cfg CoreConfig) (*Core, error) {
	if cfg.ChunkMessagesLargerThanBytes != 0 {
		return nil, fmt.Errorf("transport: client core does not support chunk_messages_larger_than_bytes")
	}
	return newCore(RoleClient, cfg)
}

// NewServerCore builds a Core for a Server Transport, validating the chunk
// threshold and maximum-size constraints.
func NewServerCore(cfg CoreConfig) (*Core, error) {
	if cfg.ChunkMessagesLargerThanBytes != 0 {
		if cfg.ChunkMessagesLargerThanBytes < minChunkThreshold {
			return nil, fmt.Errorf("transport: chunk_messages_larger_than_bytes must be >= %d", minChunkThreshold)
		}
		maxSize := cfg.MaximumMessageSizeInBytes
		if maxSize == 0 {
			maxSize = 5 * cfg.ChunkMessagesLargerThanBytes
		}
		if maxSize < 5*cfg.ChunkMessagesLargerThanBytes {
			return nil, fmt.Errorf(
				"transport: maximum_message_size_in_bytes must be at least 5 times larger than chunk_messages_larger_than_bytes",
			)
		}
	}
	return newCore(RoleServer, cfg)
}

func newCore(role Role, cfg CoreConfig) (*Core, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("transport: backend is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	queueCapacity := cfg.QueueCapacity
	if queueCapacity == 0 {
		queueCapacity = 10000
	}

	queueFullRetries := cfg.QueueFullRetries
	switch {
	case queueFullRetries == 0:
		queueFullRetries = 10
	case queueFullRetries < 0:
		queueFullRetries = 0
	}

	messageExpiry := cfg.MessageExpiry
	if messageExpiry == 0 {
		messageExpiry = 60 * time.Second
	}

	receiveTimeout := cfg.ReceiveTimeout
	if receiveTimeout == 0 {
		receiveTimeout = 5 * time.Second
	}

	maxSize := cfg.MaximumMessageSizeInBytes
	if maxSize == 0 {
		if cfg.ChunkMessagesLargerThanBytes > 0 {
			maxSize = 5 * cfg.ChunkMessagesLargerThanBytes
		} else {
			maxSize = defaultMaxMessageSize
		}
	}

	protocolVersion := cfg.ProtocolVersionDefault
	if protocolVersion == 0 {
		protocolVersion = 3
	}

	kind := cfg.DefaultSerializer
	if kind == "" {
		kind = serializer.KindMsgPack
	}

	return &Core{
		role:                   role,
		backend:                cfg.Backend,
		logger:                 logger,
		queueCapacity:          queueCapacity,
		queueFullRetries:       queueFullRetries,
		messageExpiry:          messageExpiry,
		receiveTimeout:         receiveTimeout,
		maximumMessageSize:     maxSize,
		chunkThreshold:         cfg.ChunkMessagesLargerThanBytes,
		protocolVersionDefault: protocolVersion,
		defaultSerializerKind:  kind,
	}, nil
}

// wireMessage is the {request_id, meta, body} triple serialized into an
// envelope's payload.
type wireMessage struct {
	RequestID *int64         `msgpack:"request_id" json:"request_id"`
	Meta      map[string]any `msgpack:"meta" json:"meta"`
	Body      any            `msgpack:"body" json:"body"`
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
