// Package client implements the Client Transport: it owns a client ID and
// hands out one reply-queue-bound Caller per goroutine that needs to make
// requests, so that every goroutine's replies land on a queue only it reads.
package client

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/relaygate/transport/internal/logging"
	"github.com/relaygate/transport/internal/transport"
)

// Transport is a client's handle onto one backend service's request/reply
// queues. Safe for concurrent use; call NewCaller once per goroutine that
// will be making requests.
type Transport struct {
	serviceName string
	clientID    string
	core        *transport.Core
	logger      *logging.Logger
}

// Config configures a Transport.
type Config struct {
	ServiceName string
	Core        *transport.Core
	// Logger defaults to the package default when nil.
	Logger *logging.Logger
}

// New builds a client Transport bound to one backend service, generating a
// random 128-bit client ID used to namespace this client's reply queues.
func New(cfg Config) (*Transport, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("client: service name is required")
	}
	if cfg.Core == nil {
		return nil, fmt.Errorf("client: core is required")
	}

	id, err := randomHex(16)
	if err != nil {
		return nil, fmt.Errorf("client: generate client ID: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Transport{
		serviceName: cfg.ServiceName,
		clientID:    id,
		core:        cfg.Core,
		logger:      logger.Component("client"),
	}, nil
}

// requestQueue is the shared queue every request for this service lands on,
// regardless of which client or caller sent it.
func (t *Transport) requestQueue() string {
	return "service." + t.serviceName
}

// NewCaller hands out a Caller bound to a fresh reply queue, unique to this
// client and this call. Invoke once per goroutine; sharing a Caller across
// goroutines (or reusing one thread's reply queue on another) reintroduces
// the cross-delivery race the per-thread reply queue exists to avoid.
func (t *Transport) NewCaller() (*Caller, error) {
	threadID, err := randomHex(8)
	if err != nil {
		return nil, fmt.Errorf("client: generate thread ID: %w", err)
	}
	return t.newCallerWithThreadID(threadID), nil
}

// newCallerWithThreadID is the unexported constructor tests use to force two
// Callers onto the same reply queue, proving the cross-delivery hazard
// NewCaller's per-call randomness is meant to avoid.
func (t *Transport) newCallerWithThreadID(threadID string) *Caller {
	replyTo := fmt.Sprintf("%s.%s!%s", t.requestQueue(), t.clientID, threadID)
	t.logger.WithCaller(t.clientID, threadID).Debug("caller bound to reply queue", "queue", replyTo)
	return &Caller{transport: t, replyTo: replyTo}
}

// Caller is a single goroutine's handle for sending requests to and
// receiving responses from one service, via its own reply queue.
type Caller struct {
	transport *Transport
	replyTo   string

	outstanding int64 // atomic count of sent-but-not-yet-received requests
}

// SendRequest sends a request to the bound service, stamping reply_to onto
// meta so the server routes its response back to this Caller's reply queue.
func (c *Caller) SendRequest(
	ctx context.Context,
	requestID *int64,
	meta map[string]any,
	body any,
	expiry *time.Duration,
) error {
	txMeta := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		txMeta[k] = v
	}
	txMeta["reply_to"] = c.replyTo

	if err := c.transport.core.Send(ctx, c.transport.requestQueue(), requestID, txMeta, body, expiry); err != nil {
		return err
	}
	atomic.AddInt64(&c.outstanding, 1)
	return nil
}

// ReceiveResponse blocks for one response on this Caller's reply queue. If
// no request is currently outstanding it returns immediately with all-nil
// results rather than blocking on a queue nothing will ever be sent to.
func (c *Caller) ReceiveResponse(
	ctx context.Context,
	timeout *time.Duration,
) (*int64, map[string]any, any, error) {
	if atomic.LoadInt64(&c.outstanding) <= 0 {
		return nil, nil, nil, nil
	}

	requestID, meta, body, err := c.transport.core.Receive(ctx, c.replyTo, timeout)
	if err != nil {
		return nil, nil, nil, err
	}
	atomic.AddInt64(&c.outstanding, -1)
	return requestID, meta, body, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
