// Package server implements the Server Transport: reads requests from one
// service's shared inbound queue and routes responses back to whatever
// reply queue the request named.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/relaygate/transport/internal/transport"
)

// Transport is the server side of one service's request/reply exchange.
type Transport struct {
	serviceName string
	core        *transport.Core
}

// Config configures a Transport.
type Config struct {
	ServiceName string
	Core        *transport.Core
}

// New builds a server Transport bound to one service's inbound queue.
func New(cfg Config) (*Transport, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("server: service name is required")
	}
	if cfg.Core == nil {
		return nil, fmt.Errorf("server: core is required")
	}
	return &Transport{serviceName: cfg.ServiceName, core: cfg.Core}, nil
}

func (t *Transport) requestQueue() string {
	return "service." + t.serviceName
}

// ReceiveRequest blocks for one request on the service's inbound queue. The
// returned meta carries whatever reply_to the client set; it is not checked
// here. A request that arrived without reply_to is rejected later, when
// SendResponse is called for it.
func (t *Transport) ReceiveRequest(
	ctx context.Context,
	timeout *time.Duration,
) (*int64, map[string]any, any, error) {
	return t.core.Receive(ctx, t.requestQueue(), timeout)
}

// SendResponse routes a response to the queue named by meta's reply_to,
// which the original request must have set. A response with no reply_to is a
// programmer error, not a retryable failure.
func (t *Transport) SendResponse(ctx context.Context, requestID *int64, meta map[string]any, body any) error {
	replyTo, _ := meta["reply_to"].(string)
	if replyTo == "" {
		return fmt.Errorf("%w: response meta is missing reply_to", transport.ErrInvalidMessage)
	}

	txMeta := make(map[string]any, len(meta))
	for k, v := range meta {
		if k == "reply_to" {
			continue
		}
		txMeta[k] = v
	}

	return t.core.Send(ctx, replyTo, requestID, txMeta, body, nil)
}
