package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectionOptions mirrors the subset of redis.Options the gateway exposes
// for tuning, applied on top of per-host defaults.
type ConnectionOptions struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// StandardBackend talks to a statically configured ring of standalone Redis
// masters. Connections are constructed eagerly from the shard list.
type StandardBackend struct {
	ring        *Ring
	connections []*redis.Client
}

// NewStandardBackend builds a backend over hosts, each either a "host:port"
// pair or a redis:// URL.
func NewStandardBackend(hosts []string, opts ConnectionOptions) (*StandardBackend, error) {
	if len(hosts) == 0 {
		hosts = []string{"localhost:6379"}
	}

	conns := make([]*redis.Client, 0, len(hosts))
	for _, host := range hosts {
		redisOpts, err := resolveHostOptions(host, opts)
		if err != nil {
			return nil, fmt.Errorf("backend: standard host %q: %w", host, err)
		}
		conns = append(conns, redis.NewClient(redisOpts))
	}

	return &StandardBackend{ring: NewRing(len(conns)), connections: conns}, nil
}

func resolveHostOptions(host string, opts ConnectionOptions) (*redis.Options, error) {
	var redisOpts *redis.Options
	if strings.Contains(host, "://") {
		parsed, err := redis.ParseURL(host)
		if err != nil {
			return nil, err
		}
		redisOpts = parsed
	} else {
		redisOpts = &redis.Options{Addr: host}
	}

	if opts.DialTimeout > 0 {
		redisOpts.DialTimeout = opts.DialTimeout
	}
	if opts.ReadTimeout > 0 {
		redisOpts.ReadTimeout = opts.ReadTimeout
	}
	if opts.WriteTimeout > 0 {
		redisOpts.WriteTimeout = opts.WriteTimeout
	}
	if opts.PoolSize > 0 {
		redisOpts.PoolSize = opts.PoolSize
	}

	return redisOpts, nil
}

// GetConnection implements Backend.
func (b *StandardBackend) GetConnection(_ context.Context, queueKey string) (*redis.Client, error) {
	idx := b.ring.Index(queueKey)
	if idx < 0 || idx >= len(b.connections) {
		return nil, fmt.Errorf("%w: ring index %d out of range for %d hosts", ErrCannotGetConnection, idx, len(b.connections))
	}
	return b.connections[idx], nil
}

// Close releases every connection in the ring.
func (b *StandardBackend) Close() error {
	var firstErr error
	for _, conn := range b.connections {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
