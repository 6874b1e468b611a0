package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaygate/transport/internal/logging"
	"github.com/relaygate/transport/internal/resilience"
)

// errMasterNotFound signals that no Sentinel host currently knows a live
// master for the requested service -- the trigger for cache reset + retry.
var errMasterNotFound = errors.New("backend: master not found")

// SentinelOptions configures a SentinelBackend.
type SentinelOptions struct {
	// Hosts lists the Sentinel "host:port" pairs to poll.
	Hosts []string
	// Services explicitly names the masters to track; if empty, they are
	// discovered by polling every Sentinel host.
	Services []string
	// FailoverRetries bounds MasterNotFound retries per GetConnection call.
	FailoverRetries int
	// Connection tunes the dial/read/write timeouts applied to master
	// connections (not to the Sentinel control connections themselves).
	Connection ConnectionOptions
	// Logger receives master-resolution and failover diagnostics. Defaults
	// to a no-op logger when nil.
	Logger *logging.Logger
}

// SentinelBackend talks to Redis masters discovered and failed over via a
// Sentinel quorum. Assumes a single Sentinel cluster monitoring one master
// per configured service name; ring shards map 1:1 onto services.
type SentinelBackend struct {
	ring     *Ring
	services []string

	sentinelClients []*redis.SentinelClient
	connOpts        ConnectionOptions
	failoverRetries int

	mu            sync.RWMutex
	masterClients map[string]*redis.Client

	breaker *resilience.CircuitBreaker
	logger  *logging.Logger
}

// NewSentinelBackend connects to the Sentinel hosts and either adopts the
// configured service list or discovers it by polling every Sentinel until
// one answers with the master list.
func NewSentinelBackend(ctx context.Context, opts SentinelOptions) (*SentinelBackend, error) {
	hosts := opts.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost:26379"}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	sentinels := make([]*redis.SentinelClient, 0, len(hosts))
	for _, host := range hosts {
		sentinels = append(sentinels, redis.NewSentinelClient(&redis.Options{
			Addr:         host,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}))
	}

	b := &SentinelBackend{
		sentinelClients: sentinels,
		connOpts:        opts.Connection,
		failoverRetries: opts.FailoverRetries,
		masterClients:   make(map[string]*redis.Client),
		logger:          logger.Component("backend"),
		breaker: resilience.NewCircuitBreaker(resilience.Config{
			Name:              "sentinel-master-discovery",
			FailureThreshold:  5,
			RecoveryThreshold: 2,
			Cooldown:          30 * time.Second,
		}),
	}

	services := opts.Services
	if len(services) == 0 {
		discovered, err := b.discoverServices(ctx)
		if err != nil {
			return nil, fmt.Errorf("backend: discover sentinel services: %w", err)
		}
		services = discovered
	}
	b.services = services
	b.ring = NewRing(len(services))

	return b, nil
}

// discoverServices polls every Sentinel host's SENTINEL MASTERS until one
// answers.
func (b *SentinelBackend) discoverServices(ctx context.Context) ([]string, error) {
	var lastErr error
	for _, sentinel := range b.sentinelClients {
		result, err := sentinel.Masters(ctx).Result()
		if err != nil {
			lastErr = err
			continue
		}

		names := make([]string, 0, len(result))
		for _, raw := range result {
			info, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if name, ok := info["name"].(string); ok {
				names = append(names, name)
			}
		}
		if len(names) > 0 {
			return names, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("no sentinel host returned any masters")
}

// reset clears the master-connection cache. Called after MasterNotFound so
// the next lookup re-asks Sentinel for the current address.
func (b *SentinelBackend) reset() {
	b.mu.Lock()
	b.masterClients = make(map[string]*redis.Client)
	b.mu.Unlock()
}

func (b *SentinelBackend) cachedMasterClient(service string) (*redis.Client, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	client, ok := b.masterClients[service]
	return client, ok
}

// masterClientFor returns the cached master connection for service,
// resolving and caching it (through the circuit breaker) on a miss.
func (b *SentinelBackend) masterClientFor(ctx context.Context, service string) (*redis.Client, error) {
	if client, ok := b.cachedMasterClient(service); ok {
		return client, nil
	}

	var addr string
	err := b.breaker.Execute(ctx, func(ctx context.Context) error {
		resolved, lookupErr := b.lookupMasterAddr(ctx, service)
		if lookupErr != nil {
			return lookupErr
		}
		addr = resolved
		return nil
	})
	if err != nil {
		return nil, err
	}

	redisOpts := &redis.Options{Addr: addr}
	if b.connOpts.DialTimeout > 0 {
		redisOpts.DialTimeout = b.connOpts.DialTimeout
	} else {
		redisOpts.DialTimeout = 5 * time.Second
	}
	if b.connOpts.ReadTimeout > 0 {
		redisOpts.ReadTimeout = b.connOpts.ReadTimeout
	}
	if b.connOpts.WriteTimeout > 0 {
		redisOpts.WriteTimeout = b.connOpts.WriteTimeout
	}
	if b.connOpts.PoolSize > 0 {
		redisOpts.PoolSize = b.connOpts.PoolSize
	}
	newClient := redis.NewClient(redisOpts)

	b.mu.Lock()
	b.masterClients[service] = newClient
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "sentinel master address resolved", "service", service, "address", addr)

	return newClient, nil
}

// lookupMasterAddr asks every Sentinel host for service's current master
// address, stopping at the first useful answer.
func (b *SentinelBackend) lookupMasterAddr(ctx context.Context, service string) (string, error) {
	var lastErr error
	for _, sentinel := range b.sentinelClients {
		addrs, err := sentinel.GetMasterAddrByName(ctx, service).Result()
		if err != nil {
			lastErr = err
			continue
		}
		if len(addrs) == 2 && addrs[0] != "" {
			return addrs[0] + ":" + addrs[1], nil
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", errMasterNotFound, lastErr)
	}
	return "", errMasterNotFound
}

// GetConnection implements Backend. On MasterNotFound it resets the whole
// master cache and retries up to failoverRetries times with
// (2^i + rand()) / 4.0 second backoff.
func (b *SentinelBackend) GetConnection(ctx context.Context, queueKey string) (*redis.Client, error) {
	idx := b.ring.Index(queueKey)
	if idx < 0 || idx >= len(b.services) {
		return nil, fmt.Errorf("%w: ring index %d out of range for %d services", ErrCannotGetConnection, idx, len(b.services))
	}
	service := b.services[idx]

	for i := 0; i <= b.failoverRetries; i++ {
		client, err := b.masterClientFor(ctx, service)
		if err == nil {
			return client, nil
		}
		if !errors.Is(err, errMasterNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrCannotGetConnection, err)
		}

		b.reset()
		b.logger.WarnContext(ctx, "redis master not found, resetting clients (failover?)", "service", service, "attempt", i)

		if i != b.failoverRetries {
			backoff := (math.Pow(2, float64(i)) + rand.Float64()) / 4.0
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrCannotGetConnection, ctx.Err())
			case <-time.After(time.Duration(backoff * float64(time.Second))):
			}
		}
	}

	return nil, fmt.Errorf(
		"%w: master not found for service %q after %d failover retries",
		ErrCannotGetConnection, service, b.failoverRetries,
	)
}

// Close releases the master connection cache and the Sentinel control
// connections.
func (b *SentinelBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for _, conn := range b.masterClients {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, s := range b.sentinelClients {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
