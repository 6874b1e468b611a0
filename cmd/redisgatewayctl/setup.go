package main

import (
	"context"
	"fmt"
	"time"

	"github.com/relaygate/transport/internal/backend"
	"github.com/relaygate/transport/internal/config"
	"github.com/relaygate/transport/internal/logging"
	"github.com/relaygate/transport/internal/serializer"
	"github.com/relaygate/transport/internal/transport"
)

// buildBackend constructs the Standard or Sentinel backend named by the
// loaded config.
func buildBackend(ctx context.Context, cfg *config.Config, logger *logging.Logger) (backend.Backend, error) {
	connOpts := backend.ConnectionOptions{PoolSize: cfg.Backend.ConnectionKwargs.PoolSize}
	if d, err := time.ParseDuration(cfg.Backend.ConnectionKwargs.DialTimeout); err == nil {
		connOpts.DialTimeout = d
	}
	if d, err := time.ParseDuration(cfg.Backend.ConnectionKwargs.ReadTimeout); err == nil {
		connOpts.ReadTimeout = d
	}
	if d, err := time.ParseDuration(cfg.Backend.ConnectionKwargs.WriteTimeout); err == nil {
		connOpts.WriteTimeout = d
	}

	switch cfg.Backend.Type {
	case "sentinel":
		return backend.NewSentinelBackend(ctx, backend.SentinelOptions{
			Hosts:           cfg.Backend.Hosts,
			Services:        cfg.Backend.SentinelServices,
			FailoverRetries: cfg.Backend.SentinelFailoverRetries,
			Connection:      connOpts,
			Logger:          logger,
		})
	default:
		return backend.NewStandardBackend(cfg.Backend.Hosts, connOpts)
	}
}

// buildCore constructs a client or server Core from the loaded config.
func buildCore(role transport.Role, b backend.Backend, cfg *config.Config, logger *logging.Logger) (*transport.Core, error) {
	kind, err := serializer.KindFromName(cfg.Serializer.Default)
	if err != nil {
		return nil, err
	}

	fullRetries := cfg.Queue.FullRetries
	if fullRetries == 0 {
		// A configured zero means "try once"; the core reserves 0 for
		// its own default and takes -1 to disable retries.
		fullRetries = -1
	}

	coreCfg := transport.CoreConfig{
		Backend:                   b,
		Logger:                    logger,
		QueueCapacity:             cfg.Queue.Capacity,
		QueueFullRetries:          fullRetries,
		MessageExpiry:             time.Duration(cfg.Message.ExpiryInSeconds) * time.Second,
		ReceiveTimeout:            time.Duration(cfg.Receive.TimeoutInSeconds) * time.Second,
		MaximumMessageSizeInBytes: cfg.Message.MaximumSizeInBytes,
		ProtocolVersionDefault:    cfg.ProtocolVersion,
		DefaultSerializer:         kind,
	}

	if role == transport.RoleServer {
		coreCfg.ChunkMessagesLargerThanBytes = cfg.ChunkMessagesLargerThanBytes
		return transport.NewServerCore(coreCfg)
	}
	return transport.NewClientCore(coreCfg)
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

func requireServiceName(args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", fmt.Errorf("a service name is required")
	}
	return args[0], nil
}
