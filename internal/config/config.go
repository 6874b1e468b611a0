// Package config loads and validates the gateway transport's configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// minChunkThreshold is the floor on chunk_messages_larger_than_bytes.
const minChunkThreshold = 102400

// Config holds all configuration for the gateway transport.
type Config struct {
	Backend    BackendConfig    `koanf:"backend"`
	Message    MessageConfig    `koanf:"message"`
	Queue      QueueConfig      `koanf:"queue"`
	Receive    ReceiveConfig    `koanf:"receive"`
	Serializer SerializerConfig `koanf:"serializer"`
	Logging    LoggingConfig    `koanf:"logging"`

	// ProtocolVersion is the client's outbound default envelope version (1, 2, or 3).
	ProtocolVersion int `koanf:"protocol_version"`

	// ChunkMessagesLargerThanBytes enables server-side outbound chunking above
	// this threshold. Zero disables chunking. When nonzero, must be >= 102400.
	ChunkMessagesLargerThanBytes int `koanf:"chunk_messages_larger_than_bytes"`
}

// BackendConfig configures how the transport reaches Redis.
type BackendConfig struct {
	// Type selects "standard" or "sentinel".
	Type string `koanf:"backend_type"`

	// Hosts is the shard list, "host:port" strings.
	Hosts []string `koanf:"hosts"`

	// ConnectionKwargs holds pass-through go-redis dial/pool options.
	ConnectionKwargs ConnectionConfig `koanf:"connection_kwargs"`

	// SentinelServices names the masters to track; if empty they are
	// discovered by polling every Sentinel host.
	SentinelServices []string `koanf:"sentinel_services"`

	// SentinelFailoverRetries bounds MasterNotFound retries.
	SentinelFailoverRetries int `koanf:"sentinel_failover_retries"`
}

// ConnectionConfig mirrors the subset of redis.Options the gateway exposes
// for tuning.
type ConnectionConfig struct {
	DialTimeout  string `koanf:"dial_timeout"`
	ReadTimeout  string `koanf:"read_timeout"`
	WriteTimeout string `koanf:"write_timeout"`
	PoolSize     int    `koanf:"pool_size"`
}

// MessageConfig holds message-level defaults.
type MessageConfig struct {
	// ExpiryInSeconds is the default send expiry (default 60).
	ExpiryInSeconds int `koanf:"expiry_in_seconds"`

	// MaximumSizeInBytes is the hard cap on an encoded message (default
	// 102400). The same value is handed to client and server cores; it is
	// not derived from chunk_messages_larger_than_bytes, so a config that
	// enables chunking fails Validate unless this is set to at least 5x
	// that threshold.
	MaximumSizeInBytes int `koanf:"maximum_size_in_bytes"`
}

// QueueConfig holds per-queue capacity and retry behavior.
type QueueConfig struct {
	// Capacity is the per-queue cap enforced by the Lua script (default 10000).
	Capacity int64 `koanf:"capacity"`

	// FullRetries bounds how many times a send retries a full queue (default 10).
	FullRetries int `koanf:"full_retries"`
}

// ReceiveConfig holds default receive behavior.
type ReceiveConfig struct {
	// TimeoutInSeconds is the default BLPOP timeout (default 5).
	TimeoutInSeconds int `koanf:"timeout_in_seconds"`
}

// SerializerConfig names the outbound serializer used when no meta override
// is present.
type SerializerConfig struct {
	Default string `koanf:"default"` // "msgpack" or "json"
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
	Output string `koanf:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with the gateway's stock defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Type:  "standard",
			Hosts: []string{"localhost:6379"},
			ConnectionKwargs: ConnectionConfig{
				DialTimeout:  "5s",
				ReadTimeout:  "5s",
				WriteTimeout: "5s",
				PoolSize:     10,
			},
			SentinelFailoverRetries: 3,
		},
		Message: MessageConfig{
			ExpiryInSeconds:    60,
			MaximumSizeInBytes: minChunkThreshold,
		},
		Queue: QueueConfig{
			Capacity:    10000,
			FullRetries: 10,
		},
		Receive: ReceiveConfig{
			TimeoutInSeconds: 5,
		},
		Serializer: SerializerConfig{
			Default: "msgpack",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		ProtocolVersion: 3,
	}
}

// Load reads configuration from a YAML file, falling back to defaults for
// anything the file doesn't set, exactly as the file does not need to exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateMessage(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateReceive(); err != nil {
		return err
	}
	if err := c.validateSerializer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}

	if c.ProtocolVersion < 1 || c.ProtocolVersion > 3 {
		return fmt.Errorf("protocol_version must be 1, 2, or 3 (got: %d)", c.ProtocolVersion)
	}

	if c.ChunkMessagesLargerThanBytes != 0 {
		if c.ChunkMessagesLargerThanBytes < minChunkThreshold {
			return fmt.Errorf("chunk_messages_larger_than_bytes must be at least %d (got: %d)",
				minChunkThreshold, c.ChunkMessagesLargerThanBytes)
		}
		if c.Message.MaximumSizeInBytes < 5*c.ChunkMessagesLargerThanBytes {
			return fmt.Errorf(
				"message.maximum_size_in_bytes must be at least 5x chunk_messages_larger_than_bytes (got: %d, need >= %d)",
				c.Message.MaximumSizeInBytes, 5*c.ChunkMessagesLargerThanBytes)
		}
	}

	return nil
}

func (c *Config) validateBackend() error {
	switch c.Backend.Type {
	case "standard", "sentinel":
	default:
		return fmt.Errorf("backend.backend_type must be 'standard' or 'sentinel' (got: %s)", c.Backend.Type)
	}

	if len(c.Backend.Hosts) == 0 {
		return fmt.Errorf("backend.hosts must contain at least one host")
	}

	if c.Backend.Type == "sentinel" {
		if c.Backend.SentinelFailoverRetries < 0 {
			return fmt.Errorf("backend.sentinel_failover_retries cannot be negative")
		}
	}

	kwargs := c.Backend.ConnectionKwargs
	for name, raw := range map[string]string{
		"backend.connection_kwargs.dial_timeout":  kwargs.DialTimeout,
		"backend.connection_kwargs.read_timeout":  kwargs.ReadTimeout,
		"backend.connection_kwargs.write_timeout": kwargs.WriteTimeout,
	} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s is invalid: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive (got: %s)", name, raw)
		}
	}

	if kwargs.PoolSize < 0 {
		return fmt.Errorf("backend.connection_kwargs.pool_size cannot be negative")
	}

	return nil
}

func (c *Config) validateMessage() error {
	if c.Message.ExpiryInSeconds < 1 {
		return fmt.Errorf("message.expiry_in_seconds must be at least 1 (got: %d)", c.Message.ExpiryInSeconds)
	}
	if c.Message.MaximumSizeInBytes < minChunkThreshold {
		return fmt.Errorf("message.maximum_size_in_bytes must be at least %d (got: %d)",
			minChunkThreshold, c.Message.MaximumSizeInBytes)
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue.capacity must be at least 1 (got: %d)", c.Queue.Capacity)
	}
	if c.Queue.FullRetries < 0 {
		return fmt.Errorf("queue.full_retries cannot be negative (got: %d)", c.Queue.FullRetries)
	}
	return nil
}

func (c *Config) validateReceive() error {
	if c.Receive.TimeoutInSeconds < 0 {
		return fmt.Errorf("receive.timeout_in_seconds cannot be negative (got: %d)", c.Receive.TimeoutInSeconds)
	}
	return nil
}

func (c *Config) validateSerializer() error {
	switch c.Serializer.Default {
	case "msgpack", "json":
	default:
		return fmt.Errorf("serializer.default must be 'msgpack' or 'json' (got: %s)", c.Serializer.Default)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if c.Logging.Level != "" {
		validLevels := map[string]bool{
			"debug": true, "info": true, "warn": true, "error": true,
		}
		if !validLevels[c.Logging.Level] {
			return fmt.Errorf("logging.level must be one of: debug, info, warn, error (got: %s)", c.Logging.Level)
		}
	}

	if c.Logging.Format != "" {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[c.Logging.Format] {
			return fmt.Errorf("logging.format must be one of: json, text (got: %s)", c.Logging.Format)
		}
	}

	return nil
}
