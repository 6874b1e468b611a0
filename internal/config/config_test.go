package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backend.Type != "standard" {
		t.Errorf("Backend.Type = %s, want standard", cfg.Backend.Type)
	}
	if len(cfg.Backend.Hosts) != 1 {
		t.Errorf("Backend.Hosts = %v, want 1 host", cfg.Backend.Hosts)
	}
	if cfg.Message.ExpiryInSeconds != 60 {
		t.Errorf("Message.ExpiryInSeconds = %d, want 60", cfg.Message.ExpiryInSeconds)
	}
	if cfg.Queue.Capacity != 10000 {
		t.Errorf("Queue.Capacity = %d, want 10000", cfg.Queue.Capacity)
	}
	if cfg.Queue.FullRetries != 10 {
		t.Errorf("Queue.FullRetries = %d, want 10", cfg.Queue.FullRetries)
	}
	if cfg.Receive.TimeoutInSeconds != 5 {
		t.Errorf("Receive.TimeoutInSeconds = %d, want 5", cfg.Receive.TimeoutInSeconds)
	}
	if cfg.Serializer.Default != "msgpack" {
		t.Errorf("Serializer.Default = %s, want msgpack", cfg.Serializer.Default)
	}
	if cfg.ProtocolVersion != 3 {
		t.Errorf("ProtocolVersion = %d, want 3", cfg.ProtocolVersion)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() should be valid, got error: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() with missing file should return defaults, got error: %v", err)
	}
	if cfg.Backend.Type != "standard" {
		t.Errorf("Load() with missing file should return defaults, got Backend.Type=%s", cfg.Backend.Type)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "gateway.yaml")

	yamlContent := `
backend:
  backend_type: sentinel
  hosts:
    - sentinel-1:26379
    - sentinel-2:26379
  sentinel_services:
    - mymaster
  sentinel_failover_retries: 5
message:
  expiry_in_seconds: 120
queue:
  capacity: 5000
  full_retries: 3
protocol_version: 2
`
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Backend.Type != "sentinel" {
		t.Errorf("Backend.Type = %s, want sentinel", cfg.Backend.Type)
	}
	if len(cfg.Backend.Hosts) != 2 {
		t.Errorf("Backend.Hosts = %v, want 2 hosts", cfg.Backend.Hosts)
	}
	if len(cfg.Backend.SentinelServices) != 1 || cfg.Backend.SentinelServices[0] != "mymaster" {
		t.Errorf("Backend.SentinelServices = %v, want [mymaster]", cfg.Backend.SentinelServices)
	}
	if cfg.Backend.SentinelFailoverRetries != 5 {
		t.Errorf("Backend.SentinelFailoverRetries = %d, want 5", cfg.Backend.SentinelFailoverRetries)
	}
	if cfg.Message.ExpiryInSeconds != 120 {
		t.Errorf("Message.ExpiryInSeconds = %d, want 120", cfg.Message.ExpiryInSeconds)
	}
	if cfg.Queue.Capacity != 5000 {
		t.Errorf("Queue.Capacity = %d, want 5000", cfg.Queue.Capacity)
	}
	if cfg.ProtocolVersion != 2 {
		t.Errorf("ProtocolVersion = %d, want 2", cfg.ProtocolVersion)
	}
}

func TestValidate(t *testing.T) {
	validBase := func() *Config {
		return DefaultConfig()
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{
			name:    "bad backend type",
			mutate:  func(c *Config) { c.Backend.Type = "cluster" },
			wantErr: true,
		},
		{
			name:    "no hosts",
			mutate:  func(c *Config) { c.Backend.Hosts = nil },
			wantErr: true,
		},
		{
			name:    "negative sentinel retries",
			mutate:  func(c *Config) { c.Backend.Type = "sentinel"; c.Backend.SentinelFailoverRetries = -1 },
			wantErr: true,
		},
		{
			name:    "zero expiry",
			mutate:  func(c *Config) { c.Message.ExpiryInSeconds = 0 },
			wantErr: true,
		},
		{
			name:    "message size below chunk floor",
			mutate:  func(c *Config) { c.Message.MaximumSizeInBytes = 1024 },
			wantErr: true,
		},
		{
			name:    "zero queue capacity",
			mutate:  func(c *Config) { c.Queue.Capacity = 0 },
			wantErr: true,
		},
		{
			name:    "negative queue full retries",
			mutate:  func(c *Config) { c.Queue.FullRetries = -1 },
			wantErr: true,
		},
		{
			name:    "negative receive timeout",
			mutate:  func(c *Config) { c.Receive.TimeoutInSeconds = -1 },
			wantErr: true,
		},
		{
			name:    "bad serializer",
			mutate:  func(c *Config) { c.Serializer.Default = "protobuf" },
			wantErr: true,
		},
		{
			name:    "bad protocol version",
			mutate:  func(c *Config) { c.ProtocolVersion = 4 },
			wantErr: true,
		},
		{
			name:    "bad logging level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "bad logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name: "chunk threshold below minimum",
			mutate: func(c *Config) {
				c.ChunkMessagesLargerThanBytes = 1024
			},
			wantErr: true,
		},
		{
			name: "valid chunking config",
			mutate: func(c *Config) {
				c.ChunkMessagesLargerThanBytes = 102400
				c.Message.MaximumSizeInBytes = 5 * 102400
			},
			wantErr: false,
		},
		{
			name: "chunking enabled but max size too small",
			mutate: func(c *Config) {
				c.ChunkMessagesLargerThanBytes = 102400
				c.Message.MaximumSizeInBytes = 102400
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ConnectionKwargsTimeouts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.ConnectionKwargs.DialTimeout = "not-a-duration"

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject malformed dial_timeout")
	}

	cfg2 := DefaultConfig()
	cfg2.Backend.ConnectionKwargs.ReadTimeout = "-5s"
	if err := cfg2.Validate(); err == nil {
		t.Error("Validate() should reject non-positive read_timeout")
	}
}
