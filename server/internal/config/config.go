package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort        = 50051
	DefaultHTTPPort        = 8080
	DefaultShards          = 16
	DefaultLogLevel        = "info"
	DefaultReplBufferSize  = 1024
	DefaultReplSendTimeout = 10 * time.Second
	DefaultWSSendBuffer    = 64
)

// Config holds the configuration parsed from the `server:` section of
// config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// NodeID names this server in replicated writes. Defaults to the hostname.
	NodeID string `yaml:"node_id"`

	// GRPCPort is the port the replication receiver listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API, WebSocket stream and /metrics
	// listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// LogLevel is one of: debug | info | warn | error. Hot-reloadable.
	LogLevel string `yaml:"log_level"`

	// Store sizes the in-memory engine.
	Store StoreConfig `yaml:"store"`

	// Auth configures how the server authenticates REST and gRPC clients.
	Auth AuthConfig `yaml:"auth"`

	// Replication lists the peers local writes are forwarded to.
	Replication ReplicationConfig `yaml:"replication"`

	// WebSocket tunes the subscribe stream.
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// StoreConfig sizes the store.
type StoreConfig struct {
	// Shards is the number of independently locked partitions (default 16).
	// It is fixed for the lifetime of the process.
	Shards int `yaml:"shards"`
}

// AuthConfig controls client authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the API key.
	// The same key is sent to replication peers.
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key and HTTP header name carrying the key.
	// Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return strings.ToLower(a.Header)
	}
	return "x-api-key"
}

// ReplicationConfig configures outbound replication.
type ReplicationConfig struct {
	// Peers are gRPC addresses (host:port) of other ludis servers.
	Peers []string `yaml:"peers"`

	// BufferSize is the number of writes held per peer while it is
	// unreachable. The oldest write is dropped when the buffer is full.
	BufferSize int `yaml:"buffer_size"`

	// SendTimeout bounds a single Replicate call.
	SendTimeout time.Duration `yaml:"send_timeout"`

	// TLS enables mutual TLS towards peers when CertFile is set.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig holds client certificate settings for peer connections.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// Enabled reports whether mutual TLS is configured.
func (t TLSConfig) Enabled() bool { return t.CertFile != "" }

// WebSocketConfig tunes the subscribe stream.
type WebSocketConfig struct {
	// SendBuffer is the per-connection outgoing message queue depth.
	SendBuffer int `yaml:"send_buffer"`
}

// SlogLevel converts LogLevel to a slog.Level. Unknown values map to Info.
func (s ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	if cfg.Server.NodeID == "" {
		cfg.Server.NodeID = hostname()
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			LogLevel: DefaultLogLevel,
			Store: StoreConfig{
				Shards: DefaultShards,
			},
			Replication: ReplicationConfig{
				BufferSize:  DefaultReplBufferSize,
				SendTimeout: DefaultReplSendTimeout,
			},
			WebSocket: WebSocketConfig{
				SendBuffer: DefaultWSSendBuffer,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.Store.Shards < 1 {
		return fmt.Errorf("server.store.shards must be at least 1, got %d", s.Store.Shards)
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Replication.BufferSize <= 0 {
		return fmt.Errorf("server.replication.buffer_size must be positive")
	}
	if s.Replication.SendTimeout <= 0 {
		return fmt.Errorf("server.replication.send_timeout must be positive")
	}
	for i, p := range s.Replication.Peers {
		if p == "" {
			return fmt.Errorf("server.replication.peers[%d] is empty", i)
		}
	}
	if s.Replication.TLS.Enabled() && s.Replication.TLS.KeyFile == "" {
		return fmt.Errorf("server.replication.tls.key_file is required with cert_file")
	}
	if s.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("server.websocket.send_buffer must be positive")
	}
	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "ludis"
	}
	return h
}
