// Package config manages naia server configuration using koanf/v2.
//
// Supports YAML files and environment variables. Client-side
// configuration is deliberately not part of this package: a client is
// typically embedded in a game loop and constructs its ClientConfig
// programmatically (see DefaultClientConfig), the same way the original
// library's client took a plain struct rather than a config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Server configuration structures
// -------------------------------------------------------------------------

// Config holds the complete naia-server daemon configuration.
type Config struct {
	Listen      ListenConfig      `koanf:"listen"`
	Admin       AdminConfig       `koanf:"admin"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Log         LogConfig         `koanf:"log"`
	Replication ReplicationConfig `koanf:"replication"`
}

// ListenConfig holds the UDP datagram transport listen configuration.
type ListenConfig struct {
	// Addr is the UDP listen address (e.g., ":14191").
	Addr string `koanf:"addr"`
}

// AdminConfig holds the ConnectRPC introspection server configuration.
type AdminConfig struct {
	// Addr is the introspection server listen address (e.g., ":50051").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// ReplicationConfig holds the server-wide defaults every accepted
// connection's timers and link-condition injection are seeded from.
// These mirror the per-connection knobs spec.md §6 lists for the
// client, since both ends of one connection must agree on cadence.
type ReplicationConfig struct {
	// TickInterval is the fixed-rate server simulation tick.
	TickInterval time.Duration `koanf:"tick_interval"`
	// HeartbeatInterval is how often a Heartbeat packet is sent during
	// otherwise-silent connections.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	// PingInterval is how often an RTT-sampling Ping is sent.
	PingInterval time.Duration `koanf:"ping_interval"`
	// RTTSampleSize bounds the rolling window the RTT estimator
	// averages over.
	RTTSampleSize int `koanf:"rtt_sample_size"`
	// SendHandshakeInterval is the resend cadence while a connection is
	// mid-handshake.
	SendHandshakeInterval time.Duration `koanf:"send_handshake_interval"`
	// DisconnectionTimeout is how long a connection may go without any
	// received packet before it is torn down as a liveness timeout.
	DisconnectionTimeout time.Duration `koanf:"disconnection_timeout"`
	// CommandHistorySize is N, the number of past commands redundantly
	// bundled into every outgoing client packet.
	CommandHistorySize int `koanf:"command_history_size"`
	// HandshakeSecret is the HMAC key challenge/connect digests are
	// validated against. Every connecting client must be configured
	// with the same value out of band.
	HandshakeSecret string `koanf:"handshake_secret"`
	// ManifestFile is accepted in the configuration but not read by any
	// code in this module: the served manifest is always supplied in code
	// (cmd/naia-server hosts internal/demo's manifest).
	ManifestFile string `koanf:"manifest_file"`
	// LinkCondition optionally injects artificial loss/duplication/
	// reorder/latency into the transport, for local testing.
	LinkCondition *LinkConditionConfig `koanf:"link_condition"`
}

// LinkConditionConfig describes artificial network impairment to inject
// for testing, matching spec.md §6's optional `link_condition_config`.
type LinkConditionConfig struct {
	// DropProbability is the chance, in [0,1], that an outgoing
	// datagram is silently discarded.
	DropProbability float64 `koanf:"drop_probability"`
	// DuplicateProbability is the chance an outgoing datagram is sent
	// twice.
	DuplicateProbability float64 `koanf:"duplicate_probability"`
	// ReorderProbability is the chance an outgoing datagram is held
	// back and sent after the next one instead.
	ReorderProbability float64 `koanf:"reorder_probability"`
	// ExtraLatency is added to every outgoing datagram's delivery time.
	ExtraLatency time.Duration `koanf:"extra_latency"`
}

// -------------------------------------------------------------------------
// Server defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Addr: ":14191",
		},
		Admin: AdminConfig{
			Addr: ":50051",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Replication: ReplicationConfig{
			TickInterval:          16 * time.Millisecond,
			HeartbeatInterval:     50 * time.Millisecond,
			PingInterval:          1 * time.Second,
			RTTSampleSize:         10,
			SendHandshakeInterval: 250 * time.Millisecond,
			DisconnectionTimeout:  10 * time.Second,
			CommandHistorySize:    3,
			HandshakeSecret:       "dev-only-change-me",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for naia-server configuration.
// Variables are named NAIA_<section>_<key>, e.g., NAIA_LISTEN_ADDR.
const envPrefix = "NAIA_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (NAIA_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	NAIA_LISTEN_ADDR             -> listen.addr
//	NAIA_ADMIN_ADDR              -> admin.addr
//	NAIA_METRICS_ADDR            -> metrics.addr
//	NAIA_METRICS_PATH            -> metrics.path
//	NAIA_LOG_LEVEL               -> log.level
//	NAIA_LOG_FORMAT              -> log.format
//	NAIA_REPLICATION_TICK_INTERVAL -> replication.tick_interval
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms NAIA_LISTEN_ADDR -> listen.addr.
// Strips the NAIA_ prefix, lowercases, and replaces the first _ (the
// section separator) with ., so keys keep their own underscores.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"listen.addr":                            defaults.Listen.Addr,
		"admin.addr":                              defaults.Admin.Addr,
		"metrics.addr":                            defaults.Metrics.Addr,
		"metrics.path":                            defaults.Metrics.Path,
		"log.level":                               defaults.Log.Level,
		"log.format":                              defaults.Log.Format,
		"replication.tick_interval":               defaults.Replication.TickInterval.String(),
		"replication.heartbeat_interval":          defaults.Replication.HeartbeatInterval.String(),
		"replication.ping_interval":                defaults.Replication.PingInterval.String(),
		"replication.rtt_sample_size":             defaults.Replication.RTTSampleSize,
		"replication.send_handshake_interval":     defaults.Replication.SendHandshakeInterval.String(),
		"replication.disconnection_timeout":       defaults.Replication.DisconnectionTimeout.String(),
		"replication.command_history_size":        defaults.Replication.CommandHistorySize,
		"replication.handshake_secret":            defaults.Replication.HandshakeSecret,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Server validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyListenAddr indicates the UDP listen address is empty.
	ErrEmptyListenAddr = errors.New("listen.addr must not be empty")

	// ErrInvalidTickInterval indicates the tick interval is non-positive.
	ErrInvalidTickInterval = errors.New("replication.tick_interval must be > 0")

	// ErrInvalidRTTSampleSize indicates the RTT sample window is non-positive.
	ErrInvalidRTTSampleSize = errors.New("replication.rtt_sample_size must be > 0")

	// ErrInvalidCommandHistorySize indicates the command replay window is non-positive.
	ErrInvalidCommandHistorySize = errors.New("replication.command_history_size must be > 0")

	// ErrEmptyHandshakeSecret indicates no handshake HMAC key was configured.
	ErrEmptyHandshakeSecret = errors.New("replication.handshake_secret must not be empty")

	// ErrInvalidLinkConditionProbability indicates a link-condition
	// probability falls outside [0,1].
	ErrInvalidLinkConditionProbability = errors.New("link_condition probabilities must be within [0,1]")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Listen.Addr == "" {
		return ErrEmptyListenAddr
	}

	if cfg.Replication.TickInterval <= 0 {
		return ErrInvalidTickInterval
	}

	if cfg.Replication.RTTSampleSize <= 0 {
		return ErrInvalidRTTSampleSize
	}

	if cfg.Replication.CommandHistorySize <= 0 {
		return ErrInvalidCommandHistorySize
	}

	if cfg.Replication.HandshakeSecret == "" {
		return ErrEmptyHandshakeSecret
	}

	if lc := cfg.Replication.LinkCondition; lc != nil {
		if err := validateLinkCondition(lc); err != nil {
			return err
		}
	}

	return nil
}

func validateLinkCondition(lc *LinkConditionConfig) error {
	for _, p := range []float64{lc.DropProbability, lc.DuplicateProbability, lc.ReorderProbability} {
		if p < 0 || p > 1 {
			return ErrInvalidLinkConditionProbability
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Client configuration
// -------------------------------------------------------------------------

// ClientConfig holds one client connection's configuration, built
// programmatically rather than loaded from a file: spec.md §6 lists
// these fields as the client's entire external configuration surface.
type ClientConfig struct {
	// ServerAddress is the UDP address to connect to. Required.
	ServerAddress string

	// DisconnectionTimeout is how long the client waits without any
	// received packet before declaring the connection lost.
	DisconnectionTimeout time.Duration
	// HeartbeatInterval is how often a Heartbeat is sent during
	// otherwise-silent periods.
	HeartbeatInterval time.Duration
	// PingInterval is how often an RTT-sampling Ping is sent.
	PingInterval time.Duration
	// RTTSampleSize bounds the rolling window the RTT estimator
	// averages over.
	RTTSampleSize int
	// SendHandshakeInterval is the resend cadence while connecting.
	SendHandshakeInterval time.Duration
	// TickInterval is the fixed-rate local simulation tick, seeded from
	// the server's challenge response.
	TickInterval time.Duration
	// LinkCondition optionally injects artificial loss/duplication/
	// reorder/latency into the outgoing transport, for local testing.
	LinkCondition *LinkConditionConfig

	// CommandHistorySize is N, the number of past commands redundantly
	// bundled into every outgoing packet. Not part of spec.md's
	// configuration list; exposed so a client matching an unusual
	// server-side CommandHistorySize can stay in sync.
	CommandHistorySize int
	// MaxEventsPerReceive bounds how many events a single Receive call
	// drains before returning, so one call can never block the caller's
	// render loop indefinitely under a backlog. Purely a local safety
	// valve, not a wire-visible behavior.
	MaxEventsPerReceive int
}

// DefaultClientConfig returns a ClientConfig for serverAddress with the
// same cadence defaults DefaultConfig uses server-side.
func DefaultClientConfig(serverAddress string) ClientConfig {
	return ClientConfig{
		ServerAddress:         serverAddress,
		DisconnectionTimeout:  10 * time.Second,
		HeartbeatInterval:     50 * time.Millisecond,
		PingInterval:          1 * time.Second,
		RTTSampleSize:         10,
		SendHandshakeInterval: 250 * time.Millisecond,
		TickInterval:          16 * time.Millisecond,
		CommandHistorySize:    3,
		MaxEventsPerReceive:   256,
	}
}

// Client-side validation errors.
var (
	// ErrEmptyServerAddress indicates ServerAddress was left empty.
	ErrEmptyServerAddress = errors.New("config: server address must not be empty")

	// ErrInvalidClientTickInterval indicates TickInterval is non-positive.
	ErrInvalidClientTickInterval = errors.New("config: tick interval must be > 0")

	// ErrInvalidMaxEventsPerReceive indicates MaxEventsPerReceive is non-positive.
	ErrInvalidMaxEventsPerReceive = errors.New("config: max events per receive must be > 0")
)

// Validate checks a ClientConfig for logical errors.
func (c ClientConfig) Validate() error {
	if c.ServerAddress == "" {
		return ErrEmptyServerAddress
	}
	if c.TickInterval <= 0 {
		return ErrInvalidClientTickInterval
	}
	if c.RTTSampleSize <= 0 {
		return ErrInvalidRTTSampleSize
	}
	if c.CommandHistorySize <= 0 {
		return ErrInvalidCommandHistorySize
	}
	if c.MaxEventsPerReceive <= 0 {
		return ErrInvalidMaxEventsPerReceive
	}
	if c.LinkCondition != nil {
		if err := validateLinkCondition(c.LinkCondition); err != nil {
			return err
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
