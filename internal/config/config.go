package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Bridge   BridgeConfig   `yaml:"bridge" toml:"bridge"`
	Renderer RendererConfig `yaml:"renderer" toml:"renderer"`
	Logging  LogConfig      `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the host's debug HTTP server configuration.
type ServerConfig struct {
	Port    string `envconfig:"PORT" default:"8000" yaml:"port" toml:"port"`
	Host    string `envconfig:"HOST" default:"127.0.0.1" yaml:"host" toml:"host"`
	Enabled bool   `envconfig:"SERVER_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
}

// BridgeConfig holds call bridge and channel settings shared by both processes.
type BridgeConfig struct {
	// QueuedDispatch routes inbound messages through a queue drained once per tick
	// instead of dispatching them on the reader goroutine.
	QueuedDispatch bool          `envconfig:"BRIDGE_QUEUED_DISPATCH" default:"false" yaml:"queued_dispatch" toml:"queued_dispatch"`
	TickInterval   time.Duration `envconfig:"BRIDGE_TICK" default:"16ms" yaml:"tick_interval" toml:"tick_interval"`
	PingInterval   time.Duration `envconfig:"BRIDGE_PING_INTERVAL" default:"1s" yaml:"ping_interval" toml:"ping_interval"`
	LaunchTimeout  time.Duration `envconfig:"BRIDGE_LAUNCH_TIMEOUT" default:"60s" yaml:"launch_timeout" toml:"launch_timeout"`
	MaxFrameBytes  int           `envconfig:"BRIDGE_MAX_FRAME" default:"4194304" yaml:"max_frame_bytes" toml:"max_frame_bytes"`
	// RemoteAddr, when set, makes the host dial a remote renderer over gRPC instead of
	// launching a local subprocess.
	RemoteAddr string `envconfig:"BRIDGE_REMOTE_ADDR" yaml:"remote_addr" toml:"remote_addr"`
}

// RendererConfig holds renderer process settings.
type RendererConfig struct {
	Executable   string   `envconfig:"RENDERER_EXE" default:"webbridge-renderer" yaml:"executable" toml:"executable"`
	Args         []string `envconfig:"RENDERER_ARGS" yaml:"args" toml:"args"`
	ResourceRoot string   `envconfig:"RENDERER_RESOURCES" default:"." yaml:"resource_root" toml:"resource_root"`
	// ConsoleRate caps console.* lines forwarded to the host per second.
	ConsoleRate  float64 `envconfig:"RENDERER_CONSOLE_RATE" default:"50" yaml:"console_rate" toml:"console_rate"`
	ConsoleBurst int     `envconfig:"RENDERER_CONSOLE_BURST" default:"100" yaml:"console_burst" toml:"console_burst"`
	// ScriptTimeout interrupts a single script entry that runs longer; 0 disables.
	ScriptTimeout time.Duration `envconfig:"RENDERER_SCRIPT_TIMEOUT" default:"5s" yaml:"script_timeout" toml:"script_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
}

// MetricsConfig holds prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"webbridge" yaml:"namespace" toml:"namespace"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile reads a YAML or TOML file (chosen by extension) on top of the
// defaults, then applies environment variables that are explicitly set.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// applyEnvOverrides re-processes env vars into a copy and keeps only the
// fields whose variables are actually present, so file values survive
// envconfig defaults.
func applyEnvOverrides(cfg *Config) error {
	var fromEnv Config
	if err := envconfig.Process("", &fromEnv); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	set := func(key string) bool {
		_, ok := os.LookupEnv(key)
		return ok
	}

	if set("PORT") {
		cfg.Server.Port = fromEnv.Server.Port
	}
	if set("HOST") {
		cfg.Server.Host = fromEnv.Server.Host
	}
	if set("SERVER_ENABLED") {
		cfg.Server.Enabled = fromEnv.Server.Enabled
	}
	if set("BRIDGE_QUEUED_DISPATCH") {
		cfg.Bridge.QueuedDispatch = fromEnv.Bridge.QueuedDispatch
	}
	if set("BRIDGE_TICK") {
		cfg.Bridge.TickInterval = fromEnv.Bridge.TickInterval
	}
	if set("BRIDGE_PING_INTERVAL") {
		cfg.Bridge.PingInterval = fromEnv.Bridge.PingInterval
	}
	if set("BRIDGE_LAUNCH_TIMEOUT") {
		cfg.Bridge.LaunchTimeout = fromEnv.Bridge.LaunchTimeout
	}
	if set("BRIDGE_MAX_FRAME") {
		cfg.Bridge.MaxFrameBytes = fromEnv.Bridge.MaxFrameBytes
	}
	if set("BRIDGE_REMOTE_ADDR") {
		cfg.Bridge.RemoteAddr = fromEnv.Bridge.RemoteAddr
	}
	if set("RENDERER_EXE") {
		cfg.Renderer.Executable = fromEnv.Renderer.Executable
	}
	if set("RENDERER_ARGS") {
		cfg.Renderer.Args = fromEnv.Renderer.Args
	}
	if set("RENDERER_RESOURCES") {
		cfg.Renderer.ResourceRoot = fromEnv.Renderer.ResourceRoot
	}
	if set("RENDERER_CONSOLE_RATE") {
		cfg.Renderer.ConsoleRate = fromEnv.Renderer.ConsoleRate
	}
	if set("RENDERER_CONSOLE_BURST") {
		cfg.Renderer.ConsoleBurst = fromEnv.Renderer.ConsoleBurst
	}
	if set("RENDERER_SCRIPT_TIMEOUT") {
		cfg.Renderer.ScriptTimeout = fromEnv.Renderer.ScriptTimeout
	}
	if set("LOG_LEVEL") {
		cfg.Logging.Level = fromEnv.Logging.Level
	}
	if set("LOG_DEV") {
		cfg.Logging.Development = fromEnv.Logging.Development
	}
	if set("METRICS_ENABLED") {
		cfg.Metrics.Enabled = fromEnv.Metrics.Enabled
	}
	if set("METRICS_NAMESPACE") {
		cfg.Metrics.Namespace = fromEnv.Metrics.Namespace
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    "8000",
			Host:    "127.0.0.1",
			Enabled: true,
		},
		Bridge: BridgeConfig{
			QueuedDispatch: false,
			TickInterval:   16 * time.Millisecond,
			PingInterval:   time.Second,
			LaunchTimeout:  60 * time.Second,
			MaxFrameBytes:  4 << 20,
		},
		Renderer: RendererConfig{
			Executable:    "webbridge-renderer",
			ResourceRoot:  ".",
			ConsoleRate:   50,
			ConsoleBurst:  100,
			ScriptTimeout: 5 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "webbridge",
		},
	}
}
