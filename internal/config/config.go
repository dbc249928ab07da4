// Package config loads proxy settings from WRAP_MCP_* environment
// variables with CLI flags layered on top by the command package.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/wrapmcp/internal/protocol"
)

// Transport selects the client-facing side.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Defaults.
const (
	DefaultLogSize     = 1000
	DefaultToolTimeout = 30 * time.Second
	DefaultGrace       = 5 * time.Second
	DefaultDebounce    = 2 * time.Second
	DefaultHTTPAddr    = "127.0.0.1:8000"
)

// Config is the full configuration surface of the proxy.
type Config struct {
	Transport       string        `mapstructure:"transport"`
	LogSize         int           `mapstructure:"logsize"`
	ToolTimeout     time.Duration `mapstructure:"tool_timeout"`
	ProtocolVersion string        `mapstructure:"protocol_version"`
	PreserveANSI    bool          `mapstructure:"preserve_ansi"`
	WatchBinary     bool          `mapstructure:"watch_binary"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	Metrics         bool          `mapstructure:"metrics"`
	LogFile         string        `mapstructure:"log_file"`
	LogLevel        string        `mapstructure:"log_level"`
	LogColors       bool          `mapstructure:"log_colors"`
	Grace           time.Duration `mapstructure:"grace"`
	Debounce        time.Duration `mapstructure:"debounce"`

	// Wrappee launch contract, taken from the CLI tail after "--".
	Command string   `mapstructure:"-"`
	Args    []string `mapstructure:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Transport:       TransportStdio,
		LogSize:         DefaultLogSize,
		ToolTimeout:     DefaultToolTimeout,
		ProtocolVersion: protocol.ProtocolVersion,
		HTTPAddr:        DefaultHTTPAddr,
		LogLevel:        "info",
		Grace:           DefaultGrace,
		Debounce:        DefaultDebounce,
	}
}

// Load reads WRAP_MCP_* environment variables over the defaults.
// Recognized variables: WRAP_MCP_TRANSPORT, WRAP_MCP_LOGSIZE,
// WRAP_MCP_TOOL_TIMEOUT (seconds), WRAP_MCP_PROTOCOL_VERSION,
// WRAP_MCP_PRESERVE_ANSI, WRAP_MCP_HTTP_ADDR, WRAP_MCP_METRICS,
// WRAP_MCP_LOG_FILE, WRAP_MCP_LOG_LEVEL, WRAP_MCP_LOG_COLORS.
func Load() (Config, error) {
	def := Default()

	v := viper.New()
	v.SetEnvPrefix("WRAP_MCP")
	v.AutomaticEnv()
	v.SetDefault("transport", def.Transport)
	v.SetDefault("logsize", def.LogSize)
	v.SetDefault("tool_timeout", int(def.ToolTimeout/time.Second))
	v.SetDefault("protocol_version", def.ProtocolVersion)
	v.SetDefault("preserve_ansi", def.PreserveANSI)
	v.SetDefault("http_addr", def.HTTPAddr)
	v.SetDefault("metrics", def.Metrics)
	v.SetDefault("log_file", def.LogFile)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_colors", def.LogColors)

	cfg := def
	cfg.Transport = v.GetString("transport")
	cfg.LogSize = v.GetInt("logsize")
	cfg.ToolTimeout = time.Duration(v.GetInt("tool_timeout")) * time.Second
	cfg.ProtocolVersion = v.GetString("protocol_version")
	cfg.PreserveANSI = v.GetBool("preserve_ansi")
	cfg.HTTPAddr = v.GetString("http_addr")
	cfg.Metrics = v.GetBool("metrics")
	cfg.LogFile = v.GetString("log_file")
	cfg.LogLevel = v.GetString("log_level")
	cfg.LogColors = v.GetBool("log_colors")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the proxy cannot run with.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("invalid transport %q (want %s or %s)", c.Transport, TransportStdio, TransportHTTP)
	}
	if c.LogSize <= 0 {
		return fmt.Errorf("log size must be greater than 0, got %d", c.LogSize)
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("tool timeout must be greater than 0, got %s", c.ToolTimeout)
	}
	if c.ProtocolVersion == "" {
		return fmt.Errorf("protocol version must not be empty")
	}
	return nil
}
