// Package config handles chatsync configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/tOgg1/chatsync/internal/models"
)

// Config is the root configuration structure for chatsync.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// User identifies the local account.
	User UserConfig `yaml:"user" mapstructure:"user"`

	// Conversation settings
	Conversation ConversationConfig `yaml:"conversation" mapstructure:"conversation"`

	// Reconnect settings
	Reconnect ReconnectConfig `yaml:"reconnect" mapstructure:"reconnect"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// ServerConfig describes the chat server endpoint.
type ServerConfig struct {
	// URL is the ws:// or wss:// endpoint.
	URL string `yaml:"url" mapstructure:"url"`

	// DialTimeout bounds the opening handshake.
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`

	// ReadLimit caps a single inbound frame in bytes.
	ReadLimit int64 `yaml:"read_limit" mapstructure:"read_limit"`

	// PingInterval is the keepalive period. Zero disables pings.
	PingInterval time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
}

// UserConfig identifies the local user.
type UserConfig struct {
	ID int64 `yaml:"id" mapstructure:"id"`
}

// ConversationConfig contains per-conversation behavior.
type ConversationConfig struct {
	// PeerID is the other participant.
	PeerID int64 `yaml:"peer_id" mapstructure:"peer_id"`

	// PageLimit is the number of messages per history page.
	PageLimit int `yaml:"page_limit" mapstructure:"page_limit"`

	// MarkReadOnConnect sends a read receipt whenever the channel connects.
	MarkReadOnConnect bool `yaml:"mark_read_on_connect" mapstructure:"mark_read_on_connect"`

	// Dedupe drops messages whose id is already shown.
	Dedupe bool `yaml:"dedupe" mapstructure:"dedupe"`
}

// ReconnectConfig controls the reconnect supervisor.
type ReconnectConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Interval    time.Duration `yaml:"interval" mapstructure:"interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables it.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:          "ws://localhost:8080/chat",
			DialTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			ReadLimit:    1 << 20,
			PingInterval: 30 * time.Second,
		},
		Conversation: ConversationConfig{
			PageLimit: 30,
		},
		Reconnect: ReconnectConfig{
			Enabled:     false,
			MaxAttempts: 5,
			Interval:    2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		TUI: TUIConfig{
			Theme: "default",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	errs := &models.ValidationErrors{}

	if u, err := url.Parse(c.Server.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		errs.Add("server.url", models.ErrInvalidServerURL)
	}
	if c.Server.DialTimeout < 0 {
		errs.AddMessage("server.dial_timeout", "must not be negative")
	}
	if c.Server.WriteTimeout <= 0 {
		errs.AddMessage("server.write_timeout", "must be positive")
	}
	if c.Server.ReadLimit < 0 {
		errs.AddMessage("server.read_limit", "must not be negative")
	}
	if c.Server.PingInterval < 0 {
		errs.AddMessage("server.ping_interval", "must not be negative")
	}
	if c.User.ID <= 0 {
		errs.Add("user.id", models.ErrInvalidUserID)
	}
	if c.Conversation.PeerID <= 0 {
		errs.Add("conversation.peer_id", models.ErrInvalidPeerID)
	} else if c.Conversation.PeerID == c.User.ID {
		errs.Add("conversation.peer_id", models.ErrSelfConversation)
	}
	if c.Conversation.PageLimit <= 0 {
		errs.Add("conversation.page_limit", models.ErrInvalidPageLimit)
	}
	if c.Reconnect.Enabled {
		if c.Reconnect.MaxAttempts < 1 {
			errs.AddMessage("reconnect.max_attempts", "must be at least 1")
		}
		if c.Reconnect.Interval < 10*time.Millisecond {
			errs.AddMessage("reconnect.interval", "must be at least 10ms")
		}
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs.AddMessage("logging.format", fmt.Sprintf("unknown format %q", c.Logging.Format))
	}

	return errs.Err()
}

// ConfigDir returns the directory searched for config.yaml first.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatsync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "chatsync")
}
