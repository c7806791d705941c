// Package config provides configuration management for the maildeliver
// and authbrokerd binaries.
package config

import (
	"errors"
	"fmt"
	"time"
)

// FileConfig is the top-level wrapper for the shared configuration file.
// This allows maildeliver and authbrokerd to share a single config file.
type FileConfig struct {
	Server      ServerConfig      `toml:"server"`
	Maildeliver MaildeliverConfig `toml:"maildeliver"`
	Authbrokerd AuthbrokerdConfig `toml:"authbrokerd"`
}

// ServerConfig holds settings shared by both cores.
type ServerConfig struct {
	Hostname string `toml:"hostname"`
	LogLevel string `toml:"log_level"`
	Maildir  string `toml:"maildir"`
}

// Config is the merged, validated configuration used by both binaries.
type Config struct {
	Hostname string `toml:"hostname"`
	LogLevel string `toml:"log_level"`
	Maildir  string `toml:"maildir"`

	Maildeliver MaildeliverConfig `toml:"maildeliver"`
	Authbrokerd AuthbrokerdConfig `toml:"authbrokerd"`
}

// MaildeliverConfig configures the maildir save engine (cmd/maildeliver).
type MaildeliverConfig struct {
	// Maildir overrides the shared maildir root for delivery, when the
	// message is destined for a mailbox outside that root.
	Maildir            string        `toml:"maildir"`
	UidlistLockTimeout string        `toml:"uidlist_lock_timeout"`
	Metrics            MetricsConfig `toml:"metrics"`
}

// AuthbrokerdConfig configures the auth multiplexer daemon (cmd/authbrokerd).
type AuthbrokerdConfig struct {
	SocketDir    string        `toml:"socket_dir"`
	RescanPeriod string        `toml:"rescan_period"`
	Metrics      MetricsConfig `toml:"metrics"`
}

// MetricsConfig holds configuration for a Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Hostname: "localhost",
		LogLevel: "info",
		Maildir:  "/var/mail",
		Maildeliver: MaildeliverConfig{
			UidlistLockTimeout: "30s",
			Metrics: MetricsConfig{
				Enabled: false,
				Address: ":9101",
				Path:    "/metrics",
			},
		},
		Authbrokerd: AuthbrokerdConfig{
			SocketDir:    "/var/run/authmux",
			RescanPeriod: "1s",
			Metrics: MetricsConfig{
				Enabled: false,
				Address: ":9102",
				Path:    "/metrics",
			},
		},
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}

	if c.Maildir == "" {
		return errors.New("maildir is required")
	}

	if c.Maildeliver.UidlistLockTimeout != "" {
		if _, err := time.ParseDuration(c.Maildeliver.UidlistLockTimeout); err != nil {
			return fmt.Errorf("invalid maildeliver uidlist_lock_timeout: %w", err)
		}
	}

	if c.Authbrokerd.SocketDir == "" {
		return errors.New("authbrokerd socket_dir is required")
	}

	if c.Authbrokerd.RescanPeriod != "" {
		if _, err := time.ParseDuration(c.Authbrokerd.RescanPeriod); err != nil {
			return fmt.Errorf("invalid authbrokerd rescan_period: %w", err)
		}
	}

	if err := c.Maildeliver.Metrics.validate("maildeliver"); err != nil {
		return err
	}
	if err := c.Authbrokerd.Metrics.validate("authbrokerd"); err != nil {
		return err
	}

	return nil
}

func (m *MetricsConfig) validate(section string) error {
	if !m.Enabled {
		return nil
	}
	if m.Address == "" {
		return fmt.Errorf("%s: metrics address is required when metrics are enabled", section)
	}
	if m.Path == "" {
		return fmt.Errorf("%s: metrics path is required when metrics are enabled", section)
	}
	return nil
}

// LockTimeout returns the uidlist lock timeout as a time.Duration.
// Returns 30 seconds if not configured or invalid.
func (m *MaildeliverConfig) LockTimeout() time.Duration {
	if m.UidlistLockTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(m.UidlistLockTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// RescanInterval returns the socket-directory rescan period as a
// time.Duration. Returns 1 second if not configured or invalid.
func (a *AuthbrokerdConfig) RescanInterval() time.Duration {
	if a.RescanPeriod == "" {
		return time.Second
	}
	d, err := time.ParseDuration(a.RescanPeriod)
	if err != nil {
		return time.Second
	}
	return d
}
