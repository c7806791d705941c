package config

import (
	"flag"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values shared by maildeliver and authbrokerd.
type Flags struct {
	ConfigPath         string
	Hostname           string
	LogLevel           string
	Maildir            string
	UidlistLockTimeout string
	SocketDir          string
	MetricsEnabled     bool
	MetricsAddress     string
	MetricsPath        string
}

// ParseFlags parses command-line flags and returns a Flags struct.
func ParseFlags(defaultConfigPath string) *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", defaultConfigPath, "Path to configuration file")
	flag.StringVar(&f.Hostname, "hostname", "", "Server hostname")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.Maildir, "maildir", "", "Maildir root path for message storage")
	flag.StringVar(&f.UidlistLockTimeout, "uidlist-lock-timeout", "", "UID-list lock acquisition timeout")
	flag.StringVar(&f.SocketDir, "socket-dir", "", "Directory of auth worker unix sockets")
	flag.BoolVar(&f.MetricsEnabled, "metrics", false, "Enable the Prometheus metrics endpoint")
	flag.StringVar(&f.MetricsAddress, "metrics-address", "", "Metrics listen address")
	flag.StringVar(&f.MetricsPath, "metrics-path", "", "Metrics HTTP path")

	flag.Parse()
	return f
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
// The loader reads from both [server] (shared settings) and the
// per-binary sections, with the per-binary sections taking precedence
// over [server] where they overlap.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	cfg = mergeServerConfig(cfg, fileConfig.Server)
	cfg = mergeMaildeliverConfig(cfg, fileConfig.Maildeliver)
	cfg = mergeAuthbrokerdConfig(cfg, fileConfig.Authbrokerd)

	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-zero/non-empty flag values override config file values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.Hostname != "" {
		cfg.Hostname = f.Hostname
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.Maildir != "" {
		cfg.Maildir = f.Maildir
		cfg.Maildeliver.Maildir = f.Maildir
	}
	if f.UidlistLockTimeout != "" {
		cfg.Maildeliver.UidlistLockTimeout = f.UidlistLockTimeout
	}
	if f.SocketDir != "" {
		cfg.Authbrokerd.SocketDir = f.SocketDir
	}
	if f.MetricsEnabled {
		cfg.Maildeliver.Metrics.Enabled = true
		cfg.Authbrokerd.Metrics.Enabled = true
	}
	if f.MetricsAddress != "" {
		cfg.Maildeliver.Metrics.Address = f.MetricsAddress
		cfg.Authbrokerd.Metrics.Address = f.MetricsAddress
	}
	if f.MetricsPath != "" {
		cfg.Maildeliver.Metrics.Path = f.MetricsPath
		cfg.Authbrokerd.Metrics.Path = f.MetricsPath
	}

	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags,
// then applies flag overrides.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	return ApplyFlags(cfg, f), nil
}

func mergeServerConfig(dst Config, src ServerConfig) Config {
	if src.Hostname != "" {
		dst.Hostname = src.Hostname
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.Maildir != "" {
		dst.Maildir = src.Maildir
	}
	return dst
}

func mergeMaildeliverConfig(dst Config, src MaildeliverConfig) Config {
	if src.Maildir != "" {
		dst.Maildeliver.Maildir = src.Maildir
	}
	if src.UidlistLockTimeout != "" {
		dst.Maildeliver.UidlistLockTimeout = src.UidlistLockTimeout
	}
	dst.Maildeliver.Metrics = mergeMetricsConfig(dst.Maildeliver.Metrics, src.Metrics)
	return dst
}

func mergeAuthbrokerdConfig(dst Config, src AuthbrokerdConfig) Config {
	if src.SocketDir != "" {
		dst.Authbrokerd.SocketDir = src.SocketDir
	}
	if src.RescanPeriod != "" {
		dst.Authbrokerd.RescanPeriod = src.RescanPeriod
	}
	dst.Authbrokerd.Metrics = mergeMetricsConfig(dst.Authbrokerd.Metrics, src.Metrics)
	return dst
}

func mergeMetricsConfig(dst, src MetricsConfig) MetricsConfig {
	if src.Enabled {
		dst.Enabled = src.Enabled
	}
	if src.Address != "" {
		dst.Address = src.Address
	}
	if src.Path != "" {
		dst.Path = src.Path
	}
	return dst
}
