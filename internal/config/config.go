// Package config provides configuration management for the netmon daemon.
// It handles loading and parsing the YAML configuration file, applying
// environment overrides for secrets, and validating the settings the
// collectors and stores require.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML
// file with secrets overridable from the environment.
type Config struct {
	// Router holds the consumer router's address and credentials.
	Router DeviceConfig `yaml:"router"`

	// Switch holds the managed switch's address and credentials.
	Switch DeviceConfig `yaml:"switch"`

	// Influx configures the time-series store metrics are written to.
	Influx InfluxConfig `yaml:"influxdb"`

	// LogArchive configures the optional Postgres archive for switch
	// event logs. Disabled when the DSN is empty.
	LogArchive LogArchiveConfig `yaml:"log-archive"`

	// Management configures the local status HTTP endpoint. Disabled
	// when the listen address is empty.
	Management ManagementConfig `yaml:"management"`

	// Logging configures log level and the rotating log file.
	Logging LoggingConfig `yaml:"logging"`

	// CollectionIntervalSeconds is the pause between successful
	// collection cycles. Default 300.
	CollectionIntervalSeconds int `yaml:"collection-interval,omitempty"`

	// RetryIntervalSeconds is the pause after a failed cycle. Default 60.
	RetryIntervalSeconds int `yaml:"retry-interval,omitempty"`

	// RequestDelaySeconds is the pacing delay between consecutive
	// requests to the same device. Default 2.
	RequestDelaySeconds int `yaml:"request-delay,omitempty"`

	// MaxConsecutiveErrors stops the monitor after this many failed
	// cycles in a row. Default 5.
	MaxConsecutiveErrors int `yaml:"max-consecutive-errors,omitempty"`

	// ProbeTimeoutSeconds bounds the session validity probe. Default 5.
	ProbeTimeoutSeconds int `yaml:"probe-timeout,omitempty"`

	// HandshakeTimeoutSeconds bounds a full router login attempt,
	// which includes the firmware's PBKDF2 work. Default 30.
	HandshakeTimeoutSeconds int `yaml:"handshake-timeout,omitempty"`
}

// DeviceConfig identifies one monitored device and its login account.
type DeviceConfig struct {
	// Address is the device host or host:port, without scheme.
	Address string `yaml:"address"`

	// Username is the management account name.
	Username string `yaml:"username"`

	// Password is the management account password. Prefer the
	// ROUTER_PASSWORD / SWITCH_PASSWORD environment variables over
	// putting it in the file.
	Password string `yaml:"password,omitempty"`

	// Enabled turns collection for this device on or off.
	Enabled bool `yaml:"enabled"`
}

// InfluxConfig holds the InfluxDB connection settings.
type InfluxConfig struct {
	// URL is the InfluxDB base URL. Default http://localhost:8086.
	URL string `yaml:"url,omitempty"`

	// Token is the API token; the INFLUXDB_TOKEN environment variable
	// takes precedence.
	Token string `yaml:"token,omitempty"`

	// Org is the InfluxDB organization. Default "myorg".
	Org string `yaml:"org,omitempty"`

	// Bucket receives all measurement points. Default "network_monitoring".
	Bucket string `yaml:"bucket,omitempty"`
}

// LogArchiveConfig holds the optional Postgres event-log archive settings.
type LogArchiveConfig struct {
	// DSN is the Postgres connection string; the POSTGRES_DSN
	// environment variable takes precedence. Empty disables archiving.
	DSN string `yaml:"dsn,omitempty"`

	// Table is the archive table name. Default "switch_logs".
	Table string `yaml:"table,omitempty"`
}

// ManagementConfig holds the local status endpoint settings.
type ManagementConfig struct {
	// Listen is the address the status server binds, e.g.
	// "127.0.0.1:8941". Empty disables the server.
	Listen string `yaml:"listen,omitempty"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is the logrus level name. Default "info".
	Level string `yaml:"level,omitempty"`

	// File is the rotating log file path. Empty logs to stdout only.
	File string `yaml:"file,omitempty"`

	// MaxSizeMB rotates the file beyond this size. Default 10.
	MaxSizeMB int `yaml:"max-size-mb,omitempty"`

	// MaxBackups is the number of rotated files kept. Default 5.
	MaxBackups int `yaml:"max-backups,omitempty"`
}

// Environment variable names honoured by applyEnvOverrides.
const (
	envRouterPassword = "ROUTER_PASSWORD"
	envSwitchPassword = "SWITCH_PASSWORD"
	envInfluxToken    = "INFLUXDB_TOKEN"
	envPostgresDSN    = "POSTGRES_DSN"
)

// LoadConfig reads the YAML file at path, applies environment overrides
// and defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(envRouterPassword); v != "" {
		c.Router.Password = v
	}
	if v := os.Getenv(envSwitchPassword); v != "" {
		c.Switch.Password = v
	}
	if v := os.Getenv(envInfluxToken); v != "" {
		c.Influx.Token = v
	}
	if v := os.Getenv(envPostgresDSN); v != "" {
		c.LogArchive.DSN = v
	}
}

func (c *Config) applyDefaults() {
	if c.CollectionIntervalSeconds <= 0 {
		c.CollectionIntervalSeconds = 300
	}
	if c.RetryIntervalSeconds <= 0 {
		c.RetryIntervalSeconds = 60
	}
	if c.RequestDelaySeconds <= 0 {
		c.RequestDelaySeconds = 2
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = 5
	}
	if c.ProbeTimeoutSeconds <= 0 {
		c.ProbeTimeoutSeconds = 5
	}
	if c.HandshakeTimeoutSeconds <= 0 {
		c.HandshakeTimeoutSeconds = 30
	}
	if c.Influx.URL == "" {
		c.Influx.URL = "http://localhost:8086"
	}
	if c.Influx.Org == "" {
		c.Influx.Org = "myorg"
	}
	if c.Influx.Bucket == "" {
		c.Influx.Bucket = "network_monitoring"
	}
	if c.LogArchive.Table == "" {
		c.LogArchive.Table = "switch_logs"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 5
	}
}

// Validate checks that every enabled component has the settings it needs.
func (c *Config) Validate() error {
	if !c.Router.Enabled && !c.Switch.Enabled {
		return fmt.Errorf("config: neither router nor switch collection is enabled")
	}
	if c.Router.Enabled {
		if err := c.Router.validate("router"); err != nil {
			return err
		}
	}
	if c.Switch.Enabled {
		if err := c.Switch.validate("switch"); err != nil {
			return err
		}
	}
	if c.Influx.Token == "" {
		return fmt.Errorf("config: influxdb token is required (set %s or influxdb.token)", envInfluxToken)
	}
	return nil
}

func (d *DeviceConfig) validate(name string) error {
	if d.Address == "" {
		return fmt.Errorf("config: %s.address is required", name)
	}
	if d.Username == "" {
		return fmt.Errorf("config: %s.username is required", name)
	}
	if d.Password == "" {
		return fmt.Errorf("config: %s password is required (environment or file)", name)
	}
	return nil
}

// CollectionInterval returns the configured cycle interval as a Duration.
func (c *Config) CollectionInterval() time.Duration {
	return time.Duration(c.CollectionIntervalSeconds) * time.Second
}

// RetryInterval returns the configured retry interval as a Duration.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalSeconds) * time.Second
}

// RequestDelay returns the configured inter-request delay as a Duration.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

// ProbeTimeout returns the validity probe timeout as a Duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// HandshakeTimeout returns the login attempt timeout as a Duration.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}
