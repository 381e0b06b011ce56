package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
	DriverMemory   = "memory"
)

// Supported position providers.
const (
	ProviderFlightradar24 = "flightradar24"
	ProviderAirplanesLive = "airplaneslive"
	ProviderOpenSky       = "opensky"
	ProviderMock          = "mock"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Source   SourceConfig   `json:"source" yaml:"source"`
	Tracker  TrackerConfig  `json:"tracker" yaml:"tracker"`
	Alerts   AlertsConfig   `json:"alerts" yaml:"alerts"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port" yaml:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host" yaml:"host"`

	ReadTimeoutSeconds     int `json:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int `json:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`

	// AllowedOrigins lists CORS origins; empty allows any origin
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig contains flight store settings.
type DatabaseConfig struct {
	// Driver is the store backend: postgres, bolt or memory
	Driver string `json:"driver" yaml:"driver"`

	// Host is the database server hostname
	Host string `json:"host" yaml:"host"`

	// Port is the database server port
	Port int `json:"port" yaml:"port"`

	// Database is the database name
	Database string `json:"database" yaml:"database"`

	// Username for database authentication
	Username string `json:"username" yaml:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password" yaml:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode" yaml:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns" yaml:"max_idle_conns"`

	// BoltPath is the database file used by the bolt driver
	BoltPath string `json:"bolt_path" yaml:"bolt_path"`
}

// SourceConfig selects and tunes the live position provider.
type SourceConfig struct {
	// Provider is flightradar24, airplaneslive, opensky or mock
	Provider string `json:"provider" yaml:"provider"`

	// BaseURL overrides the provider's default API address
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKey is the bearer token for providers that require one
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// TimeoutSeconds bounds one whole fetch, retries included
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`

	// RequestsPerMinute paces outgoing requests; 0 disables pacing
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`

	// RetryAttempts is the number of retries after the first request
	RetryAttempts int `json:"retry_attempts" yaml:"retry_attempts"`

	// Bounds restricts fetched positions; nil means everything available
	Bounds *BoundsConfig `json:"bounds,omitempty" yaml:"bounds,omitempty"`

	// Region is the search circle airplanes.live uses when Bounds is nil
	Region RegionConfig `json:"region" yaml:"region"`

	// MockFlights is the size of the mock provider's fleet
	MockFlights int `json:"mock_flights" yaml:"mock_flights"`

	// MockSeed seeds the mock fleet; 0 picks a random seed
	MockSeed int64 `json:"mock_seed" yaml:"mock_seed"`
}

// Timeout returns the fetch timeout.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// BoundsConfig is a geographic bounding box in decimal degrees.
type BoundsConfig struct {
	North float64 `json:"north" yaml:"north"`
	South float64 `json:"south" yaml:"south"`
	West  float64 `json:"west" yaml:"west"`
	East  float64 `json:"east" yaml:"east"`
}

// RegionConfig is a circular search area.
type RegionConfig struct {
	// Name is a friendly identifier for this region
	Name string `json:"name" yaml:"name"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude" yaml:"latitude"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude" yaml:"longitude"`

	// RadiusNM is the search radius in nautical miles (max 250)
	RadiusNM float64 `json:"radius_nm" yaml:"radius_nm"`
}

// TrackerConfig controls the reconciliation cycle.
type TrackerConfig struct {
	// IntervalSeconds is the time between ticks
	IntervalSeconds int `json:"interval_seconds" yaml:"interval_seconds"`

	// ShutdownGraceSeconds bounds how long shutdown waits for an in-flight tick
	ShutdownGraceSeconds int `json:"shutdown_grace_seconds" yaml:"shutdown_grace_seconds"`

	// SimulatorSeed seeds the degraded-mode simulator; 0 picks a random seed
	SimulatorSeed int64 `json:"simulator_seed" yaml:"simulator_seed"`
}

// Interval returns the tick interval.
func (t TrackerConfig) Interval() time.Duration {
	return time.Duration(t.IntervalSeconds) * time.Second
}

// ShutdownGrace returns how long shutdown waits for an in-flight tick.
func (t TrackerConfig) ShutdownGrace() time.Duration {
	return time.Duration(t.ShutdownGraceSeconds) * time.Second
}

// AlertsConfig contains operational alert thresholds.
type AlertsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// DelayThresholdMinutes is how late a departure may be before alerting
	DelayThresholdMinutes int `json:"delay_threshold_minutes" yaml:"delay_threshold_minutes"`

	// HighSeverityMinutes raises the alert severity from MEDIUM to HIGH
	HighSeverityMinutes int `json:"high_severity_minutes" yaml:"high_severity_minutes"`

	// DesktopNotifications also shows alerts as desktop notifications
	DesktopNotifications bool `json:"desktop_notifications" yaml:"desktop_notifications"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level"`

	// JSON switches from console to JSON output
	JSON bool `json:"json" yaml:"json"`
}

// Load reads configuration from a JSON or YAML file, chosen by extension.
// If the file doesn't exist, the defaults are used. A .env file in the
// working directory is loaded before environment overrides are applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := unmarshal(path, data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	// A missing .env is normal outside development
	_ = godotenv.Load()

	cfg.applyEnvironmentOverrides()

	return cfg, nil
}

// Save writes the configuration to a JSON or YAML file, chosen by extension.
func (c *Config) Save(path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                   "8080",
			Host:                   "0.0.0.0",
			ReadTimeoutSeconds:     15,
			WriteTimeoutSeconds:    15,
			ShutdownTimeoutSeconds: 30,
		},
		Database: DatabaseConfig{
			Driver:       DriverPostgres,
			Host:         "localhost",
			Port:         5432,
			Database:     "fleetwatch",
			Username:     "fleetwatch",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			BoltPath:     "fleetwatch.db",
		},
		Source: SourceConfig{
			Provider:          ProviderMock,
			TimeoutSeconds:    10,
			RequestsPerMinute: 30,
			RetryAttempts:     2,
			Region: RegionConfig{
				Name:      "Continental US",
				Latitude:  39.8283,
				Longitude: -98.5795,
				RadiusNM:  250,
			},
			MockFlights: 50,
		},
		Tracker: TrackerConfig{
			IntervalSeconds:      30,
			ShutdownGraceSeconds: 10,
		},
		Alerts: AlertsConfig{
			Enabled:               true,
			DelayThresholdMinutes: 15,
			HighSeverityMinutes:   30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverBolt, DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == DriverBolt && c.Database.BoltPath == "" {
		return fmt.Errorf("database.bolt_path is required for the bolt driver")
	}

	switch c.Source.Provider {
	case ProviderFlightradar24, ProviderAirplanesLive, ProviderOpenSky, ProviderMock:
	default:
		return fmt.Errorf("unknown source provider %q", c.Source.Provider)
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be positive, got %d", c.Source.TimeoutSeconds)
	}
	if c.Source.RequestsPerMinute < 0 || c.Source.RetryAttempts < 0 {
		return fmt.Errorf("source.requests_per_minute and source.retry_attempts must not be negative")
	}
	if b := c.Source.Bounds; b != nil {
		if b.North < b.South {
			return fmt.Errorf("source.bounds north (%v) is below south (%v)", b.North, b.South)
		}
		if b.East < b.West {
			return fmt.Errorf("source.bounds east (%v) is west of west (%v)", b.East, b.West)
		}
		if b.North > 90 || b.South < -90 || b.West < -180 || b.East > 180 {
			return fmt.Errorf("source.bounds out of range")
		}
	}

	if c.Tracker.IntervalSeconds <= 0 {
		return fmt.Errorf("tracker.interval_seconds must be positive, got %d", c.Tracker.IntervalSeconds)
	}
	if c.Tracker.ShutdownGraceSeconds < 0 {
		return fmt.Errorf("tracker.shutdown_grace_seconds must not be negative")
	}

	if c.Alerts.DelayThresholdMinutes < 0 || c.Alerts.HighSeverityMinutes < c.Alerts.DelayThresholdMinutes {
		return fmt.Errorf("alerts thresholds must satisfy 0 <= delay_threshold_minutes <= high_severity_minutes")
	}

	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("FLEETWATCH_PORT"); port != "" {
		c.Server.Port = port
	}
	if driver := os.Getenv("FLEETWATCH_DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if host := os.Getenv("FLEETWATCH_DB_HOST"); host != "" {
		c.Database.Host = host
	}
	if dbPassword := os.Getenv("FLEETWATCH_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if provider := os.Getenv("FLEETWATCH_SOURCE_PROVIDER"); provider != "" {
		c.Source.Provider = provider
	}
	// FLIGHTRADAR_API_KEY is the name existing deployments already export
	if apiKey := os.Getenv("FLIGHTRADAR_API_KEY"); apiKey != "" {
		c.Source.APIKey = apiKey
	}
	if apiKey := os.Getenv("FLEETWATCH_SOURCE_API_KEY"); apiKey != "" {
		c.Source.APIKey = apiKey
	}
	if interval := os.Getenv("FLEETWATCH_TRACKER_INTERVAL"); interval != "" {
		if v, err := strconv.Atoi(interval); err == nil {
			c.Tracker.IntervalSeconds = v
		}
	}
	if level := os.Getenv("FLEETWATCH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
