package config

import "time"

// Database drivers understood by the application.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	DatabaseDriver string `mapstructure:"database_driver" yaml:"database_driver"`
	DatabasePath   string `mapstructure:"database_path" yaml:"database_path"`
	DatabaseURL    string `mapstructure:"database_url" yaml:"database_url"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	MaxMessageBytes int `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`

	// Live delivery tuning.
	SendQueueSize   int           `mapstructure:"send_queue_size" yaml:"send_queue_size"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	NotifyWorkers   int           `mapstructure:"notify_workers" yaml:"notify_workers"`
	NotifyBacklog   int           `mapstructure:"notify_backlog" yaml:"notify_backlog"`
	RosterCacheSize int           `mapstructure:"roster_cache_size" yaml:"roster_cache_size"`
	WSRequireToken  bool          `mapstructure:"ws_require_token" yaml:"ws_require_token"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`

	MetricsEnabled bool `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabaseDriver:    DriverSQLite,
		DatabasePath:      "wiremsg.db",
		JWTSecret:         "change-me",
		JWTIssuer:         "wiremsg",
		JWTAudience:       "wiremsg-clients",
		JWTTTL:            24 * time.Hour,
		MaxMessageBytes:   4096,
		SendQueueSize:     32,
		WriteTimeout:      5 * time.Second,
		NotifyWorkers:     4,
		NotifyBacklog:     1024,
		RosterCacheSize:   1024,
		RateLimitRPS:      10,
		RateLimitBurst:    20,
		MetricsEnabled:    true,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabaseDriver != "" {
		c.DatabaseDriver = other.DatabaseDriver
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.DatabaseURL != "" {
		c.DatabaseURL = other.DatabaseURL
	}
}
