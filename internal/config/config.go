package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// AuthTimeout closes sessions that never authenticate. Zero disables
	// the watchdog.
	AuthTimeout time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"`

	// SharedSecret is compared against the Token field of auth actions.
	SharedSecret string `mapstructure:"shared_secret" yaml:"shared_secret"`

	// APIKey guards the administrative HTTP surface.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`

	// MessageRateLimit caps inbound frames per connection per minute. Zero
	// disables the limiter.
	MessageRateLimit int `mapstructure:"message_rate_limit" yaml:"message_rate_limit"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	HistoryDir       string `mapstructure:"history_dir" yaml:"history_dir"`
	HistoryQueueSize int    `mapstructure:"history_queue_size" yaml:"history_queue_size"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		AuthTimeout:       30 * time.Second,
		SharedSecret:      "your_auth_token_here",
		APIKey:            "",
		MessageRateLimit:  0,
		JWTSecret:         "change-me",
		JWTIssuer:         "chanrelay",
		JWTAudience:       "chanrelay-admin",
		JWTTTL:            24 * time.Hour,
		DatabasePath:      "chanrelay.db",
		HistoryDir:        "channels",
		HistoryQueueSize:  256,
		LogLevel:          "info",
	}
}
