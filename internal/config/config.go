package config

import (
	"time"
)

type Config struct {
	Miniflux MinifluxConfig
	Rules    RulesConfig
	Sync     SyncConfig
	Web      WebConfig
	Logging  LoggingConfig
	Breaker  BreakerConfig
}

type MinifluxConfig struct {
	URL            string        `mapstructure:"url"`
	APIToken       string        `mapstructure:"api_token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	Burst          int           `mapstructure:"burst"`
}

type RulesConfig struct {
	Dir string `mapstructure:"dir"`
}

type SyncConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	ActivityLimit int           `mapstructure:"activity_limit"`
}

type WebConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	Port      int             `mapstructure:"port"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests uint32        `mapstructure:"max_requests"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
