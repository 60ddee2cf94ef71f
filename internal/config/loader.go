package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/nalabelle/miniflux-filter/internal/constants"
)

// LoadConfig reads an optional YAML config file and applies environment
// overrides. The MINIFLUX_* variables match the names the original deployment
// docs use, so a plain env-only setup keeps working without a file.
func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Miniflux.URL = strings.TrimRight(cfg.Miniflux.URL, "/")

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("miniflux.url", "MINIFLUX_URL")
	viper.BindEnv("miniflux.api_token", "MINIFLUX_API_TOKEN")
	viper.BindEnv("miniflux.request_timeout", "MINIFLUX_REQUEST_TIMEOUT")

	viper.BindEnv("rules.dir", "MINIFLUX_FILTER_RULES_DIR")

	viper.BindEnv("sync.poll_interval", "MINIFLUX_FILTER_POLL_INTERVAL")
	viper.BindEnv("sync.max_concurrent", "MINIFLUX_FILTER_MAX_CONCURRENT")

	viper.BindEnv("web.enabled", "MINIFLUX_FILTER_WEB_ENABLED")
	viper.BindEnv("web.port", "MINIFLUX_FILTER_WEB_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")
}

func setDefaults() {
	viper.SetDefault("miniflux.request_timeout", constants.DefaultHTTPTimeout)
	viper.SetDefault("miniflux.requests_per_sec", 5.0)
	viper.SetDefault("miniflux.burst", 10)

	viper.SetDefault("rules.dir", "./rules")

	viper.SetDefault("sync.poll_interval", constants.DefaultPollInterval)
	viper.SetDefault("sync.max_concurrent", constants.DefaultMaxConcurrent)
	viper.SetDefault("sync.activity_limit", constants.DefaultActivityBuffer)

	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.port", 8080)
	viper.SetDefault("web.rate_limit.enabled", false)
	viper.SetDefault("web.rate_limit.rps", 10.0)
	viper.SetDefault("web.rate_limit.burst", 20)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("breaker.enabled", true)
	viper.SetDefault("breaker.max_requests", 3)
	viper.SetDefault("breaker.interval", "60s")
	viper.SetDefault("breaker.timeout", "60s")
}
