package config

import (
	"fmt"
	"strings"
)

func ValidateStatic(cfg *Config) error {
	if cfg.Miniflux.URL == "" {
		return fmt.Errorf("miniflux.url is required (MINIFLUX_URL)")
	}
	if !strings.HasPrefix(cfg.Miniflux.URL, "http://") && !strings.HasPrefix(cfg.Miniflux.URL, "https://") {
		return fmt.Errorf("miniflux.url must start with http:// or https://")
	}
	if cfg.Miniflux.APIToken == "" {
		return fmt.Errorf("miniflux.api_token is required (MINIFLUX_API_TOKEN)")
	}
	if cfg.Rules.Dir == "" {
		return fmt.Errorf("rules.dir must not be empty")
	}
	if cfg.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync.poll_interval must be positive")
	}
	if cfg.Sync.MaxConcurrent <= 0 {
		return fmt.Errorf("sync.max_concurrent must be positive")
	}
	if cfg.Web.Enabled && (cfg.Web.Port <= 0 || cfg.Web.Port > 65535) {
		return fmt.Errorf("web.port must be a valid port number")
	}
	return nil
}
