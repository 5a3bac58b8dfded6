package config

import (
	"fmt"
	"strings"

	"el2mcp/internal/model"
	"el2mcp/internal/output"
)

// Validate checks the loaded configuration for fatal problems. It is called
// once at startup; a failure here aborts the process before any listener is
// bound.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%w: ELEVENLABS_API_KEY is required", model.ErrInvalidConfiguration)
	}

	mode, err := output.ParseMode(string(cfg.OutputMode))
	if err != nil {
		return err
	}
	cfg.OutputMode = mode

	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", model.ErrInvalidConfiguration, cfg.Port)
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return fmt.Errorf("%w: rate limits must be non-negative", model.ErrInvalidConfiguration)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return fmt.Errorf("%w: base URL must not be empty", model.ErrInvalidConfiguration)
	}
	return nil
}

// ListenAddr joins Host and Port into a dialable address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
