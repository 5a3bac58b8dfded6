package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"el2mcp/internal/model"
	"el2mcp/internal/output"
)

// DefaultVoiceID is the voice used when a tool call does not name one.
const DefaultVoiceID = "cgSgspJ2msm6clMCkdW9"

// DefaultBaseURL is the upstream API root.
const DefaultBaseURL = "https://api.elevenlabs.io"

type Config struct {
	// APIKey authenticates against the upstream API. Required.
	APIKey string
	// BaseURL overrides the upstream API root, mainly for tests and proxies.
	BaseURL string
	// VoiceID is the default voice for speech synthesis.
	VoiceID string

	// OutputMode selects file, resource or combined artifact delivery.
	OutputMode output.Mode
	// BasePath is the sandbox root for generated files. Empty means the
	// per-user default directory.
	BasePath string

	Host string
	Port int
	// AllowedOrigins is always initialized with local defaults and then
	// extended via comma-separated origin lists from the environment.
	AllowedOrigins []string

	// RESTAPIKey guards the REST facade. Empty disables REST auth entirely.
	RESTAPIKey string

	// BearerToken guards the MCP endpoints. Empty disables MCP auth.
	BearerToken string

	// LedgerPath is the sqlite database recording generated artifacts.
	// Empty disables the ledger.
	LedgerPath string

	// RateLimitRPS and RateLimitBurst define per-IP token bucket limits
	// applied to non-loopback MCP traffic.
	RateLimitRPS   int
	RateLimitBurst int
}

// fileConfig mirrors Config for the optional TOML config file. Pointers
// distinguish "absent" from "explicitly empty".
type fileConfig struct {
	APIKey         *string  `toml:"api_key"`
	BaseURL        *string  `toml:"base_url"`
	VoiceID        *string  `toml:"voice_id"`
	OutputMode     *string  `toml:"output_mode"`
	BasePath       *string  `toml:"base_path"`
	Host           *string  `toml:"host"`
	Port           *int     `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RESTAPIKey     *string  `toml:"rest_api_key"`
	BearerToken    *string  `toml:"bearer_token"`
	LedgerPath     *string  `toml:"ledger_path"`
	RateLimitRPS   *int     `toml:"rate_limit_rps"`
	RateLimitBurst *int     `toml:"rate_limit_burst"`
}

func Default() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		VoiceID:    DefaultVoiceID,
		OutputMode: output.ModeFiles,
		BasePath:   "",
		Host:       "0.0.0.0",
		Port:       8000,
		AllowedOrigins: []string{
			"http://localhost",
			"http://127.0.0.1",
		},
		RateLimitRPS:   60,
		RateLimitBurst: 20,
	}
}

// Load builds configuration with precedence: defaults → optional TOML file →
// dotenv files → environment. path may be empty; a missing file is not an
// error. The result is not validated; call Validate before use.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := applyFileOverrides(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	// .env.local wins over .env; explicit process env wins over both.
	// godotenv.Load never overwrites variables that are already set.
	for _, p := range []string{".env.local", ".env"} {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err != nil {
				return Config{}, fmt.Errorf("%w: load %s: %v", model.ErrInvalidConfiguration, p, err)
			}
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFileOverrides(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read config file %s: %v", model.ErrInvalidConfiguration, path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("%w: parse config file %s: %v", model.ErrInvalidConfiguration, path, err)
	}

	if fc.APIKey != nil {
		cfg.APIKey = *fc.APIKey
	}
	if fc.BaseURL != nil {
		cfg.BaseURL = *fc.BaseURL
	}
	if fc.VoiceID != nil {
		cfg.VoiceID = *fc.VoiceID
	}
	if fc.OutputMode != nil {
		cfg.OutputMode = output.Mode(*fc.OutputMode)
	}
	if fc.BasePath != nil {
		cfg.BasePath = *fc.BasePath
	}
	if fc.Host != nil {
		cfg.Host = *fc.Host
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeStringSlice(fc.AllowedOrigins)
	}
	if fc.RESTAPIKey != nil {
		cfg.RESTAPIKey = *fc.RESTAPIKey
	}
	if fc.BearerToken != nil {
		cfg.BearerToken = *fc.BearerToken
	}
	if fc.LedgerPath != nil {
		cfg.LedgerPath = *fc.LedgerPath
	}
	if fc.RateLimitRPS != nil {
		cfg.RateLimitRPS = *fc.RateLimitRPS
	}
	if fc.RateLimitBurst != nil {
		cfg.RateLimitBurst = *fc.RateLimitBurst
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ELEVENLABS_API_BASE_URL")); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ELEVENLABS_DEFAULT_VOICE_ID")); v != "" {
		cfg.VoiceID = v
	}
	if v := strings.TrimSpace(os.Getenv("ELEVENLABS_MCP_OUTPUT_MODE")); v != "" {
		cfg.OutputMode = output.Mode(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("ELEVENLABS_MCP_BASE_PATH")); v != "" {
		cfg.BasePath = v
	}
	if v := strings.TrimSpace(os.Getenv("HOST")); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PORT must be an integer, got %q", model.ErrInvalidConfiguration, v)
		}
		cfg.Port = port
	}
	if v, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = MergeAllowedOrigins(cfg.AllowedOrigins, v)
	}
	if v := strings.TrimSpace(os.Getenv("EL2MCP_API_KEY")); v != "" {
		cfg.RESTAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("EL2MCP_BEARER_TOKEN")); v != "" {
		cfg.BearerToken = v
	}
	if v := strings.TrimSpace(os.Getenv("EL2MCP_LEDGER_PATH")); v != "" {
		cfg.LedgerPath = v
	}
	if v := strings.TrimSpace(os.Getenv("EL2MCP_RATE_LIMIT_RPS")); v != "" {
		if rps, err := strconv.Atoi(v); err == nil && rps >= 0 {
			cfg.RateLimitRPS = rps
		}
	}
	if v := strings.TrimSpace(os.Getenv("EL2MCP_RATE_LIMIT_BURST")); v != "" {
		if burst, err := strconv.Atoi(v); err == nil && burst >= 0 {
			cfg.RateLimitBurst = burst
		}
	}
	return nil
}

// MergeAllowedOrigins appends comma-separated origins to an existing
// allowlist, preserving first-seen entries and deduplicating
// case-insensitively.
func MergeAllowedOrigins(existing []string, csv string) []string {
	merged := make([]string, 0, len(existing))
	seen := make(map[string]struct{}, len(existing))

	add := func(origin string) {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			return
		}
		key := strings.ToLower(strings.TrimRight(origin, "/"))
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		merged = append(merged, origin)
	}

	for _, origin := range existing {
		add(origin)
	}
	for _, origin := range strings.Split(csv, ",") {
		add(origin)
	}
	return merged
}

func normalizeStringSlice(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
