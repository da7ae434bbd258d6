package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents application configuration loaded from environment
// variables, optionally overlaid by a YAML file.
type Config struct {
	AppEnv      string `yaml:"app_env"`
	LogLevel    string `yaml:"log_level"`
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`

	GeminiAPIKey  string `yaml:"gemini_api_key"`
	GeminiBaseURL string `yaml:"gemini_base_url"`
	VeoModel      string `yaml:"veo_model"`
	VeoResolution string `yaml:"veo_resolution"`
	VeoBackend    string `yaml:"veo_backend"`

	PollInterval  time.Duration `yaml:"-"`
	MaxWait       time.Duration `yaml:"-"`
	MaxConcurrent int           `yaml:"max_concurrent"`

	StorageDriver   string   `yaml:"storage_driver"`
	StoragePath     string   `yaml:"storage_path"`
	SupabaseURL     string   `yaml:"supabase_url"`
	SupabaseKey     string   `yaml:"supabase_service_role_key"`
	SupabaseBucket  string   `yaml:"supabase_bucket"`
	HistorySize     int      `yaml:"history_size"`
	CORSOrigins     []string `yaml:"cors_allowed_origins"`
	RateLimitPerMin int      `yaml:"rate_limit_per_minute"`

	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	HTTPReadTimeout  time.Duration `yaml:"-"`
	HTTPWriteTimeout time.Duration `yaml:"-"`
	HTTPIdleTimeout  time.Duration `yaml:"-"`
}

// fileConfig mirrors the YAML layout. Durations are expressed in seconds so
// files stay symmetrical with the environment variables.
type fileConfig struct {
	Config               `yaml:",inline"`
	PollIntervalSeconds  int `yaml:"poll_interval_seconds"`
	MaxWaitSeconds       int `yaml:"max_wait_seconds"`
	HTTPReadTimeoutSecs  int `yaml:"http_read_timeout_seconds"`
	HTTPWriteTimeoutSecs int `yaml:"http_write_timeout_seconds"`
	HTTPIdleTimeoutSecs  int `yaml:"http_idle_timeout_seconds"`
}

const (
	BackendREST = "rest"
	BackendSDK  = "sdk"

	StorageMemory     = "memory"
	StorageFilesystem = "filesystem"
	StorageSupabase   = "supabase"
)

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. When CONFIG_FILE is set the file is applied on top.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		GeminiAPIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		VeoModel:          getEnv("VEO_MODEL", "veo-3.1-fast-generate-preview"),
		VeoResolution:     getEnv("VEO_RESOLUTION", "720p"),
		VeoBackend:        strings.ToLower(getEnv("VEO_BACKEND", BackendREST)),
		PollInterval:      time.Second * time.Duration(getEnvInt("GENERATION_POLL_INTERVAL_SECONDS", 5)),
		MaxWait:           time.Second * time.Duration(getEnvInt("GENERATION_MAX_WAIT_SECONDS", 600)),
		MaxConcurrent:     getEnvInt("GENERATION_MAX_CONCURRENT", 0),
		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", StorageMemory)),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		SupabaseURL:       os.Getenv("SUPABASE_URL"),
		SupabaseKey:       os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:    getEnv("SUPABASE_BUCKET", "videos"),
		HistorySize:       getEnvInt("HISTORY_SIZE", 15),
		CORSOrigins:       splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 660)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyFile overlays non-zero values from a YAML file.
func (c *Config) ApplyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	overlay := fc.Config

	setString(&c.AppEnv, overlay.AppEnv)
	setString(&c.LogLevel, overlay.LogLevel)
	setString(&c.Port, overlay.Port)
	setString(&c.DatabaseURL, overlay.DatabaseURL)
	setString(&c.GeminiAPIKey, strings.TrimSpace(overlay.GeminiAPIKey))
	setString(&c.GeminiBaseURL, overlay.GeminiBaseURL)
	setString(&c.VeoModel, overlay.VeoModel)
	setString(&c.VeoResolution, overlay.VeoResolution)
	setString(&c.VeoBackend, strings.ToLower(overlay.VeoBackend))
	setString(&c.StorageDriver, strings.ToLower(overlay.StorageDriver))
	setString(&c.StoragePath, overlay.StoragePath)
	setString(&c.SupabaseURL, overlay.SupabaseURL)
	setString(&c.SupabaseKey, overlay.SupabaseKey)
	setString(&c.SupabaseBucket, overlay.SupabaseBucket)
	if overlay.MaxConcurrent > 0 {
		c.MaxConcurrent = overlay.MaxConcurrent
	}
	if overlay.HistorySize > 0 {
		c.HistorySize = overlay.HistorySize
	}
	if overlay.RateLimitPerMin > 0 {
		c.RateLimitPerMin = overlay.RateLimitPerMin
	}
	if overlay.TrustProxyHeaders {
		c.TrustProxyHeaders = true
	}
	if len(overlay.CORSOrigins) > 0 {
		c.CORSOrigins = overlay.CORSOrigins
	}
	setSeconds(&c.PollInterval, fc.PollIntervalSeconds)
	setSeconds(&c.MaxWait, fc.MaxWaitSeconds)
	setSeconds(&c.HTTPReadTimeout, fc.HTTPReadTimeoutSecs)
	setSeconds(&c.HTTPWriteTimeout, fc.HTTPWriteTimeoutSecs)
	setSeconds(&c.HTTPIdleTimeout, fc.HTTPIdleTimeoutSecs)
	return nil
}

// Validate rejects combinations the wiring in cmd/ cannot honour.
func (c *Config) Validate() error {
	switch c.VeoBackend {
	case BackendREST, BackendSDK:
	default:
		return fmt.Errorf("VEO_BACKEND must be %q or %q, got %q", BackendREST, BackendSDK, c.VeoBackend)
	}
	switch c.StorageDriver {
	case StorageMemory, StorageFilesystem:
	case StorageSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for the supabase storage driver")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("GENERATION_POLL_INTERVAL_SECONDS must be positive")
	}
	if c.MaxWait <= 0 {
		return fmt.Errorf("GENERATION_MAX_WAIT_SECONDS must be positive")
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("GENERATION_MAX_CONCURRENT must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func setSeconds(dst *time.Duration, secs int) {
	if secs > 0 {
		*dst = time.Duration(secs) * time.Second
	}
}
