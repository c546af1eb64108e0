// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, database paths, advisory-provider selection, rate limits,
// share-pass policy, and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AdvisoryConfig defines the external advisory provider settings. Selection
// is resolved once at load time — explicit AI_PROVIDER wins; "local",
// "none", or "offline" disables advisory calls; with no explicit choice the
// provider whose credential is present is used, Gemini preferred. An empty
// Selection means the deterministic engine handles everything.
type AdvisoryConfig struct {
	Selection      string        // "", "openai", or "gemini" (resolved)
	OpenAIKey      string        // OPENAI_API_KEY
	OpenAIModel    string        // OPENAI_MODEL
	GeminiKey      string        // GEMINI_API_KEY
	GeminiEndpoint string        // GEMINI_ENDPOINT
	Timeout        time.Duration // ADVISORY_TIMEOUT per provider call
}

// RateLimitConfig defines the fixed-window limits applied per operation.
// Windows are per (operation, actor) keys; see internal/ratelimit.
type RateLimitConfig struct {
	TriageMax    int           // requests per window on POST /triage
	TriageWindow time.Duration //
	ShareMax     int           // requests per window on share-pass issuance
	ShareWindow  time.Duration //
	ChatMax      int           // requests per window on the assistant
	ChatWindow   time.Duration //
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath       string        // SQLite path
	SharePassTTL time.Duration // pass validity from issuance (fixed policy: 30m)
	JWTSecret    string        // HMAC secret for the identity middleware

	// Advisory provider
	Advisory AdvisoryConfig

	// Per-operation fixed-window limits
	RateLimits RateLimitConfig

	// Edge token-bucket limiter (abuse/cost protection in front of all routes)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:       getenv("DB_PATH", "health.db"),
		SharePassTTL: getdur("SHARE_PASS_TTL", 30*time.Minute),
		JWTSecret:    getenv("JWT_SECRET", "dev-insecure-jwt-secret"),

		// Advisory provider
		Advisory: AdvisoryConfig{
			OpenAIKey:      getenv("OPENAI_API_KEY", ""),
			OpenAIModel:    getenv("OPENAI_MODEL", ""),
			GeminiKey:      getenv("GEMINI_API_KEY", ""),
			GeminiEndpoint: getenv("GEMINI_ENDPOINT", ""),
			Timeout:        getdur("ADVISORY_TIMEOUT", 12*time.Second),
		},

		// Per-operation limits (requests per fixed window)
		RateLimits: RateLimitConfig{
			TriageMax:    getint("TRIAGE_RATE_MAX", 40),
			TriageWindow: getdur("TRIAGE_RATE_WINDOW", time.Minute),
			ShareMax:     getint("SHARE_RATE_MAX", 20),
			ShareWindow:  getdur("SHARE_RATE_WINDOW", time.Minute),
			ChatMax:      getint("CHAT_RATE_MAX", 60),
			ChatWindow:   getdur("CHAT_RATE_WINDOW", time.Minute),
		},

		// Edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-triage-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.Advisory.Selection = resolveProvider(
		strings.ToLower(getenv("AI_PROVIDER", "")),
		cfg.Advisory.OpenAIKey,
		cfg.Advisory.GeminiKey,
	)

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.SharePassTTL <= 0 {
		return cfg, errors.New("SHARE_PASS_TTL must be > 0")
	}
	if cfg.Advisory.Timeout <= 0 {
		return cfg, errors.New("ADVISORY_TIMEOUT must be > 0")
	}
	if cfg.RateLimits.TriageMax < 1 || cfg.RateLimits.ShareMax < 1 || cfg.RateLimits.ChatMax < 1 {
		return cfg, errors.New("per-operation rate limits must be >= 1")
	}
	if cfg.RateLimits.TriageWindow <= 0 || cfg.RateLimits.ShareWindow <= 0 || cfg.RateLimits.ChatWindow <= 0 {
		return cfg, errors.New("per-operation rate windows must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// resolveProvider turns the AI_PROVIDER value plus the available credentials
// into an explicit selection. The result is computed exactly once here so
// call sites never re-infer it from the environment.
func resolveProvider(explicit, openAIKey, geminiKey string) string {
	switch explicit {
	case "local", "none", "offline":
		return ""
	case "openai":
		return "openai"
	case "gemini":
		return "gemini"
	}
	// No explicit choice: pick whichever credential is present.
	if geminiKey != "" {
		return "gemini"
	}
	if openAIKey != "" {
		return "openai"
	}
	return ""
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
