// Package config loads the support-chat service settings from environment
// variables. Every value has a default; Load normalizes and validates the
// result so the rest of the program can trust it.
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

// DBConfig selects the gorm dialector.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // sqlite file
	DSN    string // postgres DSN
}

// ProviderConfig holds upstream language-model credentials and call defaults.
type ProviderConfig struct {
	Default          string // openai|anthropic
	DefaultModel     string
	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	AnthropicBaseURL string
	AnthropicVersion string
	Temperature      float64
	MaxOutputTokens  int
	HTTPTimeout      time.Duration
}

// StreamConfig bounds a single streamed answer.
type StreamConfig struct {
	IdleTimeout time.Duration // max gap between two fragments
	MaxDuration time.Duration // wall clock from first byte
}

// ContextConfig tunes knowledge resolution.
type ContextConfig struct {
	ExactThreshold    float64
	SemanticThreshold float64
	TopK              int
	MaxChars          int
	CacheTTL          time.Duration
	CacheBytes        int64
}

// BillingConfig configures webhook verification and retention.
type BillingConfig struct {
	StripeSecret  string
	GenericSecret string
	Tolerance     time.Duration
	Retention     time.Duration
	SweepInterval time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // must outlive Stream.MaxDuration
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB       DBConfig
	Provider ProviderConfig
	Stream   StreamConfig
	Context  ContextConfig
	Billing  BillingConfig

	// Rate limiting
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
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 120*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "supportchat.db"),
			DSN:    getenv("DB_DSN", ""),
		},

		Provider: ProviderConfig{
			Default:          strings.ToLower(getenv("DEFAULT_PROVIDER", "openai")),
			DefaultModel:     getenv("DEFAULT_MODEL", "gpt-4o-mini"),
			OpenAIKey:        getenv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    strings.TrimRight(getenv("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
			AnthropicKey:     getenv("ANTHROPIC_API_KEY", ""),
			AnthropicBaseURL: strings.TrimRight(getenv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"), "/"),
			AnthropicVersion: getenv("ANTHROPIC_VERSION", "2023-06-01"),
			Temperature:      getfloat("LLM_TEMPERATURE", 0.7),
			MaxOutputTokens:  getint("LLM_MAX_OUTPUT_TOKENS", 1024),
			HTTPTimeout:      getdur("LLM_HTTP_TIMEOUT", 45*time.Second),
		},

		Stream: StreamConfig{
			IdleTimeout: getdur("STREAM_IDLE_TIMEOUT", 10*time.Second),
			MaxDuration: getdur("STREAM_MAX_DURATION", 60*time.Second),
		},

		Context: ContextConfig{
			ExactThreshold:    getfloat("CONTEXT_EXACT_THRESHOLD", 0.8),
			SemanticThreshold: getfloat("CONTEXT_SEMANTIC_THRESHOLD", 0.6),
			TopK:              getint("CONTEXT_TOP_K", 3),
			MaxChars:          getint("CONTEXT_MAX_CHARS", 4000),
			CacheTTL:          getdur("CONTEXT_CACHE_TTL", 5*time.Minute),
			CacheBytes:        int64(getint("CONTEXT_CACHE_BYTES", 32<<20)),
		},

		Billing: BillingConfig{
			StripeSecret:  getenv("STRIPE_WEBHOOK_SECRET", ""),
			GenericSecret: getenv("BILLING_WEBHOOK_SECRET", ""),
			Tolerance:     getdur("WEBHOOK_TOLERANCE", 5*time.Minute),
			Retention:     getdur("WEBHOOK_RETENTION", 90*24*time.Hour),
			SweepInterval: getdur("WEBHOOK_SWEEP_INTERVAL", time.Hour),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-support-chat"),
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
	if cfg.DB.Driver == "sqlite3" {
		cfg.DB.Driver = "sqlite"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

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
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DB_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	switch cfg.Provider.Default {
	case "openai", "anthropic":
	default:
		return cfg, errors.New("DEFAULT_PROVIDER must be one of: openai, anthropic")
	}
	if cfg.Provider.Temperature < 0 || cfg.Provider.Temperature > 2 {
		return cfg, errors.New("LLM_TEMPERATURE must be between 0 and 2")
	}
	if cfg.Provider.MaxOutputTokens < 1 {
		return cfg, errors.New("LLM_MAX_OUTPUT_TOKENS must be >= 1")
	}
	if cfg.Provider.HTTPTimeout <= 0 {
		return cfg, errors.New("LLM_HTTP_TIMEOUT must be > 0")
	}
	if cfg.Stream.IdleTimeout <= 0 || cfg.Stream.MaxDuration <= 0 {
		return cfg, errors.New("stream timeouts must be positive durations")
	}
	if cfg.Stream.IdleTimeout > cfg.Stream.MaxDuration {
		return cfg, errors.New("STREAM_IDLE_TIMEOUT must not exceed STREAM_MAX_DURATION")
	}
	if cfg.Context.ExactThreshold < 0 || cfg.Context.ExactThreshold > 1 ||
		cfg.Context.SemanticThreshold < 0 || cfg.Context.SemanticThreshold > 1 {
		return cfg, errors.New("CONTEXT_*_THRESHOLD must be between 0 and 1")
	}
	if cfg.Context.TopK < 1 {
		return cfg, errors.New("CONTEXT_TOP_K must be >= 1")
	}
	if cfg.Context.MaxChars < 1 {
		return cfg, errors.New("CONTEXT_MAX_CHARS must be >= 1")
	}
	if cfg.Context.CacheTTL < 0 || cfg.Context.CacheBytes < 0 {
		return cfg, errors.New("CONTEXT_CACHE_TTL and CONTEXT_CACHE_BYTES must be >= 0")
	}
	if cfg.Billing.Tolerance < 0 {
		return cfg, errors.New("WEBHOOK_TOLERANCE must be >= 0")
	}
	if cfg.Billing.Retention <= 0 || cfg.Billing.SweepInterval <= 0 {
		return cfg, errors.New("WEBHOOK_RETENTION and WEBHOOK_SWEEP_INTERVAL must be > 0")
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
