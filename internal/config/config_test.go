package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DB.Driver != "sqlite" || cfg.Provider.Default != "openai" {
		t.Fatalf("driver/provider defaults unexpected: %+v %+v", cfg.DB, cfg.Provider)
	}
	if cfg.Stream.IdleTimeout != 10*time.Second || cfg.Stream.MaxDuration != 60*time.Second {
		t.Fatalf("stream defaults unexpected: %+v", cfg.Stream)
	}
	if cfg.Context.ExactThreshold != 0.8 || cfg.Context.SemanticThreshold != 0.6 ||
		cfg.Context.TopK != 3 || cfg.Context.MaxChars != 4000 || cfg.Context.CacheTTL != 5*time.Minute {
		t.Fatalf("context defaults unexpected: %+v", cfg.Context)
	}
	if cfg.WriteTimeout <= cfg.Stream.MaxDuration {
		t.Fatalf("write timeout %v must outlive stream max %v", cfg.WriteTimeout, cfg.Stream.MaxDuration)
	}
}

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // -> release

	t.Setenv("LOG_LEVEL", "warning") // -> warn
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/")

	t.Setenv("DB_DRIVER", "postgresql")
	t.Setenv("DB_DSN", "postgres://u:p@db/app")

	t.Setenv("DEFAULT_PROVIDER", "Anthropic")
	t.Setenv("DEFAULT_MODEL", "claude-3-5-haiku-latest")
	t.Setenv("ANTHROPIC_BASE_URL", "http://upstream/")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("LLM_MAX_OUTPUT_TOKENS", "256")

	t.Setenv("STREAM_IDLE_TIMEOUT", "2s")
	t.Setenv("STREAM_MAX_DURATION", "20s")
	t.Setenv("CONTEXT_TOP_K", "5")
	t.Setenv("CONTEXT_MAX_CHARS", "1000")

	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec")
	t.Setenv("WEBHOOK_RETENTION", "720h")

	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DB.Driver != "postgres" || cfg.DB.DSN != "postgres://u:p@db/app" {
		t.Fatalf("db unexpected: %+v", cfg.DB)
	}
	if cfg.Provider.Default != "anthropic" || cfg.Provider.AnthropicBaseURL != "http://upstream" ||
		cfg.Provider.Temperature != 0.2 || cfg.Provider.MaxOutputTokens != 256 {
		t.Fatalf("provider unexpected: %+v", cfg.Provider)
	}
	if cfg.Stream.IdleTimeout != 2*time.Second || cfg.Stream.MaxDuration != 20*time.Second {
		t.Fatalf("stream unexpected: %+v", cfg.Stream)
	}
	if cfg.Context.TopK != 5 || cfg.Context.MaxChars != 1000 {
		t.Fatalf("context unexpected: %+v", cfg.Context)
	}
	if cfg.Billing.StripeSecret != "whsec" || cfg.Billing.Retention != 720*time.Hour {
		t.Fatalf("billing unexpected: %+v", cfg.Billing)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"timeouts", map[string]string{"READ_TIMEOUT": "-1s"}, "timeouts"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"postgres dsn", map[string]string{"DB_DRIVER": "postgres"}, "DB_DSN"},
		{"provider", map[string]string{"DEFAULT_PROVIDER": "cohere"}, "DEFAULT_PROVIDER"},
		{"temperature", map[string]string{"LLM_TEMPERATURE": "3"}, "LLM_TEMPERATURE"},
		{"max tokens", map[string]string{"LLM_MAX_OUTPUT_TOKENS": "0"}, "LLM_MAX_OUTPUT_TOKENS"},
		{"stream order", map[string]string{"STREAM_IDLE_TIMEOUT": "2m"}, "STREAM_IDLE_TIMEOUT"},
		{"threshold", map[string]string{"CONTEXT_EXACT_THRESHOLD": "1.5"}, "THRESHOLD"},
		{"top k", map[string]string{"CONTEXT_TOP_K": "0"}, "CONTEXT_TOP_K"},
		{"max chars", map[string]string{"CONTEXT_MAX_CHARS": "0"}, "CONTEXT_MAX_CHARS"},
		{"retention", map[string]string{"WEBHOOK_RETENTION": "0s"}, "WEBHOOK_RETENTION"},
		{"rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idem ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"sampler", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "2"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	t.Setenv("B", "off")
	if getbool("B", true) {
		t.Fatalf("getbool off should be false")
	}
	t.Setenv("B", "maybe")
	if !getbool("B", true) {
		t.Fatalf("getbool garbage should return default")
	}
	if splitCSV("") != nil {
		t.Fatalf("splitCSV empty should be nil")
	}
	for in, want := range map[string]string{"": "/", "x": "/x", "/x/": "/x", " /a/b/ ": "/a/b", "/": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q)=%q want %q", in, got, want)
		}
	}
}
