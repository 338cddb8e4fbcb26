package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with defaults: %v", err)
	}

	if cfg.Port != "8080" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.DBPath != "chatbot.db" {
		t.Fatalf("DBPath = %q", cfg.DBPath)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.Completion.BaseURL != "http://localhost:8000" {
		t.Fatalf("Completion.BaseURL = %q", cfg.Completion.BaseURL)
	}
	if cfg.Completion.Model != "gpt-3.5-turbo" {
		t.Fatalf("Completion.Model = %q", cfg.Completion.Model)
	}
	if cfg.Completion.Timeout != 60*time.Second {
		t.Fatalf("Completion.Timeout = %v", cfg.Completion.Timeout)
	}
	if cfg.MaxPromptRunes != 4000 {
		t.Fatalf("MaxPromptRunes = %d", cfg.MaxPromptRunes)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("GinMode = %q", cfg.GinMode)
	}
}

func TestLoadOverridesAndNormalization(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "bogus")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("DEFAULT_MODEL", "gpt-4")
	t.Setenv("DEFAULT_TEMPERATURE", "0.7")
	t.Setenv("COMPLETION_TIMEOUT", "90s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("warning alias not normalized: %q", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("bogus gin mode not coerced: %q", cfg.GinMode)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Fatalf("base path not normalized: %q", cfg.APIBasePath)
	}
	if cfg.Completion.Model != "gpt-4" || cfg.Completion.Temperature != 0.7 {
		t.Fatalf("completion overrides: %+v", cfg.Completion)
	}
	if cfg.Completion.Timeout != 90*time.Second {
		t.Fatalf("Completion.Timeout = %v", cfg.Completion.Timeout)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("CORS origins: %+v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoadValidationFailures(t *testing.T) {
	cases := []struct {
		key, val, wantSub string
	}{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"DEFAULT_TEMPERATURE", "2.5", "DEFAULT_TEMPERATURE"},
		{"DEFAULT_MAX_TOKENS", "-1", "DEFAULT_MAX_TOKENS"},
		{"RATE_BURST", "0", "RATE_BURST"},
		{"READ_TIMEOUT", "-5s", "timeouts"},
		{"OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("%s=%s: err = %v; want mention of %s", tc.key, tc.val, err, tc.wantSub)
			}
		})
	}
}

func TestMustLoadPanicsOnInvalid(t *testing.T) {
	t.Setenv("DB_PATH", "   ")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustLoad()
}

func TestGetBoolParsing(t *testing.T) {
	t.Setenv("SWAGGER_ENABLED", "yes")
	t.Setenv("LOG_PRETTY", "off")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.SwaggerEnabled || cfg.LogPretty {
		t.Fatalf("bool parsing: swagger=%v pretty=%v", cfg.SwaggerEnabled, cfg.LogPretty)
	}
}
