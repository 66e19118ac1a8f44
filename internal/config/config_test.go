package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("querybot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.ObjectStore.Endpoint != "localhost:9000" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
	if cfg.Catalog.MaxOpenConns != 20 {
		t.Fatalf("Catalog.MaxOpenConns = %d", cfg.Catalog.MaxOpenConns)
	}
	if cfg.AI.Model != "gpt-4o-mini" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.APIKey != "" {
		t.Fatalf("AI.APIKey = %q, want empty", cfg.AI.APIKey)
	}
	if cfg.Query.GenerateTimeout != 20*time.Second {
		t.Fatalf("Query.GenerateTimeout = %s", cfg.Query.GenerateTimeout)
	}
	if cfg.Query.FallbackColumnPattern == "" {
		t.Fatal("Query.FallbackColumnPattern should have a default")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"QUERYBOT_PROFILE": "prod"})
	cfg, err := Load("querybot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if cfg.ObjectStore.AutoCreateBucket {
		t.Fatal("ObjectStore.AutoCreateBucket should default to false in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"QUERYBOT_PROFILE":                        "test",
		"QUERYBOT_SERVICE_NAME":                   "querybot-custom",
		"QUERYBOT_HTTP_ADDR":                      ":9999",
		"QUERYBOT_HTTP_READ_TIMEOUT":              "2s",
		"QUERYBOT_HTTP_WRITE_TIMEOUT":             "3s",
		"QUERYBOT_LOG_LEVEL":                      "error",
		"QUERYBOT_CATALOG_DSN":                    "postgres://example",
		"QUERYBOT_CATALOG_MAX_OPEN_CONNS":         "42",
		"QUERYBOT_CATALOG_MAX_IDLE_CONNS":         "17",
		"QUERYBOT_OBJECTSTORE_ENDPOINT":           "s3.example.com",
		"QUERYBOT_OBJECTSTORE_BUCKET":             "querybot-prod",
		"QUERYBOT_OBJECTSTORE_REGION":             "us-west-2",
		"QUERYBOT_OBJECTSTORE_ACCESS_KEY":         "abc",
		"QUERYBOT_OBJECTSTORE_SECRET_KEY":         "def",
		"QUERYBOT_OBJECTSTORE_USE_SSL":            "true",
		"QUERYBOT_OBJECTSTORE_PREFIX":             "tenant-root",
		"QUERYBOT_OBJECTSTORE_AUTO_CREATE_BUCKET": "false",
		"QUERYBOT_AI_BASE_URL":                    "https://api.example.com",
		"QUERYBOT_AI_API_KEY":                     "secret-key",
		"QUERYBOT_AI_MODEL":                       "gpt-5.2",
		"QUERYBOT_AI_TEMPERATURE":                 "0.3",
		"QUERYBOT_AI_TIMEOUT":                     "21s",
		"QUERYBOT_QUERY_GENERATE_TIMEOUT":         "9s",
		"QUERYBOT_QUERY_SUMMARIZE_TIMEOUT":        "7s",
		"QUERYBOT_QUERY_FALLBACK_COLUMNS":         "(?i)(revenue|margin)",
	})
	cfg, err := Load("querybot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "querybot-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP.WriteTimeout = %s", cfg.HTTP.WriteTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Catalog.DSN != "postgres://example" {
		t.Fatalf("Catalog.DSN = %q", cfg.Catalog.DSN)
	}
	if cfg.Catalog.MaxOpenConns != 42 {
		t.Fatalf("Catalog.MaxOpenConns = %d", cfg.Catalog.MaxOpenConns)
	}
	if cfg.Catalog.MaxIdleConns != 17 {
		t.Fatalf("Catalog.MaxIdleConns = %d", cfg.Catalog.MaxIdleConns)
	}
	if cfg.ObjectStore.Endpoint != "s3.example.com" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
	if cfg.ObjectStore.Bucket != "querybot-prod" {
		t.Fatalf("ObjectStore.Bucket = %q", cfg.ObjectStore.Bucket)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL = false, want true")
	}
	if cfg.ObjectStore.AutoCreateBucket {
		t.Fatal("ObjectStore.AutoCreateBucket = true, want false")
	}
	if cfg.ObjectStore.Prefix != "tenant-root" {
		t.Fatalf("ObjectStore.Prefix = %q", cfg.ObjectStore.Prefix)
	}
	if cfg.AI.BaseURL != "https://api.example.com" {
		t.Fatalf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.APIKey != "secret-key" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
	if cfg.AI.Model != "gpt-5.2" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.Temperature != 0.3 {
		t.Fatalf("AI.Temperature = %f", cfg.AI.Temperature)
	}
	if cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI.Timeout = %s", cfg.AI.Timeout)
	}
	if cfg.Query.GenerateTimeout != 9*time.Second {
		t.Fatalf("Query.GenerateTimeout = %s", cfg.Query.GenerateTimeout)
	}
	if cfg.Query.SummarizeTimeout != 7*time.Second {
		t.Fatalf("Query.SummarizeTimeout = %s", cfg.Query.SummarizeTimeout)
	}
	if cfg.Query.FallbackColumnPattern != "(?i)(revenue|margin)" {
		t.Fatalf("Query.FallbackColumnPattern = %q", cfg.Query.FallbackColumnPattern)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"QUERYBOT_PROFILE": "oops"},
		{"QUERYBOT_HTTP_READ_TIMEOUT": "NaN"},
		{"QUERYBOT_CATALOG_MAX_OPEN_CONNS": "oops"},
		{"QUERYBOT_OBJECTSTORE_USE_SSL": "not-bool"},
		{"QUERYBOT_AI_TEMPERATURE": "bad"},
		{"QUERYBOT_QUERY_GENERATE_TIMEOUT": "soon"},
		{"QUERYBOT_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("querybot-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
