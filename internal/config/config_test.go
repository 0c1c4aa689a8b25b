package config

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "valid-secret-that-is-long-enough-for-testing"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "PORT", "DB_DSN", "DB_DRIVER", "STORE_DRIVER", "STORE_TIMEOUT",
		"AUTO_MIGRATE", "MIGRATIONS_DIR", "JWT_SECRET", "JWT_ISS", "JWT_AUD", "JWT_EXPIRY",
		"UPLOAD_DIR", "CORS_ORIGINS", "ENABLE_METRICS", "ENABLE_SWAGGER", "LOAN_TIMEZONE",
		"DEMO_PASSWORD",
	} {
		t.Setenv(key, "")
	}
}

func validConfig() *Config {
	return &Config{
		Environment:     "development",
		DBDSN:           "postgres://localhost/lending",
		DBDriver:        "pgx",
		StoreDriver:     StorePostgres,
		StoreTimeout:    5 * time.Second,
		JWTSecret:       testSecret,
		JWTIssuer:       "asset-lending-api",
		JWTAudience:     "asset-lending-api",
		JWTExpiry:       24 * time.Hour,
		OverdueSchedule: "30 8 * * *",
		LoanTimezone:    "UTC",
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	config := Load()

	if config.JWTSecret != defaultJWTSecret {
		t.Errorf("Expected default JWT secret, got %s", config.JWTSecret)
	}
	if config.JWTIssuer != "asset-lending-api" {
		t.Errorf("Expected default JWT issuer, got %s", config.JWTIssuer)
	}
	if config.JWTExpiry != 24*time.Hour {
		t.Errorf("Expected default JWT expiry 24h, got %v", config.JWTExpiry)
	}
	if config.StoreDriver != StorePostgres {
		t.Errorf("Expected postgres store by default, got %s", config.StoreDriver)
	}
	if config.StoreTimeout != 5*time.Second {
		t.Errorf("Expected default store timeout 5s, got %v", config.StoreTimeout)
	}
	if config.Addr() != ":8080" {
		t.Errorf("Expected :8080, got %s", config.Addr())
	}
	if len(config.CORSOrigins) != 1 || config.CORSOrigins[0] != "*" {
		t.Errorf("Expected CORS origins [*], got %v", config.CORSOrigins)
	}
}

func TestLoadWithEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "test-secret-key")
	t.Setenv("JWT_ISS", "test-issuer")
	t.Setenv("JWT_AUD", "test-audience")
	t.Setenv("JWT_EXPIRY", "2h")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("AUTO_MIGRATE", "true")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("ENABLE_METRICS", "true")

	config := Load()

	if config.JWTSecret != "test-secret-key" {
		t.Errorf("Expected JWT secret 'test-secret-key', got %s", config.JWTSecret)
	}
	if config.JWTIssuer != "test-issuer" {
		t.Errorf("Expected JWT issuer 'test-issuer', got %s", config.JWTIssuer)
	}
	if config.JWTAudience != "test-audience" {
		t.Errorf("Expected JWT audience 'test-audience', got %s", config.JWTAudience)
	}
	if config.JWTExpiry != 2*time.Hour {
		t.Errorf("Expected JWT expiry 2h, got %v", config.JWTExpiry)
	}
	if config.StoreDriver != StoreMemory {
		t.Errorf("Expected memory store, got %s", config.StoreDriver)
	}
	if config.StoreTimeout != 750*time.Millisecond {
		t.Errorf("Expected store timeout 750ms, got %v", config.StoreTimeout)
	}
	if !config.AutoMigrate || !config.EnableMetrics {
		t.Errorf("Expected AUTO_MIGRATE and ENABLE_METRICS to be parsed as true")
	}
	if len(config.CORSOrigins) != 2 || config.CORSOrigins[1] != "http://b.test" {
		t.Errorf("Expected two trimmed CORS origins, got %v", config.CORSOrigins)
	}
}

func TestOverdueScheduleCanBeDisabled(t *testing.T) {
	clearEnv(t)
	t.Setenv("OVERDUE_SCHEDULE", "")

	if got := Load().OverdueSchedule; got != "" {
		t.Errorf("Expected empty schedule, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"empty secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET must not be empty"},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, "at least 32 characters"},
		{"empty issuer", func(c *Config) { c.JWTIssuer = "" }, "JWT_ISS"},
		{"empty audience", func(c *Config) { c.JWTAudience = "" }, "JWT_AUD"},
		{"zero expiry", func(c *Config) { c.JWTExpiry = 0 }, "JWT_EXPIRY must be at least"},
		{"negative expiry", func(c *Config) { c.JWTExpiry = -time.Hour }, "JWT_EXPIRY must be at least"},
		{"expiry too short", func(c *Config) { c.JWTExpiry = 30 * time.Second }, "JWT_EXPIRY must be at least"},
		{"expiry too long", func(c *Config) { c.JWTExpiry = 31 * 24 * time.Hour }, "JWT_EXPIRY must be at most"},
		{"postgres without dsn", func(c *Config) { c.DBDSN = "" }, "DB_DSN is required"},
		{"memory without dsn", func(c *Config) { c.StoreDriver = StoreMemory; c.DBDSN = "" }, ""},
		{"memory in production", func(c *Config) { c.StoreDriver = StoreMemory; c.Environment = "production" }, "not allowed in production"},
		{"unknown store", func(c *Config) { c.StoreDriver = "redis" }, "unknown STORE_DRIVER"},
		{"unknown db driver", func(c *Config) { c.DBDriver = "mysql" }, "unknown DB_DRIVER"},
		{"lib/pq driver", func(c *Config) { c.DBDriver = "postgres" }, ""},
		{"zero store timeout", func(c *Config) { c.StoreTimeout = 0 }, "STORE_TIMEOUT"},
		{"bad schedule", func(c *Config) { c.OverdueSchedule = "every day" }, "invalid OVERDUE_SCHEDULE"},
		{"disabled schedule", func(c *Config) { c.OverdueSchedule = "" }, ""},
		{"bad timezone", func(c *Config) { c.LoanTimezone = "Mars/Olympus" }, "invalid LOAN_TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.expectError == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Expected error containing %q, got nil", tt.expectError)
				return
			}
			if !strings.Contains(err.Error(), tt.expectError) {
				t.Errorf("Expected error containing %q, got %v", tt.expectError, err)
			}
		})
	}
}

func TestLoadAndValidate(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOAN_TIMEZONE", "UTC")

	config, err := LoadAndValidate()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if config.JWTSecret != testSecret {
		t.Errorf("Expected JWT secret from environment, got %s", config.JWTSecret)
	}

	t.Setenv("JWT_SECRET", "short")
	if _, err := LoadAndValidate(); err == nil {
		t.Error("Expected error for short secret")
	}
}

func TestProductionSecretValidation(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = "production"
	cfg.JWTSecret = defaultJWTSecret

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected error for default secret in production")
	}
	if !strings.Contains(err.Error(), "must be changed in production") {
		t.Errorf("Unexpected error: %v", err)
	}

	cfg.JWTSecret = "proper-production-secret-that-is-long-enough"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected no error with proper production secret, got %v", err)
	}
}
