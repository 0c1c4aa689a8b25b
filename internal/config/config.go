package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	defaultJWTSecret = "your-secret-key-change-in-production"
	minSecretLength  = 32
	minJWTExpiry     = time.Minute
	maxJWTExpiry     = 30 * 24 * time.Hour
)

// Store drivers
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Environment string
	Port        string

	DBDSN         string
	DBDriver      string
	StoreDriver   string
	StoreTimeout  time.Duration
	AutoMigrate   bool
	MigrationsDir string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTExpiry   time.Duration

	UploadDir       string
	CORSOrigins     []string
	EnableMetrics   bool
	EnableSwagger   bool
	OverdueSchedule string
	LoanTimezone    string
	DemoPassword    string
}

func Load() *Config {
	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),

		DBDSN:         os.Getenv("DB_DSN"),
		DBDriver:      getEnv("DB_DRIVER", "pgx"),
		StoreDriver:   getEnv("STORE_DRIVER", StorePostgres),
		StoreTimeout:  getDuration("STORE_TIMEOUT", 5*time.Second),
		AutoMigrate:   getBool("AUTO_MIGRATE", false),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "db/migrations"),

		JWTSecret:   getEnv("JWT_SECRET", defaultJWTSecret),
		JWTIssuer:   getEnv("JWT_ISS", "asset-lending-api"),
		JWTAudience: getEnv("JWT_AUD", "asset-lending-api"),
		JWTExpiry:   getDuration("JWT_EXPIRY", 24*time.Hour), // Default to 24 hours

		UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "*")),
		EnableMetrics: getBool("ENABLE_METRICS", false),
		EnableSwagger: getBool("ENABLE_SWAGGER", false),
		LoanTimezone:  getEnv("LOAN_TIMEZONE", "Local"),
		DemoPassword:  getEnv("DEMO_PASSWORD", "changeme"),
	}

	// An explicitly empty OVERDUE_SCHEDULE disables the sweep.
	if schedule, ok := os.LookupEnv("OVERDUE_SCHEDULE"); ok {
		config.OverdueSchedule = strings.TrimSpace(schedule)
	} else {
		config.OverdueSchedule = "30 8 * * *"
	}

	return config
}

// LoadAndValidate loads configuration from the environment and validates it
func LoadAndValidate() (*Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength)
	}
	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be changed in production")
	}
	if c.JWTIssuer == "" {
		return errors.New("JWT_ISS must not be empty")
	}
	if c.JWTAudience == "" {
		return errors.New("JWT_AUD must not be empty")
	}
	if c.JWTExpiry < minJWTExpiry {
		return fmt.Errorf("JWT_EXPIRY must be at least %v", minJWTExpiry)
	}
	if c.JWTExpiry > maxJWTExpiry {
		return fmt.Errorf("JWT_EXPIRY must be at most %v", maxJWTExpiry)
	}

	switch c.StoreDriver {
	case StorePostgres:
		if c.DBDSN == "" {
			return errors.New("DB_DSN is required for the postgres store")
		}
	case StoreMemory:
		if c.IsProduction() {
			return errors.New("the memory store is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.DBDriver != "" && c.DBDriver != "pgx" && c.DBDriver != "postgres" {
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}

	if c.OverdueSchedule != "" {
		if _, err := cron.ParseStandard(c.OverdueSchedule); err != nil {
			return fmt.Errorf("invalid OVERDUE_SCHEDULE: %w", err)
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid LOAN_TIMEZONE: %w", err)
	}
	return nil
}

// IsProduction reports whether the server runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Location resolves LoanTimezone
func (c *Config) Location() (*time.Location, error) {
	if c.LoanTimezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.LoanTimezone)
}

// Addr is the listen address
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
