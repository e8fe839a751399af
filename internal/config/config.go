package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// Config aggregates runtime configuration for the intake engine and its HTTP surface.
type Config struct {
	DBDriver               string
	DatabaseDSN            string
	HTTPListenAddr         string
	AdminUsername          string
	AdminPassword          string
	WebhookSecret          string
	LogLevel               string
	RequestTimeout         time.Duration
	PlanDurationDays       int
	MaxClientsPerAssistant int
	PendingPaymentReuse    time.Duration
	PaymentCurrency        string
	PaymentProvider        string
	MetricsNamespace       string
	S3Endpoint             string
	S3Region               string
	S3AccessKey            string
	S3SecretKey            string
	S3Bucket               string
	S3UsePathStyle         bool
	S3Prefix               string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBDriver:               strings.ToLower(getEnv("DB_DRIVER", DriverMySQL)),
		HTTPListenAddr:         getEnv("HTTP_LISTEN_ADDR", ":8080"),
		AdminUsername:          getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:          getEnv("ADMIN_PASSWORD", "change-me"),
		WebhookSecret:          os.Getenv("WEBHOOK_SECRET"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		RequestTimeout:         time.Second * time.Duration(getInt("REQUEST_TIMEOUT_SECONDS", 15)),
		PlanDurationDays:       getInt("PLAN_DURATION_DAYS", 30),
		MaxClientsPerAssistant: getInt("MAX_CLIENTS_PER_ASSISTANT", 10),
		PendingPaymentReuse:    time.Minute * time.Duration(getInt("PENDING_PAYMENT_REUSE_MINUTES", 30)),
		PaymentCurrency:        strings.ToUpper(getEnv("PAYMENT_CURRENCY", "GBP")),
		PaymentProvider:        strings.ToLower(getEnv("PAYMENT_PROVIDER", "stripe")),
		MetricsNamespace:       getEnv("METRICS_NAMESPACE", "clientdesk"),
		S3Endpoint:             os.Getenv("S3_ENDPOINT"),
		S3Region:               os.Getenv("S3_REGION"),
		S3AccessKey:            os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:            os.Getenv("S3_SECRET_KEY"),
		S3Bucket:               os.Getenv("S3_BUCKET"),
		S3UsePathStyle:         getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:               getEnv("S3_PREFIX", "payments"),
	}

	cfg.DatabaseDSN = os.Getenv("DATABASE_DSN")
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = os.Getenv("MYSQL_DSN")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every missing or malformed setting at once.
func (c Config) Validate() error {
	var missing []string
	if c.DatabaseDSN == "" {
		missing = append(missing, "DATABASE_DSN")
	}
	if c.S3Bucket != "" {
		if c.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if c.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if c.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}

	switch c.DBDriver {
	case DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.PlanDurationDays <= 0 {
		return fmt.Errorf("PLAN_DURATION_DAYS must be positive")
	}
	if c.MaxClientsPerAssistant <= 0 {
		return fmt.Errorf("MAX_CLIENTS_PER_ASSISTANT must be positive")
	}
	return nil
}

// ArchiveEnabled reports whether webhook payloads should be archived to S3.
func (c Config) ArchiveEnabled() bool {
	return c.S3Bucket != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// loadEnvFile overlays the first env file found. Running without one is fine;
// containers usually pass the environment directly.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
