package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/core"
)

type Config struct {
	// HTTP Server
	Port               string
	DefaultUser        string
	RateLimitPerMinute int
	TrustedProxies     []string
	BlockSuspicious    bool

	// Backend selection
	DataBackend string
	SeedFile    string

	// Database
	SQLiteDBPath  string
	PostgresURL   string
	MongoURI      string
	MongoDatabase string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets reports
	GoogleSpreadsheetID   string
	GoogleReportSheetName string

	// Budget engine
	PrimaryAccount   string
	LedgerPageSize   int
	SummaryCacheSize int

	// Workers
	RecurringInterval time.Duration
	ReportInterval    time.Duration
	ReportBatchSize   int

	// Logging
	LogLevel  string
	LogFormat string
}

var validBackends = []string{"memory", "sqlite", "postgres", "mongo"}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		DefaultUser:        getEnv("DEFAULT_USER", "default"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),
		BlockSuspicious:    getEnvBool("BLOCK_SUSPICIOUS", false),

		DataBackend: getEnv("DATA_BACKEND", "memory"),
		SeedFile:    getEnv("SEED_FILE", ""),

		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/bilancio.db"),
		PostgresURL:   getEnv("POSTGRES_URL", ""),
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "bilancio"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bilancio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "budget_reports"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleReportSheetName: getEnv("GOOGLE_REPORT_SHEET_NAME", "Tracking"),

		PrimaryAccount:   getEnv("PRIMARY_ACCOUNT", string(core.AccountChecking)),
		LedgerPageSize:   getEnvInt("LEDGER_PAGE_SIZE", 5000),
		SummaryCacheSize: getEnvInt("SUMMARY_CACHE_SIZE", 256),

		RecurringInterval: getEnvDuration("RECURRING_INTERVAL", time.Hour),
		ReportInterval:    getEnvDuration("REPORT_INTERVAL", time.Hour),
		ReportBatchSize:   getEnvInt("REPORT_BATCH_SIZE", 10),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.DefaultUser) == "" {
		errors = append(errors, "default user cannot be empty")
	}

	// Validate data backend
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if msg := checkURL("Postgres", c.PostgresURL, "postgres", "postgresql"); msg != "" {
			errors = append(errors, msg)
		}
	case "mongo":
		if msg := checkURL("Mongo", c.MongoURI, "mongodb", "mongodb+srv"); msg != "" {
			errors = append(errors, msg)
		}
		if c.MongoDatabase == "" {
			errors = append(errors, "Mongo database name cannot be empty when using mongo backend")
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if msg := checkURL("AMQP", c.AMQPURL, "amqp", "amqps"); msg != "" {
			errors = append(errors, msg)
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if _, err := core.ParseAccount(c.PrimaryAccount); err != nil {
		errors = append(errors, fmt.Sprintf("invalid primary account '%s'", c.PrimaryAccount))
	}
	if c.LedgerPageSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid ledger page size %d: must be at least 1", c.LedgerPageSize))
	}
	if c.SummaryCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid summary cache size %d: must not be negative", c.SummaryCacheSize))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	// Validate worker configuration
	if c.ReportBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid report batch size %d: must be at least 1", c.ReportBatchSize))
	} else if c.ReportBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid report batch size %d: must be at most 1000", c.ReportBatchSize))
	}
	errors = append(errors, checkInterval("recurring", c.RecurringInterval)...)
	errors = append(errors, checkInterval("report", c.ReportInterval)...)

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateReporting checks the settings only the report worker needs.
func (c *Config) ValidateReporting() error {
	var errors []string
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required for the report worker")
	}
	if c.GoogleReportSheetName == "" {
		errors = append(errors, "Google report sheet name cannot be empty")
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Account returns the configured primary account. Call after Validate.
func (c *Config) Account() core.Account {
	acc, err := core.ParseAccount(c.PrimaryAccount)
	if err != nil {
		return core.AccountChecking
	}
	return acc
}

func checkURL(name, raw string, schemes ...string) string {
	if raw == "" {
		return fmt.Sprintf("%s URL is required", name)
	}
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid %s URL: %v", name, err)
	}
	for _, s := range schemes {
		if parsedURL.Scheme == s {
			return ""
		}
	}
	return fmt.Sprintf("invalid %s URL scheme '%s': must be one of %v", name, parsedURL.Scheme, schemes)
}

func checkInterval(name string, d time.Duration) []string {
	if d < time.Second {
		return []string{fmt.Sprintf("invalid %s interval %v: must be at least 1 second", name, d)}
	}
	if d > 24*time.Hour {
		return []string{fmt.Sprintf("invalid %s interval %v: must be at most 24 hours", name, d)}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
