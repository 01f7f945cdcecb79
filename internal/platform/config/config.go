package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Server captures process level configuration.
type Server struct {
	Addr        string
	MetricsAddr string
	LogLevel    string
	// Location is the jurisdiction time zone; folio years and the
	// frequency window are computed in it.
	Location *time.Location
	PageSize int

	Database       DatabaseConfig
	Redis          RedisConfig
	Kafka          KafkaConfig
	Rates          RatesConfig
	Classification ClassificationConfig
	Folio          FolioConfig
	Auth           AuthConfig
}

// DatabaseConfig configures the primary PostgreSQL store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the shared rate cache. An empty URL selects the
// in-process cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures audit forwarding. No brokers disables it.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// Enabled reports whether audit forwarding is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// RatesConfig configures currency normalization.
type RatesConfig struct {
	ReportingCurrency string
	// FallbackRates is the raw "CODE=rate,..." list; parse with
	// currency.ParseFallbackRates.
	FallbackRates   string
	SupplierURL     string
	CacheTTL        time.Duration
	SupplierTimeout time.Duration
	SupplierRPS     float64
}

// ClassificationConfig holds the rule parameters.
type ClassificationConfig struct {
	RelevantThreshold   decimal.Decimal
	WindowDays          int
	OccurrenceThreshold int
}

// FolioConfig configures folio allocation.
type FolioConfig struct {
	Prefix      string
	MaxAttempts int
	RetryBase   time.Duration
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
}

// LoadDotEnv seeds the environment from a .env file when one exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Malformed values are reported together rather than one at a time.
func FromEnv() (Server, error) {
	r := &reader{}

	cfg := Server{
		Addr:        r.str("AMLCORE_ADDR", ":8080"),
		MetricsAddr: r.str("AMLCORE_METRICS_ADDR", ":9090"),
		LogLevel:    r.str("LOG_LEVEL", "info"),
		Location:    r.location("JURISDICTION_TZ", "America/Mexico_City"),
		PageSize:    r.integer("LIST_PAGE_SIZE", 100),
		Database: DatabaseConfig{
			URL:             r.str("DATABASE_URL", ""),
			MaxOpenConns:    r.integer("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    r.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: r.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    r.list("KAFKA_BROKERS"),
			AuditTopic: r.str("KAFKA_AUDIT_TOPIC", "amlcore.audit"),
		},
		Rates: RatesConfig{
			ReportingCurrency: strings.ToUpper(r.str("REPORTING_CURRENCY", "USD")),
			FallbackRates:     r.str("FALLBACK_RATES", "MXN=17.5,EUR=0.92,CAD=1.36"),
			SupplierURL:       r.str("RATE_SUPPLIER_URL", "https://open.er-api.com/v6/latest"),
			CacheTTL:          r.duration("RATE_CACHE_TTL", 24*time.Hour),
			SupplierTimeout:   r.duration("RATE_SUPPLIER_TIMEOUT", 5*time.Second),
			SupplierRPS:       r.float("RATE_SUPPLIER_RPS", 5),
		},
		Classification: ClassificationConfig{
			RelevantThreshold:   r.decimal("RELEVANT_THRESHOLD", decimal.NewFromInt(17500)),
			WindowDays:          r.integer("FREQUENCY_WINDOW_DAYS", 30),
			OccurrenceThreshold: r.integer("FREQUENCY_OCCURRENCES", 3),
		},
		Folio: FolioConfig{
			Prefix:      r.str("FOLIO_PREFIX", "OP"),
			MaxAttempts: r.integer("FOLIO_MAX_ATTEMPTS", 3),
			RetryBase:   r.duration("FOLIO_RETRY_BASE", 20*time.Millisecond),
		},
		Auth: AuthConfig{
			JWTSigningKey: r.str("JWT_SIGNING_KEY", ""),
			Issuer:        r.str("JWT_ISSUER", "amlcore"),
		},
	}

	if cfg.PageSize < 1 {
		r.fail("LIST_PAGE_SIZE", "must be positive")
	}
	if err := errors.Join(r.errs...); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// RequireDatabase fails when no database URL is configured.
func (s Server) RequireDatabase() error {
	if s.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// RequireAuth fails when no signing key is configured.
func (s Server) RequireAuth() error {
	if s.Auth.JWTSigningKey == "" {
		return errors.New("JWT_SIGNING_KEY is required")
	}
	return nil
}

type reader struct {
	errs []error
}

func (r *reader) fail(key, msg string) {
	r.errs = append(r.errs, fmt.Errorf("%s: %s", key, msg))
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, "must be an integer")
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, "must be a number")
		return def
	}
	return f
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, "must be a duration")
		return def
	}
	return d
}

func (r *reader) decimal(key string, def decimal.Decimal) decimal.Decimal {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		r.fail(key, "must be a decimal")
		return def
	}
	return d
}

func (r *reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *reader) location(key, def string) *time.Location {
	name := r.str(key, def)
	loc, err := time.LoadLocation(name)
	if err != nil {
		r.fail(key, "unknown time zone "+name)
		return time.UTC
	}
	return loc
}
