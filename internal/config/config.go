package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// ConfigurationError indicates invalid policy parameters. It is the one error
// class that aborts a run before any I/O happens.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// Retry holds the backoff policy knobs for transient storage failures.
type Retry struct {
	MaxAttempts int           `validate:"gt=0"`
	BaseDelay   time.Duration `validate:"gt=0"`
	Multiplier  float64       `validate:"gte=1"`
	JitterBound time.Duration `validate:"gte=0"`
}

// Validation holds the business-rule thresholds applied per record.
type Validation struct {
	// MaxAmount is the upper plausibility bound for a single transaction.
	MaxAmount decimal.Decimal
	// BalanceFloor is the minimum acceptable account balance (0: no overdrafts
	// in the source export).
	BalanceFloor decimal.Decimal
	// MaxIDLength bounds the transaction identifier format check.
	MaxIDLength int `validate:"gt=0"`
}

// Aggregation controls the post-load rollup recomputation.
type Aggregation struct {
	// Enabled runs the aggregation engine after a successful load.
	Enabled bool
	// From/To override the recomputed date range. When zero, the range is the
	// span of transaction dates observed in the loaded batch.
	From civil.Date
	To   civil.Date
}

// Config is the full configuration surface of a batch run.
type Config struct {
	DBUser     string `validate:"required"`
	DBPassword string
	DBHost     string `validate:"required"`
	DBPort     string `validate:"required"`
	DBName     string `validate:"required"`

	// ArchiveBucket is the object-storage bucket for raw batch payloads.
	// Empty disables archival.
	ArchiveBucket string
	// ArchiveEndpoint points the storage client at an S3/MinIO-compatible
	// gateway. Empty uses the default Google endpoint.
	ArchiveEndpoint string

	ChunkSize int `validate:"gt=0"`
	Workers   int `validate:"gt=0"`

	Retry       Retry
	Validation  Validation
	Aggregation Aggregation
}

var validate = validator.New()

// Load reads configuration from the environment (a local .env file is honored
// when present) and validates it. Unparseable values are rejected, not
// defaulted: a typo in a policy knob must abort the run, not silently change
// it. A non-nil error is always a *ConfigurationError.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, &ConfigurationError{Field: ".env", Reason: err.Error()}
	}

	env := &envReader{}
	cfg := &Config{
		DBUser:     getenv("DB_USER", "admin"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBHost:     getenv("DB_HOST", "127.0.0.1"),
		DBPort:     getenv("DB_PORT", "3306"),
		DBName:     getenv("DB_NAME", "bank_data"),

		ArchiveBucket:   os.Getenv("ARCHIVE_BUCKET"),
		ArchiveEndpoint: os.Getenv("ARCHIVE_ENDPOINT"),

		ChunkSize: env.Int("CHUNK_SIZE", 10000),
		Workers:   env.Int("LOAD_WORKERS", 4),

		Retry: Retry{
			MaxAttempts: env.Int("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   env.Duration("RETRY_BASE_DELAY", time.Second),
			Multiplier:  env.Float("RETRY_MULTIPLIER", 2),
			JitterBound: env.Duration("RETRY_JITTER_BOUND", time.Second),
		},
		Validation: Validation{
			MaxAmount:    env.Decimal("MAX_TRANSACTION_AMOUNT", decimal.NewFromInt(1_000_000)),
			BalanceFloor: env.Decimal("BALANCE_FLOOR", decimal.Zero),
			MaxIDLength:  env.Int("MAX_TRANSACTION_ID_LENGTH", 64),
		},
		Aggregation: Aggregation{
			Enabled: env.Bool("AGGREGATE_AFTER_LOAD", true),
			From:    env.Date("AGGREGATION_FROM"),
			To:      env.Date("AGGREGATION_TO"),
		},
	}
	if env.err != nil {
		return nil, env.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every policy parameter. It returns a *ConfigurationError so
// callers can abort before any I/O.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return &ConfigurationError{
				Field:  errs[0].Namespace(),
				Reason: fmt.Sprintf("failed %q check (value %v)", errs[0].Tag(), errs[0].Value()),
			}
		}
		return &ConfigurationError{Field: "config", Reason: err.Error()}
	}
	if !c.Validation.MaxAmount.IsPositive() {
		return &ConfigurationError{Field: "Validation.MaxAmount", Reason: "must be positive"}
	}
	if c.Validation.BalanceFloor.IsNegative() {
		return &ConfigurationError{Field: "Validation.BalanceFloor", Reason: "must not be negative"}
	}
	if c.Aggregation.From.IsValid() != c.Aggregation.To.IsValid() {
		return &ConfigurationError{Field: "Aggregation", Reason: "From and To must be set together"}
	}
	if c.Aggregation.From.IsValid() && c.Aggregation.To.Before(c.Aggregation.From) {
		return &ConfigurationError{Field: "Aggregation", Reason: "To precedes From"}
	}
	return nil
}

// DSN builds the MySQL connection string for the durable store.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envReader reads typed environment values. An unset variable yields the
// default; an unparseable one records a ConfigurationError so Load rejects
// the whole configuration.
type envReader struct {
	err error
}

func (r *envReader) fail(key, value, want string) {
	if r.err == nil {
		r.err = &ConfigurationError{Field: key, Reason: fmt.Sprintf("%q is not %s", value, want)}
	}
}

func (r *envReader) Int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, "an integer")
		return def
	}
	return n
}

func (r *envReader) Float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, "a number")
		return def
	}
	return f
}

func (r *envReader) Bool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, "a boolean")
		return def
	}
	return b
}

func (r *envReader) Duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, "a duration (e.g. 500ms, 2s)")
		return def
	}
	return d
}

func (r *envReader) Decimal(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		r.fail(key, v, "a decimal number")
		return def
	}
	return d
}

// Date reads an optional YYYY-MM-DD value; unset yields the zero Date.
func (r *envReader) Date(key string) civil.Date {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return civil.Date{}
	}
	d, err := civil.ParseDate(v)
	if err != nil {
		r.fail(key, v, "a YYYY-MM-DD date")
		return civil.Date{}
	}
	return d
}

// Default returns a Config with every knob at its default, without touching
// the environment. Used by tests and as a base for programmatic setup.
func Default() *Config {
	return &Config{
		DBUser: "admin", DBHost: "127.0.0.1", DBPort: "3306", DBName: "bank_data",
		ChunkSize: 10000,
		Workers:   4,
		Retry: Retry{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Multiplier:  2,
			JitterBound: time.Second,
		},
		Validation: Validation{
			MaxAmount:    decimal.NewFromInt(1_000_000),
			BalanceFloor: decimal.Zero,
			MaxIDLength:  64,
		},
		Aggregation: Aggregation{Enabled: true},
	}
}
