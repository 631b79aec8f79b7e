package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gpbook/gpbook/internal/platform/apperr"
	"github.com/gpbook/gpbook/internal/platform/assertion"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	PracticeCacheTTL time.Duration `mapstructure:"PRACTICE_CACHE_TTL"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`

	LocalASID      string `mapstructure:"LOCAL_ASID"`
	LocalODSCode   string `mapstructure:"LOCAL_ODS_CODE"`
	LocalUserID    string `mapstructure:"LOCAL_USER_ID"`
	SigningKey     string `mapstructure:"SIGNING_KEY"`
	SigningKeyFile string `mapstructure:"SIGNING_KEY_FILE"`

	ExternalTimeout           time.Duration `mapstructure:"EXTERNAL_TIMEOUT"`
	AvailabilityFailurePolicy string        `mapstructure:"AVAILABILITY_FAILURE_POLICY"`
	SimulateSuccessOnFailure  bool          `mapstructure:"SIMULATE_SUCCESS_ON_FAILURE"`
	NotificationChannels      []string      `mapstructure:"NOTIFICATION_CHANNELS"`

	ReconcileAfter    time.Duration `mapstructure:"RECONCILE_AFTER"`
	ReconcileInterval time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	MigrationsDir     string        `mapstructure:"MIGRATIONS_DIR"`

	AdminTokenSecret string `mapstructure:"ADMIN_TOKEN_SECRET"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL", "CORS_ORIGINS",
	"PRACTICE_CACHE_TTL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"LOCAL_ASID", "LOCAL_ODS_CODE", "LOCAL_USER_ID", "SIGNING_KEY", "SIGNING_KEY_FILE",
	"EXTERNAL_TIMEOUT", "AVAILABILITY_FAILURE_POLICY", "SIMULATE_SUCCESS_ON_FAILURE", "NOTIFICATION_CHANNELS",
	"RECONCILE_AFTER", "RECONCILE_INTERVAL", "MIGRATIONS_DIR",
	"ADMIN_TOKEN_SECRET",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Load reads .env when present, then the environment. Nothing else in the
// process reads the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("PRACTICE_CACHE_TTL", "10m")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", "45s")
	v.SetDefault("BODY_LIMIT", "64K")
	v.SetDefault("LOCAL_USER_ID", "gpbook-service")
	v.SetDefault("EXTERNAL_TIMEOUT", "30s")
	v.SetDefault("AVAILABILITY_FAILURE_POLICY", "fallback-to-mock")
	v.SetDefault("SIMULATE_SUCCESS_ON_FAILURE", false)
	v.SetDefault("NOTIFICATION_CHANNELS", "secure-messaging,email")
	v.SetDefault("RECONCILE_AFTER", "15m")
	v.SetDefault("RECONCILE_INTERVAL", "5m")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.NotificationChannels = splitList(cfg.NotificationChannels, v.GetString("NOTIFICATION_CHANNELS"))
	return cfg, nil
}

// splitList normalizes a comma separated setting that may arrive either as a
// single string or already split.
func splitList(parsed []string, raw string) []string {
	if len(parsed) == 1 && strings.Contains(parsed[0], ",") {
		raw, parsed = parsed[0], nil
	}
	if len(parsed) == 0 && raw != "" {
		parsed = strings.Split(raw, ",")
	}
	out := parsed[:0]
	for _, s := range parsed {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Demo reports whether no signing key is configured. Practice calls then
// carry placeholder tokens and availability returns mock slots.
func (c *Config) Demo() bool {
	return strings.TrimSpace(c.SigningKey) == "" && strings.TrimSpace(c.SigningKeyFile) == ""
}

// PersistenceConfigured reports whether DATABASE_URL is set.
func (c *Config) PersistenceConfigured() bool {
	return c.DatabaseURL != ""
}

// AssertionConfig builds the assertion generator settings. A key that is
// configured but unreadable is carried as KeyErr.
func (c *Config) AssertionConfig() assertion.Config {
	ac := assertion.Config{
		LocalASID:    c.LocalASID,
		LocalODSCode: c.LocalODSCode,
		LocalUserID:  c.LocalUserID,
	}
	if c.Demo() {
		return ac
	}

	pemBytes := []byte(c.SigningKey)
	if strings.TrimSpace(c.SigningKey) == "" {
		b, err := os.ReadFile(c.SigningKeyFile)
		if err != nil {
			ac.KeyErr = fmt.Errorf("read SIGNING_KEY_FILE: %w", err)
			return ac
		}
		pemBytes = b
	}
	key, err := assertion.ParsePrivateKey(pemBytes)
	if err != nil {
		ac.KeyErr = err
		return ac
	}
	ac.SigningKey = key
	return ac
}

// Validate checks the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && !c.IsProduction() {
		return fmt.Errorf("ENV must be \"development\" or \"production\", got %q", c.Env)
	}
	if c.ExternalTimeout <= 0 {
		return fmt.Errorf("EXTERNAL_TIMEOUT must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.ReconcileAfter <= 0 || c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_AFTER and RECONCILE_INTERVAL must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	if !c.Demo() {
		if err := c.AssertionConfig().KeyErr; err != nil {
			return apperr.Configuration("signing key is invalid", err)
		}
	}

	if c.IsProduction() {
		if c.Demo() {
			return fmt.Errorf("SIGNING_KEY or SIGNING_KEY_FILE is required in production")
		}
		if c.LocalASID == "" || c.LocalODSCode == "" {
			return fmt.Errorf("LOCAL_ASID and LOCAL_ODS_CODE are required in production")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if c.SimulateSuccessOnFailure {
			return fmt.Errorf("SIMULATE_SUCCESS_ON_FAILURE must be false in production")
		}
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
