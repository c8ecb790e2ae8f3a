package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"

	"wbcalc/internal/pricing"
)

type Config struct {
	Telegram TelegramConfig `envPrefix:"TELEGRAM_"`
	HTTP     HTTPConfig     `envPrefix:"HTTP_"`
	Database DatabaseConfig `envPrefix:"DB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	API      APIConfig      `envPrefix:"API_"`
	Pricing  PricingConfig  `envPrefix:"PRICING_"`
	Log      LogConfig      `envPrefix:"LOG_"`
	Poll     PollConfig     `envPrefix:"POLL_"`

	ExportDir string `env:"EXPORT_DIR" envDefault:"reports" validate:"required"`
}

type TelegramConfig struct {
	Token    string  `env:"TOKEN"`
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`
	Debug    bool    `env:"DEBUG" envDefault:"false"`
	// Calculations allowed per user within RateWindow.
	RateLimit  int64         `env:"RATE_LIMIT" envDefault:"30" validate:"gt=0"`
	RateWindow time.Duration `env:"RATE_WINDOW" envDefault:"1m" validate:"gt=0"`
	// Minimum pause between two finished calculations of one user.
	Cooldown time.Duration `env:"COOLDOWN" envDefault:"3s" validate:"gte=0"`
}

type HTTPConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080" validate:"required"`
	RequestsPerSec  float64       `env:"REQUESTS_PER_SEC" envDefault:"10" validate:"gt=0"`
	Burst           int           `env:"BURST" envDefault:"20" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type DatabaseConfig struct {
	Host            string        `env:"HOST"`
	Port            int           `env:"PORT" envDefault:"5432" validate:"gt=0,lte=65535"`
	User            string        `env:"USER"`
	Password        string        `env:"PASSWORD"`
	Name            string        `env:"NAME"`
	SSLMode         string        `env:"SSLMODE" envDefault:"disable" validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25" validate:"gt=0"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5" validate:"gte=0"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"2m"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT" envDefault:"2m"`
}

// DSN builds a lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0" validate:"gte=0"`
	StateTTL time.Duration `env:"STATE_TTL" envDefault:"24h"`
}

type APIConfig struct {
	BaseURL        string        `env:"BASE_URL"`
	Key            string        `env:"KEY"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	RequestsPerSec float64       `env:"REQUESTS_PER_SEC" envDefault:"2" validate:"gt=0"`
	MaxRetryTime   time.Duration `env:"MAX_RETRY_TIME" envDefault:"1m"`
}

type PricingConfig struct {
	BaseLiterRub       float64       `env:"BASE_LITER_RUB" envDefault:"48" validate:"gt=0"`
	AdditionalLiterRub float64       `env:"ADDITIONAL_LITER_RUB" envDefault:"5" validate:"gte=0"`
	Coefficient        float64       `env:"COEFFICIENT" envDefault:"1.0" validate:"gt=0"`
	WarningPct         float64       `env:"WARNING_PCT" envDefault:"75" validate:"gt=0,ltfield=CriticalPct"`
	CriticalPct        float64       `env:"CRITICAL_PCT" envDefault:"85" validate:"gt=0,lte=100"`
	TariffCacheTTL     time.Duration `env:"TARIFF_CACHE_TTL" envDefault:"1h"`
}

func (p PricingConfig) DefaultTariffs() pricing.BoxDeliveryTariffs {
	return pricing.BoxDeliveryTariffs{
		BaseLiterRub:       p.BaseLiterRub,
		AdditionalLiterRub: p.AdditionalLiterRub,
		Coefficient:        p.Coefficient,
	}
}

func (p PricingConfig) Thresholds() pricing.Thresholds {
	return pricing.Thresholds{WarningPct: p.WarningPct, CriticalPct: p.CriticalPct}
}

type LogConfig struct {
	Level  string        `env:"LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	Format string        `env:"FORMAT" envDefault:"json" validate:"oneof=json console"`
	File   string        `env:"FILE"`
	MaxAge time.Duration `env:"MAX_AGE" envDefault:"168h"`
}

type PollConfig struct {
	Interval time.Duration `env:"INTERVAL" envDefault:"5s" validate:"gt=0"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"10m" validate:"gtfield=Interval"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Each command asks only for the groups it uses.

func (c *Config) RequireTelegram() error {
	if c.Telegram.Token == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}
	return nil
}

func (c *Config) RequireDatabase() error {
	var missing []string
	if c.Database.Host == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.Database.User == "" {
		missing = append(missing, "DB_USER")
	}
	if c.Database.Name == "" {
		missing = append(missing, "DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing database settings: %v", missing)
	}
	return nil
}

func (c *Config) RequireAPI() error {
	if c.API.BaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		return fmt.Errorf("API_BASE_URL is invalid: %w", err)
	}
	return nil
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
