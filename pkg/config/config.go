package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lifeos-currency/internal/entity"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig             `mapstructure:"app"`
	Log        LogConfig             `mapstructure:"log"`
	Postgres   PostgresConfig        `mapstructure:"postgres"`
	Redis      RedisConfig           `mapstructure:"redis"`
	Cache      CacheConfig           `mapstructure:"cache"`
	Provider   ProviderConfig        `mapstructure:"provider"`
	Freshness  FreshnessConfig       `mapstructure:"freshness"`
	Display    entity.DisplayOptions `mapstructure:"display"`
	Currencies []entity.Currency     `mapstructure:"currencies"`
}

type AppConfig struct {
	Name         string   `mapstructure:"name"`
	Port         string   `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	DBName   string `mapstructure:"dbname"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

const (
	CacheMemory   = "memory"
	CachePostgres = "postgres"
	CacheRedis    = "redis"

	ProviderJSON = "json"
	ProviderCBR  = "cbr"
)

type CacheConfig struct {
	Driver     string `mapstructure:"driver"`
	TTLSeconds int64  `mapstructure:"ttl_seconds"`
}

type ProviderConfig struct {
	Kind            string `mapstructure:"kind"`
	BaseURL         string `mapstructure:"base_url"`
	URLTemplate     string `mapstructure:"url_template"`
	APIKey          string `mapstructure:"api_key"`
	APIKeyHeader    string `mapstructure:"api_key_header"`
	RatePath        string `mapstructure:"rate_path"`
	TimestampPath   string `mapstructure:"timestamp_path"`
	TimeoutMs       int64  `mapstructure:"timeout_ms"`
	RefreshAttempts int    `mapstructure:"refresh_attempts"`
}

type FreshnessConfig struct {
	StaleAfterSeconds   int64 `mapstructure:"stale_after_seconds"`
	WarningAfterSeconds int64 `mapstructure:"warning_after_seconds"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "lifeos-currency")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.allow_origins", []string{"http://localhost:8080", "http://127.0.0.1:8080"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.dbname", "lifeos")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_conns", 10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "lifeos:fx:")

	v.SetDefault("cache.driver", CacheMemory)
	v.SetDefault("cache.ttl_seconds", 3600)

	v.SetDefault("provider.kind", ProviderJSON)
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.url_template", "{base_url}/latest?base={from}&symbols={to}")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.api_key_header", "")
	v.SetDefault("provider.rate_path", "rates.{to}")
	v.SetDefault("provider.timestamp_path", "")
	v.SetDefault("provider.timeout_ms", 5000)
	v.SetDefault("provider.refresh_attempts", 1)

	v.SetDefault("freshness.stale_after_seconds", 86400)
	v.SetDefault("freshness.warning_after_seconds", 604800)

	display := entity.DefaultDisplayOptions()
	v.SetDefault("display.symbol_position", string(display.SymbolPosition))
	v.SetDefault("display.symbol_separator", display.SymbolSeparator)
	v.SetDefault("display.thousands_separator", display.ThousandsSeparator)
	v.SetDefault("display.decimal_separator", display.DecimalSeparator)
	v.SetDefault("display.locale", "")
}

func LoadConfig() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	return LoadConfigFrom(".", "./config", "../config", "../../config")
}

// LoadConfigFrom reads config.yaml from the first matching path. A missing
// file is not an error: defaults and environment variables are enough.
func LoadConfigFrom(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Cache.Driver {
	case CacheMemory, CachePostgres, CacheRedis:
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}

	switch c.Provider.Kind {
	case ProviderJSON, ProviderCBR:
	default:
		return fmt.Errorf("unknown provider kind %q", c.Provider.Kind)
	}

	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be positive, got %d", c.Cache.TTLSeconds)
	}
	if c.Provider.TimeoutMs <= 0 {
		return fmt.Errorf("provider.timeout_ms must be positive, got %d", c.Provider.TimeoutMs)
	}
	if c.Provider.RefreshAttempts < 1 {
		return fmt.Errorf("provider.refresh_attempts must be at least 1, got %d", c.Provider.RefreshAttempts)
	}

	switch c.Display.SymbolPosition {
	case entity.SymbolBefore, entity.SymbolAfter:
	default:
		return fmt.Errorf("unknown display.symbol_position %q", c.Display.SymbolPosition)
	}

	return nil
}

// Registry builds the currency registry; the built-in set is used when the
// config lists no currencies.
func (c *Config) Registry() (*entity.Registry, error) {
	if len(c.Currencies) == 0 {
		return entity.NewRegistry(entity.DefaultCurrencies())
	}
	return entity.NewRegistry(c.Currencies)
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutMs) * time.Millisecond
}
