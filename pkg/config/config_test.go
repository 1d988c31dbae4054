package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"lifeos-currency/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigFrom_Defaults(t *testing.T) {
	cfg, err := LoadConfigFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, []string{"http://localhost:8080", "http://127.0.0.1:8080"}, cfg.App.AllowOrigins)
	assert.Equal(t, CacheMemory, cfg.Cache.Driver)
	assert.Equal(t, time.Hour, cfg.CacheTTL())
	assert.Equal(t, ProviderJSON, cfg.Provider.Kind)
	assert.Equal(t, "{base_url}/latest?base={from}&symbols={to}", cfg.Provider.URLTemplate)
	assert.Equal(t, "rates.{to}", cfg.Provider.RatePath)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout())
	assert.Equal(t, 1, cfg.Provider.RefreshAttempts)
	assert.Equal(t, int64(86400), cfg.Freshness.StaleAfterSeconds)
	assert.Equal(t, int64(604800), cfg.Freshness.WarningAfterSeconds)
	assert.Equal(t, entity.DefaultDisplayOptions(), cfg.Display)
	assert.Equal(t, int32(10), cfg.Postgres.MaxConns)
	assert.Equal(t, "lifeos:fx:", cfg.Redis.Prefix)

	registry, err := cfg.Registry()
	require.NoError(t, err)
	assert.True(t, registry.Supports("MKD"))
	assert.True(t, registry.Supports("JPY"))
}

func TestLoadConfigFrom_File(t *testing.T) {
	dir := writeConfig(t, `
app:
  port: "9090"
cache:
  driver: redis
  ttl_seconds: 600
provider:
  kind: cbr
  base_url: http://rates.local
freshness:
  stale_after_seconds: 3600
  warning_after_seconds: 7200
display:
  symbol_position: after
  locale: de-DE
currencies:
  - code: MKD
    name: Macedonian denar
    symbol: ден
    decimals: 2
  - code: EUR
    symbol: €
    decimals: 2
`)

	cfg, err := LoadConfigFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, CacheRedis, cfg.Cache.Driver)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL())
	assert.Equal(t, ProviderCBR, cfg.Provider.Kind)
	assert.Equal(t, "http://rates.local", cfg.Provider.BaseURL)
	assert.Equal(t, int64(3600), cfg.Freshness.StaleAfterSeconds)
	assert.Equal(t, entity.SymbolAfter, cfg.Display.SymbolPosition)
	assert.Equal(t, "de-DE", cfg.Display.Locale)
	assert.Equal(t, " ", cfg.Display.SymbolSeparator)

	registry, err := cfg.Registry()
	require.NoError(t, err)
	assert.Equal(t, []entity.CurrencyCode{"EUR", "MKD"}, registry.Codes())

	eur, err := registry.Lookup("EUR")
	require.NoError(t, err)
	assert.Equal(t, "EUR", eur.Name)
}

func TestLoadConfigFrom_EnvOverride(t *testing.T) {
	t.Setenv("PROVIDER_TIMEOUT_MS", "1500")
	t.Setenv("CACHE_DRIVER", "postgres")
	t.Setenv("POSTGRES_HOST", "db")

	cfg, err := LoadConfigFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.ProviderTimeout())
	assert.Equal(t, CachePostgres, cfg.Cache.Driver)
	assert.Equal(t, "db", cfg.Postgres.Host)
}

func TestLoadConfigFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"cache driver", "cache:\n  driver: memcached\n", "unknown cache driver"},
		{"provider kind", "provider:\n  kind: soap\n", "unknown provider kind"},
		{"ttl", "cache:\n  ttl_seconds: 0\n", "cache.ttl_seconds"},
		{"timeout", "provider:\n  timeout_ms: -1\n", "provider.timeout_ms"},
		{"attempts", "provider:\n  refresh_attempts: 0\n", "provider.refresh_attempts"},
		{"symbol position", "display:\n  symbol_position: middle\n", "symbol_position"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFrom(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadConfigFrom_Malformed(t *testing.T) {
	_, err := LoadConfigFrom(writeConfig(t, "app: [unterminated\n"))
	assert.ErrorContains(t, err, "read config")
}
