package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
env: dev
gateway:
  apiKey: foo
  apiSecret: bar
  url: ws://localhost:9000/stream
marketMaker:
  timeBetweenCyclesSeconds: 5
  futuresSpreadFraction: "0.001"
  fairVolatility: 0.8
  volatilitySpreadFraction: 0.05
  numLevels: 3
  quantityOnLevel: 10
  deltaLimit: 100
  vegaLimit: 5000
  maxBatchSize: 30
http:
  addr: ":8080"
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, validYAML))
	require.NoError(t, err)

	mm := cfg.MarketMaker
	assert.Equal(t, "dev", cfg.Env)
	assert.True(t, decimal.RequireFromString("0.001").Equal(mm.FuturesSpreadFraction))
	assert.Equal(t, 3, mm.NumLevels)
	assert.EqualValues(t, 10, mm.QuantityOnLevel)
	assert.Equal(t, "last", mm.FairPriceSource)
	assert.Equal(t, defaultQueueSize, mm.QueueSize)
	assert.Equal(t, 5*time.Second, mm.TimeBetweenCycles())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	t.Setenv("MM_GATEWAY_API_KEY", "env-key")
	t.Setenv("MM_GATEWAY_API_SECRET", "env-secret")
	t.Setenv("MM_GATEWAY_URL", "wss://exchange.test/ws")

	cfg, err := LoadWithEnvOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Gateway.APIKey)
	assert.Equal(t, "env-secret", cfg.Gateway.APISecret)
	assert.Equal(t, "wss://exchange.test/ws", cfg.Gateway.URL)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("MM_DOTENV_PROBE=from-file\n"), 0o600))
	t.Setenv("MM_DOTENV_PROBE", "")
	os.Unsetenv("MM_DOTENV_PROBE")

	require.NoError(t, LoadDotEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("MM_DOTENV_PROBE"))
}

func TestValidateMarketMaker(t *testing.T) {
	base, err := Load(writeTempConfig(t, validYAML))
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*MarketMakerConfig)
		field  string
	}{
		{"cycle", func(m *MarketMakerConfig) { m.TimeBetweenCyclesSeconds = 0 }, "timeBetweenCyclesSeconds"},
		{"spread", func(m *MarketMakerConfig) { m.FuturesSpreadFraction = decimal.Zero }, "futuresSpreadFraction"},
		{"vol", func(m *MarketMakerConfig) { m.FairVolatility = 0 }, "fairVolatility"},
		{"vol spread", func(m *MarketMakerConfig) { m.VolatilitySpreadFraction = -0.1 }, "volatilitySpreadFraction"},
		{"levels", func(m *MarketMakerConfig) { m.NumLevels = -1 }, "numLevels"},
		{"lowest vol", func(m *MarketMakerConfig) { m.NumLevels = 20 }, "lowest ladder volatility"},
		{"outer futures bid", func(m *MarketMakerConfig) {
			m.NumLevels = 2
			m.FuturesSpreadFraction = decimal.RequireFromString("0.5")
		}, "futuresSpreadFraction*numLevels"},
		{"qty", func(m *MarketMakerConfig) { m.QuantityOnLevel = 0 }, "quantityOnLevel"},
		{"delta", func(m *MarketMakerConfig) { m.DeltaLimit = -1 }, "deltaLimit"},
		{"vega", func(m *MarketMakerConfig) { m.VegaLimit = -1 }, "vegaLimit"},
		{"batch", func(m *MarketMakerConfig) { m.MaxBatchSize = 0 }, "maxBatchSize"},
		{"source", func(m *MarketMakerConfig) { m.FairPriceSource = "vwap" }, "fairPriceSource"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mm := base.MarketMaker
			tc.mutate(&mm)
			err := ValidateMarketMaker(mm)
			require.ErrorIs(t, err, ErrInvalid)
			assert.True(t, strings.Contains(err.Error(), tc.field), err.Error())
		})
	}

	zero := base.MarketMaker
	zero.NumLevels, zero.DeltaLimit, zero.VegaLimit = 0, 0, 0
	assert.NoError(t, ValidateMarketMaker(zero))

	edge := base.MarketMaker
	edge.NumLevels = 2
	edge.FuturesSpreadFraction = decimal.RequireFromString("0.49")
	assert.NoError(t, ValidateMarketMaker(edge))
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(AppConfig{}), ErrInvalid)

	_, err := Load(writeTempConfig(t, strings.Replace(validYAML, "apiKey: foo", "apiKey: \"\"", 1)))
	assert.ErrorIs(t, err, ErrInvalid)
}
