package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-mm/config"
	"options-mm/gateway"
	"options-mm/infrastructure/logger"
	"options-mm/instrument"
	"options-mm/internal/engine"
	"options-mm/market"
	"options-mm/order"
	"options-mm/risk"
	"options-mm/sim"
)

func simExchange(t *testing.T) (*sim.Exchange, string) {
	t.Helper()
	x := sim.NewExchange([]instrument.Instrument{{
		ID: 1, Symbol: "F", Kind: instrument.KindInverseFutures,
		Expiration: time.Now().Add(30 * 24 * time.Hour), TickSize: decimal.RequireFromString("0.5"), NotionalAmount: 1,
	}}, risk.AccountState{}, nil)
	require.NoError(t, x.SetQuotes(market.Quotes{InstrumentID: 1, Last: decimal.NewFromInt(100)}))
	srv := httptest.NewServer(x)
	t.Cleanup(srv.Close)
	return x, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func appConfig(url string) config.AppConfig {
	return config.AppConfig{
		Env:     "test",
		Gateway: config.GatewayConfig{URL: url, RateLimit: 100, Burst: 10},
		MarketMaker: config.MarketMakerConfig{
			TimeBetweenCyclesSeconds: 30,
			FuturesSpreadFraction:    decimal.RequireFromString("0.01"),
			FairVolatility:           0.5,
			VolatilitySpreadFraction: 0.1,
			NumLevels:                1,
			QuantityOnLevel:          1,
			DeltaLimit:               10,
			VegaLimit:                100,
			MaxBatchSize:             10,
			FairPriceSource:          "last",
		},
		Log:  logger.Config{Level: "warn"},
		HTTP: config.HTTPConfig{Addr: "127.0.0.1:0"},
	}
}

func nextBatch(t *testing.T, x *sim.Exchange) []order.Operation {
	t.Helper()
	select {
	case b := <-x.Batches():
		return b
	case <-time.After(3 * time.Second):
		t.Fatal("no batch")
		return nil
	}
}

func TestContainerRunsMarketMaker(t *testing.T) {
	x, url := simExchange(t)
	c := NewWithConfig(appConfig(url), "")
	require.NoError(t, c.Build())
	require.NoError(t, c.Start(context.Background()))

	assert.Len(t, nextBatch(t, x), 3)
	require.Eventually(t, func() bool { return c.HealthCheck() == nil && c.Runner().State() == engine.StateRunning },
		2*time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	c.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), c.Runner().SessionID())

	require.NoError(t, c.Stop())
	select {
	case <-c.Done():
	default:
		t.Fatal("runner still running after stop")
	}
}

func TestContainerReportsRunnerFailure(t *testing.T) {
	x, url := simExchange(t)
	c := NewWithConfig(appConfig(url), "")
	require.NoError(t, c.Build())
	require.NoError(t, c.Start(context.Background()))
	nextBatch(t, x)

	require.NoError(t, x.Push(gateway.TypeOrderCancelled, order.Cancelled{OrderID: 42}))
	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("runner did not halt")
	}
	assert.Error(t, c.HealthCheck())
	assert.Equal(t, []order.Operation{order.CancelAll()}, nextBatch(t, x))
	assert.Error(t, c.Stop())
}
