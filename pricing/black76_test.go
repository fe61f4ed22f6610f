package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"options-mm/instrument"
)

var now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func option(kind instrument.Kind, strike float64, expiry time.Duration) instrument.Instrument {
	return instrument.Instrument{
		ID:             1,
		Kind:           kind,
		Expiration:     now.Add(expiry),
		Strike:         decimal.NewFromFloat(strike),
		TickSize:       decimal.RequireFromString("0.0001"),
		NotionalAmount: 1,
	}
}

const oneYear = 365 * 24 * time.Hour

func TestBlack76AtTheMoney(t *testing.T) {
	e := NewEngine(instrument.FixedClock(now))

	// F = K = 100, σ = 0.5, t = 1 => d1 = 0.25, d2 = -0.25
	m, err := e.PriceAndGreeks(option(instrument.KindCallOption, 100, oneYear), 0.5, 100)
	require.NoError(t, err)

	assert.InDelta(t, 19.741265, m.Price(), 1e-5)
	assert.InDelta(t, 0.598706, m.Delta(), 1e-6)
	assert.InDelta(t, 0.386668/50, m.GammaP(), 1e-6)
	assert.InDelta(t, 0.386668, m.Vega(), 1e-6)
	assert.InDelta(t, -(100*0.386668*0.5)/2/365, m.Theta(), 1e-6)
}

func TestInverseFuturesHasNoOptionality(t *testing.T) {
	e := NewEngine(instrument.FixedClock(now))
	f := instrument.Instrument{ID: 9, Kind: instrument.KindInverseFutures, Expiration: now.Add(oneYear)}

	m, err := e.PriceAndGreeks(f, 0.8, 1234.5)
	require.NoError(t, err)
	assert.Equal(t, 1234.5, m.Price())
	assert.Equal(t, 1.0, m.Delta())
	assert.Zero(t, m.GammaP())
	assert.Zero(t, m.Vega())
	assert.Zero(t, m.Theta())
}

func TestPutCallParity(t *testing.T) {
	e := NewEngine(instrument.FixedClock(now))
	for _, strike := range []float64{50, 90, 100, 110, 250} {
		c, err := e.PriceAndGreeks(option(instrument.KindCallOption, strike, 45*24*time.Hour), 0.7, 100)
		require.NoError(t, err)
		p, err := e.PriceAndGreeks(option(instrument.KindPutOption, strike, 45*24*time.Hour), 0.7, 100)
		require.NoError(t, err)

		assert.InDelta(t, 1, c.Delta()-p.Delta(), 1e-12, "strike %v", strike)
		assert.InDelta(t, c.Vega(), p.Vega(), 1e-12)
		assert.InDelta(t, c.GammaP(), p.GammaP(), 1e-12)
		// 远期价格下无折现：C - P = F - K
		assert.InDelta(t, 100-strike, c.Price()-p.Price(), 1e-9)
	}
}

func TestExpiredOptionIsRejected(t *testing.T) {
	e := NewEngine(instrument.FixedClock(now))
	_, err := e.PriceAndGreeks(option(instrument.KindCallOption, 100, -time.Hour), 0.5, 100)
	assert.ErrorIs(t, err, ErrInvalidMetrics)
}

func TestYearsToMaturityRoundsUp(t *testing.T) {
	e := NewEngine(instrument.FixedClock(now))
	// 1ms 到期仍为正数
	assert.Greater(t, e.yearsToMaturity(now.Add(time.Millisecond)), 0.0)
	assert.Equal(t, 1.0, e.yearsToMaturity(now.Add(oneYear)))
}

func TestNewMetricsValidation(t *testing.T) {
	_, err := NewMetrics(-0.01, 0, 0, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidMetrics)
	_, err = NewMetrics(1, 1.0001, 0, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidMetrics)
	_, err = NewMetrics(1, -1.0001, 0, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidMetrics)

	m, err := NewMetrics(0, -1, 0.1, 0.2, -0.3)
	require.NoError(t, err)
	assert.Equal(t, -1.0, m.Delta())
}

func TestPricingBounds(t *testing.T) {
	e := NewEngine(instrument.FixedClock(now))
	rapid.Check(t, func(t *rapid.T) {
		kind := rapid.SampledFrom([]instrument.Kind{instrument.KindCallOption, instrument.KindPutOption}).Draw(t, "kind")
		strike := rapid.Float64Range(1, 100000).Draw(t, "strike")
		f := rapid.Float64Range(1, 100000).Draw(t, "underlying")
		vol := rapid.Float64Range(0.01, 3).Draw(t, "vol")
		minutes := rapid.IntRange(1, 3*365*24*60).Draw(t, "minutes")

		m, err := e.PriceAndGreeks(option(kind, strike, time.Duration(minutes)*time.Minute), vol, f)
		if err != nil {
			t.Fatalf("pricing failed: %v", err)
		}
		if m.Price() < 0 {
			t.Fatalf("negative price %v", m.Price())
		}
		if m.Delta() < -1 || m.Delta() > 1 {
			t.Fatalf("delta %v out of range", m.Delta())
		}
	})
}
