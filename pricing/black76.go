package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat/distuv"

	"options-mm/instrument"
)

var yearMillis = decimal.NewFromInt(int64(365 * 24 * time.Hour / time.Millisecond))

// Engine 期货/欧式期权理论价与希腊值。无副作用，仅依赖时钟。
type Engine struct {
	clock instrument.Clock
}

func NewEngine(clock instrument.Clock) *Engine {
	if clock == nil {
		clock = instrument.SystemClock
	}
	return &Engine{clock: clock}
}

// PriceAndGreeks 以 underlying 作为同到期期货价格定价。
// 期货没有期权性：price = underlying, delta = 1。
func (e *Engine) PriceAndGreeks(inst instrument.Instrument, volatility, underlying float64) (Metrics, error) {
	if inst.IsFutures() {
		return NewMetrics(underlying, 1, 0, 0, 0)
	}
	t := e.yearsToMaturity(inst.Expiration)
	m, err := black76(inst.Kind == instrument.KindCallOption, volatility, underlying, t, inst.Strike.InexactFloat64())
	if err != nil {
		return Metrics{}, fmt.Errorf("price instrument %d (vol=%v, f=%v, t=%v): %w", inst.ID, volatility, underlying, t, err)
	}
	return m, nil
}

// yearsToMaturity 向上取整到 10 位小数，避免恰好为 0。
func (e *Engine) yearsToMaturity(expiration time.Time) float64 {
	ms := expiration.Sub(e.clock.Now()).Milliseconds()
	return decimal.NewFromInt(ms).Div(yearMillis).RoundUp(10).InexactFloat64()
}

// black76 s: volatility, f: futures price, t: years to maturity, x: strike.
func black76(call bool, s, f, t, x float64) (Metrics, error) {
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(f/x) + (s*s/2)*t) / (s * sqrtT)
	d2 := d1 - s*sqrtT

	cdfD1 := distuv.UnitNormal.CDF(d1)
	densityD1 := distuv.UnitNormal.Prob(d1)

	delta := cdfD1
	gamma := densityD1 / (f * s * sqrtT)
	gammaP := gamma * f / 100
	vega := f * densityD1 * sqrtT / 100
	theta := (-(f * densityD1 * s) / (2 * sqrtT)) / 365.0

	var price float64
	if call {
		price = f*cdfD1 - x*distuv.UnitNormal.CDF(d2)
	} else {
		price = x*distuv.UnitNormal.CDF(-d2) - f*(1-cdfD1)
		delta -= 1 // put-call parity
	}
	if price < 0 { // 深度虚值的数值误差
		price = 0
	}
	return NewMetrics(price, delta, gammaP, vega, theta)
}
