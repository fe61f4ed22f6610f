package pricing

import (
	"errors"
	"fmt"
)

// ErrInvalidMetrics 定价结果违反 price >= 0 或 delta ∈ [-1, 1]。
var ErrInvalidMetrics = errors.New("invalid metrics")

// Metrics 单合约理论价与希腊值。只能通过 NewMetrics 构造，构造后不可变。
type Metrics struct {
	price  float64
	delta  float64
	gammaP float64
	vega   float64
	theta  float64
}

// NewMetrics 校验后构造定价结果；NaN 同样视为非法。
func NewMetrics(price, delta, gammaP, vega, theta float64) (Metrics, error) {
	if !(price >= 0) {
		return Metrics{}, fmt.Errorf("%w: price=%v < 0", ErrInvalidMetrics, price)
	}
	if !(delta >= -1 && delta <= 1) {
		return Metrics{}, fmt.Errorf("%w: delta=%v outside [-1, 1]", ErrInvalidMetrics, delta)
	}
	return Metrics{price: price, delta: delta, gammaP: gammaP, vega: vega, theta: theta}, nil
}

func (m Metrics) Price() float64 { return m.price }
func (m Metrics) Delta() float64 { return m.delta }

// GammaP gamma per 1% move of the underlying.
func (m Metrics) GammaP() float64 { return m.gammaP }

// Vega per one volatility point.
func (m Metrics) Vega() float64 { return m.vega }

// Theta per calendar day.
func (m Metrics) Theta() float64 { return m.theta }

func (m Metrics) String() string {
	return fmt.Sprintf("Metrics{price=%g delta=%g gammaP=%g vega=%g theta=%g}", m.price, m.delta, m.gammaP, m.vega, m.theta)
}
