package strategy

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"options-mm/instrument"
	"options-mm/order"
	"options-mm/pricing"
)

var (
	// ErrCrossedQuotes 生成的最优买价不低于最优卖价，说明配置或定价不一致。
	ErrCrossedQuotes       = errors.New("crossed quotes")
	ErrWrongInstrumentKind = errors.New("wrong instrument kind")
)

// Strategy 为单个合约生成目标挂单，买单在前、卖单在后，各自由内向外。
type Strategy interface {
	Quote(inst instrument.Instrument) ([]order.Order, error)
}

// Exposure 组合风险读数。
type Exposure interface {
	TotalDelta() float64
	TotalVega() float64
}

type Pricer interface {
	PriceAndGreeks(inst instrument.Instrument, volatility, underlying float64) (pricing.Metrics, error)
}

type FuturesLocator interface {
	FuturesAtExpiration(expiration time.Time) (instrument.Instrument, error)
}

// ladder 一侧的挂单，index 0 为最靠近公允价的档位。
type ladder []order.Order

func (l ladder) best() (decimal.Decimal, bool) {
	if len(l) == 0 {
		return decimal.Zero, false
	}
	return l[0].Price, true
}

func join(inst instrument.Instrument, bids, asks ladder) ([]order.Order, error) {
	bid, okBid := bids.best()
	ask, okAsk := asks.best()
	if okBid && okAsk && !bid.LessThan(ask) {
		return nil, fmt.Errorf("%w: instrument %d bid %s >= ask %s", ErrCrossedQuotes, inst.ID, bid, ask)
	}
	out := make([]order.Order, 0, len(bids)+len(asks))
	out = append(out, bids...)
	return append(out, asks...), nil
}
