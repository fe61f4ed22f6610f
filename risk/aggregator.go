package risk

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"options-mm/instrument"
	"options-mm/market"
	"options-mm/pricing"
)

// OpenPosition 交易所推送的持仓，Quantity 为正表示多头。
type OpenPosition struct {
	InstrumentID int   `json:"instrumentId"`
	Quantity     int64 `json:"quantity"`
}

// AccountState 初始账户快照；收到后引擎进入运行状态。
type AccountState struct {
	Balance   decimal.Decimal `json:"balance"`
	Positions []OpenPosition  `json:"positions"`
}

// Greeks 组合层面的希腊值合计。
type Greeks struct {
	Delta  float64 `json:"delta"`
	GammaP float64 `json:"gammaP"`
	Vega   float64 `json:"vega"`
	Theta  float64 `json:"theta"`
}

// Instruments 合约查询能力。
type Instruments interface {
	Instrument(id int) (instrument.Instrument, error)
	FuturesAtExpiration(expiration time.Time) (instrument.Instrument, error)
}

type Pricer interface {
	PriceAndGreeks(inst instrument.Instrument, volatility, underlying float64) (pricing.Metrics, error)
}

// Aggregator 维护持仓并全量重算组合希腊值。
// 非并发安全：由引擎工作协程独占。
type Aggregator struct {
	instruments Instruments
	volatility  market.FairPriceProvider
	futures     market.FairPriceProvider
	pricer      Pricer
	log         *zap.Logger

	positions map[int]OpenPosition
	totals    Greeks
	stale     bool
}

func NewAggregator(instruments Instruments, volatility, futures market.FairPriceProvider, pricer Pricer, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		instruments: instruments,
		volatility:  volatility,
		futures:     futures,
		pricer:      pricer,
		log:         log,
		positions:   make(map[int]OpenPosition),
	}
}

// OnOpenPosition 整体替换持仓后重算。
func (a *Aggregator) OnOpenPosition(p OpenPosition) error {
	a.positions[p.InstrumentID] = p
	return a.Recompute()
}

// Recompute 遍历全部持仓重新定价。任何一个持仓失败时保留上一次的合计。
func (a *Aggregator) Recompute() error {
	ids := make([]int, 0, len(a.positions))
	for id := range a.positions {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var sum Greeks
	for _, id := range ids {
		p := a.positions[id]
		if p.Quantity == 0 {
			continue
		}
		g, err := a.positionGreeks(p)
		if err != nil {
			a.stale = true
			return fmt.Errorf("recompute risk: %w", err)
		}
		sum.Delta += g.Delta
		sum.GammaP += g.GammaP
		sum.Vega += g.Vega
		sum.Theta += g.Theta
	}
	a.totals = sum
	a.stale = false
	a.log.Info("portfolio greeks",
		zap.Int("positions", len(a.positions)),
		zap.Float64("delta", sum.Delta),
		zap.Float64("gammaP", sum.GammaP),
		zap.Float64("vega", sum.Vega),
		zap.Float64("theta", sum.Theta))
	return nil
}

func (a *Aggregator) positionGreeks(p OpenPosition) (Greeks, error) {
	inst, err := a.instruments.Instrument(p.InstrumentID)
	if err != nil {
		return Greeks{}, err
	}
	underlying, err := a.instruments.FuturesAtExpiration(inst.Expiration)
	if err != nil {
		return Greeks{}, fmt.Errorf("position %d: %w", p.InstrumentID, err)
	}
	f, err := a.futures.FairPrice(underlying.ID)
	if err != nil {
		return Greeks{}, fmt.Errorf("fair price of %d: %w", underlying.ID, err)
	}
	vol, err := a.volatility.FairPrice(inst.ID)
	if err != nil {
		return Greeks{}, fmt.Errorf("fair volatility of %d: %w", inst.ID, err)
	}
	m, err := a.pricer.PriceAndGreeks(inst, vol.InexactFloat64(), f.InexactFloat64())
	if err != nil {
		return Greeks{}, err
	}

	qty := float64(p.Quantity)
	notional := qty * float64(inst.NotionalAmount)
	g := Greeks{
		Delta:  m.Delta() * qty,
		GammaP: m.GammaP() * qty,
		Vega:   m.Vega() * notional,
		Theta:  m.Theta() * notional,
	}
	a.log.Debug("position greeks",
		zap.Int("instrumentId", inst.ID),
		zap.Int64("quantity", p.Quantity),
		zap.Stringer("metrics", m),
		zap.Float64("delta", g.Delta),
		zap.Float64("vega", g.Vega))
	return g, nil
}

// Stale 上一次重算失败，合计值不反映当前持仓。
func (a *Aggregator) Stale() bool { return a.stale }

func (a *Aggregator) TotalDelta() float64  { return a.totals.Delta }
func (a *Aggregator) TotalVega() float64   { return a.totals.Vega }
func (a *Aggregator) TotalGammaP() float64 { return a.totals.GammaP }
func (a *Aggregator) TotalTheta() float64  { return a.totals.Theta }
func (a *Aggregator) Totals() Greeks       { return a.totals }

// Positions 返回持仓副本，按合约 id 升序。
func (a *Aggregator) Positions() []OpenPosition {
	out := make([]OpenPosition, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, p)
	}
	slices.SortFunc(out, func(x, y OpenPosition) int { return x.InstrumentID - y.InstrumentID })
	return out
}
