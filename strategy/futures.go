package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"options-mm/instrument"
	"options-mm/market"
	"options-mm/order"
)

// FuturesConfig 期货阶梯参数。
type FuturesConfig struct {
	Levels          int
	QuantityOnLevel int64
	DeltaLimit      float64
	SpreadFraction  decimal.Decimal
}

// Futures 以公允价为中心按固定比例价差挂阶梯单。
type Futures struct {
	cfg      FuturesConfig
	prices   market.FairPriceProvider
	exposure Exposure
	log      *zap.Logger
}

func NewFutures(cfg FuturesConfig, prices market.FairPriceProvider, exposure Exposure, log *zap.Logger) *Futures {
	if log == nil {
		log = zap.NewNop()
	}
	return &Futures{cfg: cfg, prices: prices, exposure: exposure, log: log}
}

func (s *Futures) SetConfig(cfg FuturesConfig) { s.cfg = cfg }

func (s *Futures) Quote(inst instrument.Instrument) ([]order.Order, error) {
	if !inst.IsFutures() {
		return nil, fmt.Errorf("%w: futures strategy got %s %d", ErrWrongInstrumentKind, inst.Kind, inst.ID)
	}
	fair, err := s.prices.FairPrice(inst.ID)
	if err != nil {
		return nil, fmt.Errorf("quote futures %d: %w", inst.ID, err)
	}
	spread := fair.Mul(s.cfg.SpreadFraction)

	delta := s.exposure.TotalDelta()
	placeBuys := delta < s.cfg.DeltaLimit
	placeSells := delta > -s.cfg.DeltaLimit

	var bids, asks ladder
	for i := 1; i <= s.cfg.Levels; i++ {
		step := spread.Mul(decimal.NewFromInt(int64(i)))
		if placeBuys {
			o, err := s.level(inst, order.SideBuy, fair.Sub(step))
			if err != nil {
				return nil, err
			}
			bids = append(bids, o)
		}
		if placeSells {
			o, err := s.level(inst, order.SideSell, fair.Add(step))
			if err != nil {
				return nil, err
			}
			asks = append(asks, o)
		}
	}
	s.log.Debug("futures ladder",
		zap.Int("instrumentId", inst.ID),
		zap.Stringer("fair", fair),
		zap.Float64("delta", delta),
		zap.Int("bids", len(bids)),
		zap.Int("asks", len(asks)))
	return join(inst, bids, asks)
}

func (s *Futures) level(inst instrument.Instrument, side order.Side, raw decimal.Decimal) (order.Order, error) {
	price, err := order.RoundToTick(raw, inst.TickSize, side)
	if err != nil {
		return order.Order{}, fmt.Errorf("quote futures %d: %w", inst.ID, err)
	}
	o, err := order.New(inst.ID, side, s.cfg.QuantityOnLevel, price)
	if err != nil {
		return order.Order{}, fmt.Errorf("quote futures %d: %w", inst.ID, err)
	}
	return o, nil
}
