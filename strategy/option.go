package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"options-mm/instrument"
	"options-mm/market"
	"options-mm/order"
)

// OptionConfig 期权阶梯参数，价差以波动率表示。
type OptionConfig struct {
	Levels            int
	QuantityOnLevel   int64
	DeltaLimit        float64
	VegaLimit         float64
	VolSpreadFraction float64
}

// Option 在公允波动率两侧按档位偏移波动率，用 Black-76 重新定价得到阶梯。
type Option struct {
	cfg        OptionConfig
	volatility market.FairPriceProvider
	futures    market.FairPriceProvider
	locator    FuturesLocator
	pricer     Pricer
	exposure   Exposure
	log        *zap.Logger
}

func NewOption(cfg OptionConfig, volatility, futures market.FairPriceProvider, locator FuturesLocator, pricer Pricer, exposure Exposure, log *zap.Logger) *Option {
	if log == nil {
		log = zap.NewNop()
	}
	return &Option{
		cfg:        cfg,
		volatility: volatility,
		futures:    futures,
		locator:    locator,
		pricer:     pricer,
		exposure:   exposure,
		log:        log,
	}
}

func (s *Option) SetConfig(cfg OptionConfig) { s.cfg = cfg }

func (s *Option) Quote(inst instrument.Instrument) ([]order.Order, error) {
	if !inst.IsOption() {
		return nil, fmt.Errorf("%w: option strategy got %s %d", ErrWrongInstrumentKind, inst.Kind, inst.ID)
	}
	volD, err := s.volatility.FairPrice(inst.ID)
	if err != nil {
		return nil, fmt.Errorf("quote option %d: fair volatility: %w", inst.ID, err)
	}
	underlying, err := s.locator.FuturesAtExpiration(inst.Expiration)
	if err != nil {
		return nil, fmt.Errorf("quote option %d: %w", inst.ID, err)
	}
	fD, err := s.futures.FairPrice(underlying.ID)
	if err != nil {
		return nil, fmt.Errorf("quote option %d: underlying %d: %w", inst.ID, underlying.ID, err)
	}
	vol, f := volD.InexactFloat64(), fD.InexactFloat64()
	volSpread := vol * s.cfg.VolSpreadFraction

	placeBuys, placeSells := s.gates(inst)

	var bids, asks ladder
	for i := 1; i <= s.cfg.Levels; i++ {
		shift := float64(i) * volSpread
		if placeBuys {
			o, ok, err := s.level(inst, order.SideBuy, vol-shift, f)
			if err != nil {
				return nil, err
			}
			if ok {
				bids = append(bids, o)
			}
		}
		if placeSells {
			o, _, err := s.level(inst, order.SideSell, vol+shift, f)
			if err != nil {
				return nil, err
			}
			asks = append(asks, o)
		}
	}
	s.log.Debug("option ladder",
		zap.Int("instrumentId", inst.ID),
		zap.Float64("vol", vol),
		zap.Float64("underlying", f),
		zap.Bool("buys", placeBuys),
		zap.Bool("sells", placeSells),
		zap.Int("bids", len(bids)),
		zap.Int("asks", len(asks)))
	return join(inst, bids, asks)
}

// gates 按组合 delta/vega 关闭一侧报价。call 与 put 的 delta 方向相反。
func (s *Option) gates(inst instrument.Instrument) (placeBuys, placeSells bool) {
	placeBuys, placeSells = true, true
	delta := s.exposure.TotalDelta()
	if inst.Kind == instrument.KindCallOption {
		if delta >= s.cfg.DeltaLimit {
			placeBuys = false
		} else if delta <= -s.cfg.DeltaLimit {
			placeSells = false
		}
	} else {
		if delta >= s.cfg.DeltaLimit {
			placeSells = false
		} else if delta <= -s.cfg.DeltaLimit {
			placeBuys = false
		}
	}

	vega := s.exposure.TotalVega()
	if vega >= s.cfg.VegaLimit {
		placeBuys = false
	} else if vega <= -s.cfg.VegaLimit {
		placeSells = false
	}
	return placeBuys, placeSells
}

// level 返回 false 表示该档买价为 0 被丢弃；卖价为 0 时抬到一个 tick。
func (s *Option) level(inst instrument.Instrument, side order.Side, vol, f float64) (order.Order, bool, error) {
	m, err := s.pricer.PriceAndGreeks(inst, vol, f)
	if err != nil {
		return order.Order{}, false, fmt.Errorf("quote option %d: %w", inst.ID, err)
	}
	price, err := order.RoundToTick(decimal.NewFromFloat(m.Price()), inst.TickSize, side)
	if err != nil {
		return order.Order{}, false, fmt.Errorf("quote option %d: %w", inst.ID, err)
	}
	if price.IsZero() {
		if side == order.SideBuy {
			return order.Order{}, false, nil
		}
		price = inst.TickSize
	}
	o, err := order.New(inst.ID, side, s.cfg.QuantityOnLevel, price)
	if err != nil {
		return order.Order{}, false, fmt.Errorf("quote option %d: %w", inst.ID, err)
	}
	return o, true, nil
}
