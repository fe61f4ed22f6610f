package config

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalid 配置校验失败。
var ErrInvalid = errors.New("invalid config")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return invalid("env is required")
	}
	if cfg.Gateway.URL == "" {
		return invalid("gateway.url is required (or MM_GATEWAY_URL)")
	}
	if cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "" {
		return invalid("gateway.apiKey/apiSecret is required (or env overrides)")
	}
	if cfg.Gateway.RateLimit < 0 || cfg.Gateway.Burst < 0 {
		return invalid("gateway.rateLimit/burst must be >= 0")
	}
	return ValidateMarketMaker(cfg.MarketMaker)
}

// ValidateMarketMaker 校验报价参数；热更新时单独调用。
func ValidateMarketMaker(mm MarketMakerConfig) error {
	if mm.TimeBetweenCyclesSeconds <= 0 {
		return invalid("marketMaker.timeBetweenCyclesSeconds must be > 0")
	}
	if !mm.FuturesSpreadFraction.IsPositive() {
		return invalid("marketMaker.futuresSpreadFraction must be > 0")
	}
	if !(mm.FairVolatility > 0) {
		return invalid("marketMaker.fairVolatility must be > 0")
	}
	if !(mm.VolatilitySpreadFraction > 0) {
		return invalid("marketMaker.volatilitySpreadFraction must be > 0")
	}
	if mm.NumLevels < 0 {
		return invalid("marketMaker.numLevels must be >= 0")
	}
	// 最外层买单的波动率必须为正
	if lowest := mm.FairVolatility - float64(mm.NumLevels)*mm.FairVolatility*mm.VolatilitySpreadFraction; !(lowest > 0) {
		return invalid("marketMaker: lowest ladder volatility %g must be > 0", lowest)
	}
	// 最外层期货买单 fair·(1 − fraction·numLevels) 必须为正
	if outer := mm.FuturesSpreadFraction.Mul(decimal.NewFromInt(int64(mm.NumLevels))); outer.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return invalid("marketMaker: futuresSpreadFraction*numLevels %s must be < 1", outer)
	}
	if mm.QuantityOnLevel <= 0 {
		return invalid("marketMaker.quantityOnLevel must be > 0")
	}
	if mm.DeltaLimit < 0 {
		return invalid("marketMaker.deltaLimit must be >= 0")
	}
	if mm.VegaLimit < 0 {
		return invalid("marketMaker.vegaLimit must be >= 0")
	}
	if mm.MaxBatchSize <= 0 {
		return invalid("marketMaker.maxBatchSize must be > 0")
	}
	switch mm.FairPriceSource {
	case "last", "mid":
	default:
		return invalid("marketMaker.fairPriceSource %q must be last or mid", mm.FairPriceSource)
	}
	if mm.QueueSize < 0 {
		return invalid("marketMaker.queueSize must be >= 0")
	}
	if mm.ShutdownGraceSeconds < 0 {
		return invalid("marketMaker.shutdownGraceSeconds must be >= 0")
	}
	return nil
}
