package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FairPriceProvider 返回合约的公允价格（或公允波动率）。
type FairPriceProvider interface {
	FairPrice(instrumentID int) (decimal.Decimal, error)
}

// FairPriceFunc 适配普通函数。
type FairPriceFunc func(instrumentID int) (decimal.Decimal, error)

func (f FairPriceFunc) FairPrice(instrumentID int) (decimal.Decimal, error) { return f(instrumentID) }

// MidFairPrice 以盘口中间价作为公允价。
type MidFairPrice struct{ Data *DataManager }

func (p MidFairPrice) FairPrice(instrumentID int) (decimal.Decimal, error) {
	return p.Data.Mid(instrumentID)
}

// LastFairPrice 以最新成交价作为公允价。
type LastFairPrice struct{ Data *DataManager }

func (p LastFairPrice) FairPrice(instrumentID int) (decimal.Decimal, error) {
	return p.Data.LastTradePrice(instrumentID)
}

// ConstantVolatility 对所有合约返回同一个公允波动率。
type ConstantVolatility decimal.Decimal

func (v ConstantVolatility) FairPrice(int) (decimal.Decimal, error) {
	return decimal.Decimal(v), nil
}

const (
	SourceLast = "last"
	SourceMid  = "mid"
)

// NewFairPriceProvider 按配置名称选择公允价来源。
func NewFairPriceProvider(source string, data *DataManager) (FairPriceProvider, error) {
	switch source {
	case SourceLast, "":
		return LastFairPrice{Data: data}, nil
	case SourceMid:
		return MidFairPrice{Data: data}, nil
	default:
		return nil, fmt.Errorf("unknown fair price source %q", source)
	}
}
