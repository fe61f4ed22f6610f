package market

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNoQuotes 合约尚未收到行情；策略不能在缺失数据上报价。
var ErrNoQuotes = errors.New("no quotes")

var two = decimal.NewFromInt(2)

// DataManager 缓存每个合约的最新 bid/ask/last。
// 非并发安全：由引擎工作协程独占。
type DataManager struct {
	quotes map[int]Quotes
	log    *zap.Logger
}

func NewDataManager(log *zap.Logger) *DataManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &DataManager{
		quotes: make(map[int]Quotes),
		log:    log,
	}
}

// OnQuotes 整体替换该合约的行情。
func (m *DataManager) OnQuotes(q Quotes) error {
	m.log.Debug("quotes", zap.Int("instrument", q.InstrumentID), zap.Stringer("last", q.Last))
	m.quotes[q.InstrumentID] = q
	return nil
}

// Quotes 返回最新快照。
func (m *DataManager) Quotes(instrumentID int) (Quotes, bool) {
	q, ok := m.quotes[instrumentID]
	return q, ok
}

// LastTradePrice 最新成交价。
func (m *DataManager) LastTradePrice(instrumentID int) (decimal.Decimal, error) {
	q, ok := m.quotes[instrumentID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w for %d", ErrNoQuotes, instrumentID)
	}
	return positive(instrumentID, q.Last, "last trade")
}

// Mid 中间价；单边缺失时取另一边，盘口为空时退回最新成交价。
func (m *DataManager) Mid(instrumentID int) (decimal.Decimal, error) {
	q, ok := m.quotes[instrumentID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w for %d", ErrNoQuotes, instrumentID)
	}
	switch {
	case q.Bid != nil && q.Ask != nil:
		return positive(instrumentID, q.Bid.Price.Add(q.Ask.Price).Div(two).RoundBank(8), "mid")
	case q.Bid != nil:
		return positive(instrumentID, q.Bid.Price, "bid")
	case q.Ask != nil:
		return positive(instrumentID, q.Ask.Price, "ask")
	default:
		return positive(instrumentID, q.Last, "last trade")
	}
}

// positive 未成交的合约 last 为 0，视同缺少行情。
func positive(instrumentID int, price decimal.Decimal, what string) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w for %d: %s price %s", ErrNoQuotes, instrumentID, what, price)
	}
	return price, nil
}
