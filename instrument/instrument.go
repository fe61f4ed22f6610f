package instrument

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind 合约类型。
type Kind int

const (
	KindFutures Kind = iota
	KindInverseFutures
	KindCallOption
	KindPutOption
)

func (k Kind) String() string {
	switch k {
	case KindFutures:
		return "FUTURES"
	case KindInverseFutures:
		return "INVERSE_FUTURES"
	case KindCallOption:
		return "CALL"
	case KindPutOption:
		return "PUT"
	default:
		return "UNKNOWN"
	}
}

// ParseKind 解析交易所下发的合约类型字符串。
func ParseKind(s string) (Kind, error) {
	switch s {
	case "FUTURES", "futures":
		return KindFutures, nil
	case "INVERSE_FUTURES", "inverse_futures":
		return KindInverseFutures, nil
	case "CALL", "call", "CALL_EUROPEAN":
		return KindCallOption, nil
	case "PUT", "put", "PUT_EUROPEAN":
		return KindPutOption, nil
	default:
		return 0, fmt.Errorf("unknown instrument kind %q", s)
	}
}

// Instrument 合约静态数据，启动时由交易所下发，之后不再修改。
type Instrument struct {
	ID             int
	Symbol         string
	Kind           Kind
	Expiration     time.Time
	Strike         decimal.Decimal // 仅期权
	TickSize       decimal.Decimal
	NotionalAmount int64
}

func (i Instrument) IsFutures() bool {
	return i.Kind == KindFutures || i.Kind == KindInverseFutures
}

func (i Instrument) IsOption() bool {
	return i.Kind == KindCallOption || i.Kind == KindPutOption
}

// IsTraded 到期前可交易。
func (i Instrument) IsTraded(now time.Time) bool {
	return now.Before(i.Expiration)
}

// Validate 检查静态数据是否可用于报价。
func (i Instrument) Validate() error {
	if !i.TickSize.IsPositive() {
		return fmt.Errorf("instrument %d tickSize must be > 0", i.ID)
	}
	if i.NotionalAmount <= 0 {
		return fmt.Errorf("instrument %d notionalAmount must be > 0", i.ID)
	}
	if i.IsOption() && !i.Strike.IsPositive() {
		return fmt.Errorf("option %d strike must be > 0", i.ID)
	}
	if i.Expiration.IsZero() {
		return fmt.Errorf("instrument %d expiration is required", i.ID)
	}
	return nil
}
