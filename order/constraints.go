package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidPrice = errors.New("invalid price")

// RoundToTick 把价格对齐到 tick。买单向下取整，卖单向上取整，保证不越过理论价。
func RoundToTick(price, tick decimal.Decimal, side Side) (decimal.Decimal, error) {
	if !tick.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: tick size %s must be > 0", ErrInvalidPrice, tick)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: price %s < 0", ErrInvalidPrice, price)
	}
	rem := price.Mod(tick)
	if rem.IsZero() {
		return price, nil
	}
	down := price.Sub(rem)
	switch side {
	case SideBuy:
		return down, nil
	case SideSell:
		return down.Add(tick), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: side %d", ErrInvalidOrder, int(side))
	}
}

// IsMultiple 价格是否为 tick 的整数倍。
func IsMultiple(price, tick decimal.Decimal) bool {
	if !tick.IsPositive() {
		return true
	}
	return price.Mod(tick).IsZero()
}
