package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOrder = errors.New("invalid order")
	ErrOverfill     = errors.New("fill exceeds remaining quantity")
)

// Side 买卖方向。
type Side int

const (
	SideBuy Side = iota + 1
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

func (s Side) MarshalText() ([]byte, error) {
	if s != SideBuy && s != SideSell {
		return nil, fmt.Errorf("%w: side %d", ErrInvalidOrder, int(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "BUY":
		*s = SideBuy
	case "SELL":
		*s = SideSell
	default:
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, string(b))
	}
	return nil
}

// Order 一笔挂单。Quantity 为剩余数量，始终满足 0 <= Quantity <= InitialQuantity。
type Order struct {
	InstrumentID    int             `json:"instrumentId"`
	Side            Side            `json:"side"`
	Price           decimal.Decimal `json:"price"`
	InitialQuantity int64           `json:"initialQuantity"`
	Quantity        int64           `json:"quantity"`
}

// New 构造新订单，价格和数量必须为正。
func New(instrumentID int, side Side, quantity int64, price decimal.Decimal) (Order, error) {
	o := Order{
		InstrumentID:    instrumentID,
		Side:            side,
		Price:           price,
		InitialQuantity: quantity,
		Quantity:        quantity,
	}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (o Order) Validate() error {
	if o.Side != SideBuy && o.Side != SideSell {
		return fmt.Errorf("%w: side %d", ErrInvalidOrder, int(o.Side))
	}
	if !o.Price.IsPositive() {
		return fmt.Errorf("%w: price %s must be > 0", ErrInvalidOrder, o.Price)
	}
	if o.InitialQuantity <= 0 {
		return fmt.Errorf("%w: initial quantity %d must be > 0", ErrInvalidOrder, o.InitialQuantity)
	}
	if o.Quantity < 0 || o.Quantity > o.InitialQuantity {
		return fmt.Errorf("%w: quantity %d outside [0, %d]", ErrInvalidOrder, o.Quantity, o.InitialQuantity)
	}
	return nil
}

// Fill 扣减剩余数量。
func (o *Order) Fill(qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: fill quantity %d", ErrInvalidOrder, qty)
	}
	if qty > o.Quantity {
		return fmt.Errorf("%w: fill %d, remaining %d", ErrOverfill, qty, o.Quantity)
	}
	o.Quantity -= qty
	return nil
}

func (o Order) Done() bool { return o.Quantity == 0 }

// ToPlaceLimit 生成带 id 的下单操作。
func (o Order) ToPlaceLimit(id int64) Operation {
	return PlaceLimit(id, o.InstrumentID, o.Side, o.InitialQuantity, o.Price)
}
