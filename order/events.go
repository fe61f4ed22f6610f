package order

import "github.com/shopspring/decimal"

// 交易所回报事件。字段名与网关 JSON 对齐。

type Placed struct {
	OrderID         int64           `json:"clientOrderId"`
	InstrumentID    int             `json:"instrumentId"`
	Side            Side            `json:"side"`
	Price           decimal.Decimal `json:"price"`
	InitialQuantity int64           `json:"initialQuantity"`
	Quantity        int64           `json:"quantity"`
}

// Order 回报对应的订单；Quantity 为 0 时视为全新订单。
func (p Placed) Order() Order {
	qty := p.Quantity
	if qty == 0 {
		qty = p.InitialQuantity
	}
	return Order{
		InstrumentID:    p.InstrumentID,
		Side:            p.Side,
		Price:           p.Price,
		InitialQuantity: p.InitialQuantity,
		Quantity:        qty,
	}
}

type Filled struct {
	OrderID        int64           `json:"clientOrderId"`
	InstrumentID   int             `json:"instrumentId"`
	Price          decimal.Decimal `json:"tradePrice"`
	FilledQuantity int64           `json:"filledQuantity"`
	LeftQuantity   int64           `json:"leftQuantity"`
}

type Cancelled struct {
	OrderID int64 `json:"clientOrderId"`
}

type ForcefullyCancelled struct {
	OrderID int64  `json:"clientOrderId"`
	Cause   string `json:"cause,omitempty"`
}

type PlaceFailed struct {
	OrderID int64  `json:"clientOrderId"`
	Cause   string `json:"cause,omitempty"`
}

type CancelFailed struct {
	OrderID int64  `json:"clientOrderId"`
	Cause   string `json:"cause,omitempty"`
}

type Modified struct {
	OrderID int64 `json:"clientOrderId"`
}

type ModificationFailed struct {
	OrderID int64  `json:"clientOrderId"`
	Cause   string `json:"cause,omitempty"`
}

type AllCancelled struct{}

type CancelAllFailed struct {
	Cause string `json:"cause,omitempty"`
}
