package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OpType 出站操作类型。
type OpType string

const (
	OpCancelAll  OpType = "cancel_all_orders"
	OpCancel     OpType = "cancel_order"
	OpPlaceLimit OpType = "place_limit_order"
)

// Operation 交给传输层的单个指令。按 Type 只使用对应字段。
type Operation struct {
	Type         OpType           `json:"type"`
	OrderID      int64            `json:"clientOrderId,omitempty"`
	InstrumentID int              `json:"instrumentId,omitempty"`
	Side         Side             `json:"side,omitempty"`
	Quantity     int64            `json:"quantity,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
}

func CancelAll() Operation {
	return Operation{Type: OpCancelAll}
}

func Cancel(id int64) Operation {
	return Operation{Type: OpCancel, OrderID: id}
}

func PlaceLimit(id int64, instrumentID int, side Side, quantity int64, price decimal.Decimal) Operation {
	return Operation{
		Type:         OpPlaceLimit,
		OrderID:      id,
		InstrumentID: instrumentID,
		Side:         side,
		Quantity:     quantity,
		Price:        &price,
	}
}

func (op Operation) String() string {
	switch op.Type {
	case OpCancelAll:
		return "CancelAll"
	case OpCancel:
		return fmt.Sprintf("Cancel(%d)", op.OrderID)
	case OpPlaceLimit:
		price := "?"
		if op.Price != nil {
			price = op.Price.String()
		}
		return fmt.Sprintf("PlaceLimit(%d, instrument=%d, %s %d @ %s)", op.OrderID, op.InstrumentID, op.Side, op.Quantity, price)
	default:
		return string(op.Type)
	}
}
