package order

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

var (
	ErrUnknownOrder   = errors.New("unknown order")
	ErrDuplicateOrder = errors.New("duplicate order id")
)

// Ledger 交易所挂单的本地镜像，按 id 和合约双重索引。
// 非并发安全：只允许在引擎 worker 中访问。
type Ledger struct {
	log          *zap.Logger
	maxID        int64
	orders       map[int64]*Order
	byInstrument map[int]map[int64]struct{}
}

func NewLedger(log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		log:          log,
		orders:       make(map[int64]*Order),
		byInstrument: make(map[int]map[int64]struct{}),
	}
}

// NextOrderID 返回严格递增的新 id。
func (l *Ledger) NextOrderID() int64 {
	l.maxID++
	return l.maxID
}

// OnPlaced 登记已确认的挂单，并把 id 计数器推进到至少该 id。
func (l *Ledger) OnPlaced(ev Placed) error {
	o := ev.Order()
	if err := o.Validate(); err != nil {
		return fmt.Errorf("placed order %d: %w", ev.OrderID, err)
	}
	if _, ok := l.orders[ev.OrderID]; ok {
		return fmt.Errorf("placed order %d: %w", ev.OrderID, ErrDuplicateOrder)
	}
	l.maxID = max(l.maxID, ev.OrderID)
	l.orders[ev.OrderID] = &o
	ids, ok := l.byInstrument[o.InstrumentID]
	if !ok {
		ids = make(map[int64]struct{})
		l.byInstrument[o.InstrumentID] = ids
	}
	ids[ev.OrderID] = struct{}{}
	l.log.Debug("order placed",
		zap.Int64("orderId", ev.OrderID),
		zap.Int("instrumentId", o.InstrumentID),
		zap.Stringer("side", o.Side),
		zap.Stringer("price", o.Price),
		zap.Int64("quantity", o.Quantity))
	return nil
}

// OnFilled 扣减剩余数量，全部成交后移除。
func (l *Ledger) OnFilled(ev Filled) error {
	o, ok := l.orders[ev.OrderID]
	if !ok {
		return fmt.Errorf("filled order %d: %w", ev.OrderID, ErrUnknownOrder)
	}
	if ev.InstrumentID != 0 && ev.InstrumentID != o.InstrumentID {
		return fmt.Errorf("filled order %d on instrument %d, ledger has %d: %w",
			ev.OrderID, ev.InstrumentID, o.InstrumentID, ErrUnknownOrder)
	}
	if err := o.Fill(ev.FilledQuantity); err != nil {
		return fmt.Errorf("filled order %d: %w", ev.OrderID, err)
	}
	l.log.Debug("order filled",
		zap.Int64("orderId", ev.OrderID),
		zap.Int64("filled", ev.FilledQuantity),
		zap.Int64("remaining", o.Quantity))
	if o.Done() {
		l.remove(ev.OrderID, o.InstrumentID)
	}
	return nil
}

func (l *Ledger) OnCancelled(id int64) error {
	return l.drop(id, "cancelled")
}

func (l *Ledger) OnForcedCancel(id int64) error {
	return l.drop(id, "forcefully cancelled")
}

func (l *Ledger) drop(id int64, reason string) error {
	o, ok := l.orders[id]
	if !ok {
		return fmt.Errorf("%s order %d: %w", reason, id, ErrUnknownOrder)
	}
	l.remove(id, o.InstrumentID)
	l.log.Debug("order removed", zap.Int64("orderId", id), zap.String("reason", reason))
	return nil
}

func (l *Ledger) remove(id int64, instrumentID int) {
	delete(l.orders, id)
	ids := l.byInstrument[instrumentID]
	delete(ids, id)
	if len(ids) == 0 {
		delete(l.byInstrument, instrumentID)
	}
}

// OrderIDs 返回某合约的挂单 id，升序。
func (l *Ledger) OrderIDs(instrumentID int) []int64 {
	ids := make([]int64, 0, len(l.byInstrument[instrumentID]))
	for id := range l.byInstrument[instrumentID] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (l *Ledger) AllOrderIDs() []int64 {
	ids := make([]int64, 0, len(l.orders))
	for id := range l.orders {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// PlacedQuantity 某合约所有挂单剩余数量之和。
func (l *Ledger) PlacedQuantity(instrumentID int) int64 {
	var total int64
	for id := range l.byInstrument[instrumentID] {
		total += l.orders[id].Quantity
	}
	return total
}

// Order 返回订单副本。
func (l *Ledger) Order(id int64) (Order, bool) {
	o, ok := l.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

func (l *Ledger) Len() int { return len(l.orders) }
