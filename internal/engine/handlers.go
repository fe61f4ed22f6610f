package engine

import (
	"go.uber.org/zap"

	"options-mm/market"
	"options-mm/order"
	"options-mm/risk"
)

// 入站事件。入队成功即返回；处理错误通过 Components.OnError 报告。

func (e *Engine) OnQuotes(q market.Quotes) error {
	return e.submit(func() {
		for _, l := range e.quotesListeners {
			if err := l.OnQuotes(q); err != nil {
				e.fail("quotes", err)
				return
			}
		}
	})
}

func (e *Engine) OnOpenPosition(p risk.OpenPosition) error {
	return e.submit(func() { e.applyPosition(p) })
}

func (e *Engine) applyPosition(p risk.OpenPosition) bool {
	for _, l := range e.positionListeners {
		if err := l.OnOpenPosition(p); err != nil {
			e.fail("open position", err)
			return false
		}
	}
	e.publishRisk()
	return true
}

// OnAccountState 初始持仓快照，处理后引擎进入运行状态。
func (e *Engine) OnAccountState(s risk.AccountState) error {
	return e.submit(func() {
		for _, p := range s.Positions {
			e.applyPosition(p)
		}
		if e.State() == StateIdle {
			e.setState(StateRunning)
			e.logger.Info("initial account state received",
				zap.Stringer("balance", s.Balance),
				zap.Int("positions", len(s.Positions)))
		}
	})
}

func (e *Engine) publishRisk() {
	g := e.risk.Totals()
	e.monitor.UpdateGreeks(g.Delta, g.GammaP, g.Vega, g.Theta)
}

func (e *Engine) OnOrderPlaced(ev order.Placed) error {
	return e.submit(func() {
		e.orderEvent("placed", ev.OrderID, func(l OrderListener) error { return l.OnPlaced(ev) })
	})
}

func (e *Engine) OnOrderFilled(ev order.Filled) error {
	return e.submit(func() {
		e.logger.LogOrder("filled", ev.OrderID,
			zap.Int("instrument_id", ev.InstrumentID),
			zap.Int64("filled", ev.FilledQuantity),
			zap.Stringer("price", ev.Price))
		e.orderEvent("filled", ev.OrderID, func(l OrderListener) error { return l.OnFilled(ev) })
	})
}

func (e *Engine) OnOrderCancelled(ev order.Cancelled) error {
	return e.submit(func() {
		e.orderEvent("cancelled", ev.OrderID, func(l OrderListener) error { return l.OnCancelled(ev.OrderID) })
	})
}

func (e *Engine) OnOrderForcefullyCancelled(ev order.ForcefullyCancelled) error {
	return e.submit(func() {
		e.logger.LogOrder("forcefully_cancelled", ev.OrderID, zap.String("cause", ev.Cause))
		e.orderEvent("forcefully_cancelled", ev.OrderID, func(l OrderListener) error { return l.OnForcedCancel(ev.OrderID) })
	})
}

func (e *Engine) orderEvent(name string, id int64, apply func(OrderListener) error) {
	e.monitor.RecordOrderEvent(name)
	for _, l := range e.orderListeners {
		if err := apply(l); err != nil {
			e.fail("order "+name, err)
			return
		}
	}
	e.monitor.UpdateOpenOrders(e.ledger.Len())
}

// 交易所拒单只记录，账本中本来就没有这些订单。

func (e *Engine) OnOrderPlaceFailed(ev order.PlaceFailed) error {
	e.monitor.RecordOrderEvent("place_failed")
	e.logger.Warn("order place failed", zap.Int64("order_id", ev.OrderID), zap.String("cause", ev.Cause))
	return nil
}

func (e *Engine) OnOrderCancelFailed(ev order.CancelFailed) error {
	e.monitor.RecordOrderEvent("cancel_failed")
	e.logger.Warn("order cancel failed", zap.Int64("order_id", ev.OrderID), zap.String("cause", ev.Cause))
	return nil
}

func (e *Engine) OnCancelAllOrdersFailed(ev order.CancelAllFailed) error {
	e.monitor.RecordOrderEvent("cancel_all_failed")
	e.logger.Warn("cancel all orders failed", zap.String("cause", ev.Cause))
	return nil
}

// 以下事件不改变状态。逐笔撤单回报会随后到达，由账本处理。

func (e *Engine) OnOrderModified(order.Modified) error                     { return nil }
func (e *Engine) OnOrderModificationFailed(order.ModificationFailed) error { return nil }
func (e *Engine) OnAllOrdersCancelled(order.AllCancelled) error            { return nil }
