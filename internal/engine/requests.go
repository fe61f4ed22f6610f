package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"options-mm/config"
	"options-mm/instrument"
	"options-mm/order"
	"options-mm/risk"
	"options-mm/strategy"
)

// Recalculate 在工作协程上生成完整的目标挂单：先 CancelAll，
// 再依次为每个可交易期货、期权下单，每笔分配新的订单 id。
func (e *Engine) Recalculate() *Pending[[]order.Operation] {
	p := newPending[[]order.Operation]()
	err := e.submit(func() {
		start := time.Now()
		ops, err := e.recalculate()
		e.monitor.RecordRecalculation(time.Since(start), err)
		if err != nil {
			p.resolve(nil, e.fail("recalculate", err))
			return
		}
		for _, op := range ops {
			e.monitor.RecordOperation(string(op.Type))
		}
		p.resolve(ops, nil)
	})
	if err != nil {
		p.resolve(nil, err)
	}
	return p
}

func (e *Engine) recalculate() ([]order.Operation, error) {
	switch s := e.State(); s {
	case StateRunning:
	case StateFaulted:
		return nil, ErrFaulted
	default:
		return nil, fmt.Errorf("%w (state: %s)", ErrNotRunning, s)
	}
	if e.risk.Stale() {
		if err := e.risk.Recompute(); err != nil {
			return nil, err
		}
		e.publishRisk()
	}

	ops := []order.Operation{order.CancelAll()}
	var err error
	if ops, err = e.quoteAll(ops, e.futures, e.instruments.TradedFutures()); err != nil {
		return nil, err
	}
	if ops, err = e.quoteAll(ops, e.options, e.instruments.TradedOptions()); err != nil {
		return nil, err
	}
	e.logger.LogOperation("recalculated", len(ops),
		zap.Float64("delta", e.risk.TotalDelta()),
		zap.Float64("vega", e.risk.TotalVega()))
	return ops, nil
}

func (e *Engine) quoteAll(ops []order.Operation, s strategy.Strategy, instruments []instrument.Instrument) ([]order.Operation, error) {
	for _, inst := range instruments {
		orders, err := s.Quote(inst)
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			ops = append(ops, o.ToPlaceLimit(e.ledger.NextOrderID()))
		}
	}
	return ops, nil
}

// AllOrderCancels 为账本中每笔挂单生成撤单操作，用于退出前清理。
func (e *Engine) AllOrderCancels() *Pending[[]order.Operation] {
	p := newPending[[]order.Operation]()
	err := e.submit(func() {
		ids := e.ledger.AllOrderIDs()
		ops := make([]order.Operation, 0, len(ids))
		for _, id := range ids {
			ops = append(ops, order.Cancel(id))
		}
		p.resolve(ops, nil)
	})
	if err != nil {
		p.resolve(nil, err)
	}
	return p
}

// ApplyConfig 热更新报价参数。数据源与队列长度需要重启才能生效。
func (e *Engine) ApplyConfig(cfg config.MarketMakerConfig) *Pending[struct{}] {
	p := newPending[struct{}]()
	if err := config.ValidateMarketMaker(cfg); err != nil {
		p.resolve(struct{}{}, err)
		return p
	}
	err := e.submit(func() {
		if cfg.FairPriceSource != e.mmConfig.FairPriceSource {
			e.logger.Warn("fairPriceSource change requires restart",
				zap.String("current", e.mmConfig.FairPriceSource),
				zap.String("requested", cfg.FairPriceSource))
		}
		e.futures.SetConfig(futuresConfig(cfg))
		e.options.SetConfig(optionConfig(cfg))
		e.fairVol = decimal.NewFromFloat(cfg.FairVolatility)
		e.mmConfig = cfg
		if err := e.risk.Recompute(); err != nil {
			e.logger.Warn("risk recompute after config change", zap.Error(err))
		}
		e.publishRisk()
		e.logger.Info("market maker config applied",
			zap.Int("levels", cfg.NumLevels),
			zap.Float64("fair_volatility", cfg.FairVolatility),
			zap.Float64("delta_limit", cfg.DeltaLimit),
			zap.Float64("vega_limit", cfg.VegaLimit))
		p.resolve(struct{}{}, nil)
	})
	if err != nil {
		p.resolve(struct{}{}, err)
	}
	return p
}

// OrderView 状态接口中的挂单。
type OrderView struct {
	ID int64 `json:"id"`
	order.Order
}

// Snapshot 引擎状态的只读副本。
type Snapshot struct {
	State      string              `json:"state"`
	Greeks     risk.Greeks         `json:"greeks"`
	RiskStale  bool                `json:"riskStale"`
	Positions  []risk.OpenPosition `json:"positions"`
	OpenOrders []OrderView         `json:"openOrders"`
}

// Snapshot 在工作协程上读取当前状态。
func (e *Engine) Snapshot() *Pending[Snapshot] {
	p := newPending[Snapshot]()
	err := e.submit(func() {
		ids := e.ledger.AllOrderIDs()
		orders := make([]OrderView, 0, len(ids))
		for _, id := range ids {
			o, _ := e.ledger.Order(id)
			orders = append(orders, OrderView{ID: id, Order: o})
		}
		p.resolve(Snapshot{
			State:      e.State().String(),
			Greeks:     e.risk.Totals(),
			RiskStale:  e.risk.Stale(),
			Positions:  e.risk.Positions(),
			OpenOrders: orders,
		}, nil)
	})
	if err != nil {
		p.resolve(Snapshot{}, err)
	}
	return p
}
