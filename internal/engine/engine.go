package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"options-mm/config"
	"options-mm/infrastructure/logger"
	"options-mm/infrastructure/monitor"
	"options-mm/instrument"
	"options-mm/market"
	"options-mm/order"
	"options-mm/pricing"
	"options-mm/risk"
	"options-mm/strategy"
)

var (
	ErrStopped    = errors.New("engine stopped")
	ErrFaulted    = errors.New("engine faulted")
	ErrNotRunning = errors.New("engine not running")
)

// EngineState 引擎状态
type EngineState int32

const (
	// StateIdle 等待初始账户快照
	StateIdle EngineState = iota
	// StateRunning 可以计算报价
	StateRunning
	// StateFaulted 镜像状态与交易所不一致，拒绝继续报价
	StateFaulted
	// StateStopped 已停止
	StateStopped
)

// String 返回状态名称
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateFaulted:
		return "FAULTED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

const defaultQueueSize = 4096

type QuotesListener interface {
	OnQuotes(q market.Quotes) error
}

type PositionListener interface {
	OnOpenPosition(p risk.OpenPosition) error
}

type OrderListener interface {
	OnPlaced(ev order.Placed) error
	OnFilled(ev order.Filled) error
	OnCancelled(id int64) error
	OnForcedCancel(id int64) error
}

// Components 引擎依赖组件
type Components struct {
	Instruments *instrument.Manager
	Clock       instrument.Clock
	Logger      *logger.Logger
	Monitor     *monitor.Monitor

	// 额外的观察者，排在内置组件之后依次调用
	QuotesListeners   []QuotesListener
	PositionListeners []PositionListener
	OrderListeners    []OrderListener

	// OnError 接收导致引擎进入 StateFaulted 的错误
	OnError func(error)
}

// Engine 做市决策核心。所有领域状态只在单个工作协程中访问，
// 外部调用全部排队执行，请求类调用返回 Pending。
type Engine struct {
	logger      *logger.Logger
	monitor     *monitor.Monitor
	instruments *instrument.Manager
	onError     func(error)

	data     *market.DataManager
	ledger   *order.Ledger
	risk     *risk.Aggregator
	futures  *strategy.Futures
	options  *strategy.Option
	fairVol  decimal.Decimal
	mmConfig config.MarketMakerConfig

	quotesListeners   []QuotesListener
	positionListeners []PositionListener
	orderListeners    []OrderListener

	state atomic.Int32

	mu       sync.Mutex // 只保护 closed 与发送之间的顺序
	closed   bool
	tasks    chan func()
	doneChan chan struct{}
}

// New 创建引擎并启动工作协程。
func New(cfg config.MarketMakerConfig, comps Components) (*Engine, error) {
	if err := config.ValidateMarketMaker(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validateComponents(comps); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if comps.Logger == nil {
		comps.Logger = logger.Nop()
	}
	if comps.Clock == nil {
		comps.Clock = instrument.SystemClock
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	e := &Engine{
		logger:      comps.Logger.Named("engine"),
		monitor:     comps.Monitor,
		instruments: comps.Instruments,
		onError:     comps.OnError,
		fairVol:     decimal.NewFromFloat(cfg.FairVolatility),
		mmConfig:    cfg,
		tasks:       make(chan func(), queueSize),
		doneChan:    make(chan struct{}),
	}

	zl := e.logger.Logger
	e.data = market.NewDataManager(zl.Named("market"))
	futuresPrice, err := market.NewFairPriceProvider(cfg.FairPriceSource, e.data)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	// 波动率在工作协程内读取，热更新同样在工作协程内写入
	volatility := market.FairPriceFunc(func(int) (decimal.Decimal, error) { return e.fairVol, nil })
	pricer := pricing.NewEngine(comps.Clock)

	e.ledger = order.NewLedger(zl.Named("ledger"))
	e.risk = risk.NewAggregator(comps.Instruments, volatility, futuresPrice, pricer, zl.Named("risk"))
	e.futures = strategy.NewFutures(futuresConfig(cfg), futuresPrice, e.risk, zl.Named("futures"))
	e.options = strategy.NewOption(optionConfig(cfg), volatility, futuresPrice, comps.Instruments, pricer, e.risk, zl.Named("options"))

	e.quotesListeners = append([]QuotesListener{e.data}, comps.QuotesListeners...)
	e.positionListeners = append([]PositionListener{e.risk}, comps.PositionListeners...)
	e.orderListeners = append([]OrderListener{e.ledger}, comps.OrderListeners...)

	e.setState(StateIdle)
	go e.run()
	return e, nil
}

func futuresConfig(mm config.MarketMakerConfig) strategy.FuturesConfig {
	return strategy.FuturesConfig{
		Levels:          mm.NumLevels,
		QuantityOnLevel: mm.QuantityOnLevel,
		DeltaLimit:      mm.DeltaLimit,
		SpreadFraction:  mm.FuturesSpreadFraction,
	}
}

func optionConfig(mm config.MarketMakerConfig) strategy.OptionConfig {
	return strategy.OptionConfig{
		Levels:            mm.NumLevels,
		QuantityOnLevel:   mm.QuantityOnLevel,
		DeltaLimit:        mm.DeltaLimit,
		VegaLimit:         mm.VegaLimit,
		VolSpreadFraction: mm.VolatilitySpreadFraction,
	}
}

// run 逐个执行任务直到队列关闭并排空。
func (e *Engine) run() {
	defer close(e.doneChan)
	for task := range e.tasks {
		task()
	}
}

// submit 把任务放入队列；停止后返回 ErrStopped。
func (e *Engine) submit(task func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrStopped
	}
	e.tasks <- task
	return nil
}

// Stop 拒绝新任务，执行完已排队的任务后返回。可重复调用。
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.tasks)
	}
	e.mu.Unlock()

	<-e.doneChan
	if e.State() != StateStopped {
		e.setState(StateStopped)
		e.logger.Info("engine stopped", zap.Int("open_orders", e.ledger.Len()))
	}
}

// State 可在任意协程读取。
func (e *Engine) State() EngineState {
	return EngineState(e.state.Load())
}

func (e *Engine) setState(s EngineState) {
	e.state.Store(int32(s))
	e.monitor.UpdateEngineState(int(s))
}

// fail 处理事件处理或请求中的错误。缺少行情只影响本次计算，其余错误使引擎进入故障状态。
func (e *Engine) fail(op string, err error) error {
	err = fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, market.ErrNoQuotes) || errors.Is(err, ErrNotRunning) || errors.Is(err, ErrFaulted) {
		e.logger.Warn("operation skipped", zap.String("op", op), zap.Error(err))
		return err
	}
	if e.State() != StateFaulted {
		e.setState(StateFaulted)
		e.logger.LogRisk("engine_faulted", zap.String("op", op), zap.Error(err))
	}
	e.logger.LogError(err, zap.String("op", op))
	if e.onError != nil {
		e.onError(err)
	}
	return err
}

// validateComponents 验证组件
func validateComponents(comp Components) error {
	if comp.Instruments == nil {
		return errors.New("instruments is required")
	}
	return nil
}
