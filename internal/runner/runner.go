package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"options-mm/config"
	"options-mm/gateway"
	"options-mm/infrastructure/logger"
	"options-mm/infrastructure/monitor"
	"options-mm/instrument"
	"options-mm/internal/engine"
	"options-mm/market"
	"options-mm/order"
)

var (
	ErrNotStarted   = errors.New("runner not started")
	ErrStreamClosed = errors.New("exchange stream closed")
)

// shutdownSendTimeout 退出时撤单批次的发送上限。
const shutdownSendTimeout = 5 * time.Second

// Gateway 交易所连接，gateway.Client 实现该接口。
type Gateway interface {
	Connect(ctx context.Context) error
	Instruments(ctx context.Context) ([]instrument.Instrument, error)
	Subscribe(l gateway.Listener) error
	AwaitAccountState(ctx context.Context) error
	Send(ctx context.Context, ops []order.Operation) error
	Errors() <-chan error
	Done() <-chan struct{}
	Close() error
}

// Runner 驱动做市循环：等待合约与初始账户，然后周期性重算挂单并分批发送。
// 退出（正常或致命错误）时先撤单，等待宽限期，再停止引擎并关闭连接。
type Runner struct {
	sessionID string
	gw        Gateway
	clock     instrument.Clock
	logger    *logger.Logger
	monitor   *monitor.Monitor

	mu     sync.RWMutex
	cfg    config.MarketMakerConfig
	engine *engine.Engine

	fatal   chan error
	updates chan config.MarketMakerConfig
}

type Option func(*Runner)

func WithClock(c instrument.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func WithMonitor(m *monitor.Monitor) Option {
	return func(r *Runner) { r.monitor = m }
}

// WithSessionID 覆盖默认生成的 uuid。
func WithSessionID(id string) Option {
	return func(r *Runner) { r.sessionID = id }
}

func New(cfg config.MarketMakerConfig, gw Gateway, opts ...Option) *Runner {
	r := &Runner{
		sessionID: uuid.NewString(),
		gw:        gw,
		clock:     instrument.SystemClock,
		logger:    logger.Nop(),
		cfg:       cfg,
		fatal:     make(chan error, 1),
		updates:   make(chan config.MarketMakerConfig, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("runner").With(zap.String("session", r.sessionID))
	return r
}

func (r *Runner) SessionID() string { return r.sessionID }

func (r *Runner) config() config.MarketMakerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

func (r *Runner) currentEngine() *engine.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engine
}

// Snapshot 读取引擎状态；引擎尚未创建时返回 ErrNotStarted。
func (r *Runner) Snapshot(ctx context.Context) (engine.Snapshot, error) {
	eng := r.currentEngine()
	if eng == nil {
		return engine.Snapshot{}, ErrNotStarted
	}
	return eng.Snapshot().Await(ctx)
}

// State 引擎状态，引擎尚未创建时为 IDLE。
func (r *Runner) State() engine.EngineState {
	if eng := r.currentEngine(); eng != nil {
		return eng.State()
	}
	return engine.StateIdle
}

// ApplyConfig 排队一份新的做市参数，由运行循环应用。只保留最新的一份。
func (r *Runner) ApplyConfig(cfg config.MarketMakerConfig) {
	for {
		select {
		case r.updates <- cfg:
			return
		default:
		}
		select {
		case <-r.updates:
		default:
		}
	}
}

// onEngineError 引擎致命错误回调，只记录第一个。
func (r *Runner) onEngineError(err error) {
	select {
	case r.fatal <- err:
	default:
	}
}

// Run 阻塞直到 ctx 结束或出现致命错误。ctx 结束时返回 nil。
func (r *Runner) Run(ctx context.Context) error {
	if err := r.gw.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer r.gw.Close()

	insts, err := r.gw.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("await instruments: %w", err)
	}
	mgr, err := instrument.NewManager(r.clock, insts, r.logger.Logger.Named("instruments"))
	if err != nil {
		return fmt.Errorf("instruments: %w", err)
	}

	eng, err := engine.New(r.config(), engine.Components{
		Instruments: mgr,
		Clock:       r.clock,
		Logger:      r.logger,
		Monitor:     r.monitor,
		OnError:     r.onEngineError,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	r.mu.Lock()
	r.engine = eng
	r.mu.Unlock()

	err = r.start(ctx, eng, mgr)
	if err == nil {
		err = r.loop(ctx, eng)
	}
	r.shutdown(eng, err)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func (r *Runner) start(ctx context.Context, eng *engine.Engine, mgr *instrument.Manager) error {
	if err := r.gw.Subscribe(eng); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := r.gw.AwaitAccountState(ctx); err != nil {
		return fmt.Errorf("await account state: %w", err)
	}
	r.logger.Info("market maker started",
		zap.Int("futures", len(mgr.TradedFutures())),
		zap.Int("options", len(mgr.TradedOptions())))
	return nil
}

func (r *Runner) loop(ctx context.Context, eng *engine.Engine) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-r.fatal:
			return fmt.Errorf("engine: %w", err)
		case err := <-r.gw.Errors():
			return fmt.Errorf("gateway: %w", err)
		case <-r.gw.Done():
			return ErrStreamClosed
		case cfg := <-r.updates:
			r.reconfigure(ctx, eng, cfg)
		case <-timer.C:
			if err := r.cycle(ctx, eng); err != nil {
				return err
			}
			timer.Reset(r.config().TimeBetweenCycles())
		}
	}
}

// cycle 重算一次并按 maxBatchSize 分批发送。缺少行情时跳过本轮。
func (r *Runner) cycle(ctx context.Context, eng *engine.Engine) error {
	ops, err := eng.Recalculate().Await(ctx)
	switch {
	case err == nil:
	case errors.Is(err, market.ErrNoQuotes), errors.Is(err, engine.ErrNotRunning):
		r.logger.Debug("cycle skipped", zap.Error(err))
		return nil
	default:
		return fmt.Errorf("recalculate: %w", err)
	}
	return r.send(ctx, ops, r.config().MaxBatchSize)
}

func (r *Runner) send(ctx context.Context, ops []order.Operation, batchSize int) error {
	if len(ops) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(ops)
	}
	for batch := range slices.Chunk(ops, batchSize) {
		if err := r.gw.Send(ctx, batch); err != nil {
			return fmt.Errorf("send batch: %w", err)
		}
	}
	r.logger.LogOperation("operations_sent", len(ops))
	return nil
}

func (r *Runner) reconfigure(ctx context.Context, eng *engine.Engine, cfg config.MarketMakerConfig) {
	if _, err := eng.ApplyConfig(cfg).Await(ctx); err != nil {
		r.logger.Warn("config update rejected", zap.Error(err))
		return
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

// shutdown 撤掉所有挂单并等待宽限期。正常退出先按账本逐笔撤单，
// 最后总是追加 CancelAll，覆盖已发出但尚未确认的下单。
// 出错退出时账本可能已与交易所不一致，只发 CancelAll。
func (r *Runner) shutdown(eng *engine.Engine, cause error) {
	defer eng.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownSendTimeout)
	defer cancel()

	clean := cause == nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded)
	var ops []order.Operation
	if clean {
		cancels, err := eng.AllOrderCancels().Await(ctx)
		if err != nil {
			r.logger.LogError(err, zap.String("action", "collect_cancels"))
		}
		ops = cancels
	} else {
		r.logger.LogRisk("halting", zap.Error(cause))
	}
	ops = append(ops, order.CancelAll())

	if err := r.send(ctx, ops, r.config().MaxBatchSize); err != nil {
		r.logger.LogError(err, zap.String("action", "shutdown_cancel"))
	} else {
		r.logger.Info("shutdown cancels sent", zap.Int("operations", len(ops)))
	}

	if grace := r.config().ShutdownGrace(); grace > 0 {
		time.Sleep(grace)
	}
}
