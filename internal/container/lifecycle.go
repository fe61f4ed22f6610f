package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"options-mm/config"
	"options-mm/infrastructure/logger"
	"options-mm/internal/runner"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

// LifecycleManager 生命周期管理器
type LifecycleManager struct {
	components []Lifecycle
	mu         sync.RWMutex
}

// NewLifecycleManager 创建新的生命周期管理器
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{
		components: make([]Lifecycle, 0),
	}
}

// Register 注册组件
func (m *LifecycleManager) Register(component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component)
}

// StartAll 按顺序启动所有组件
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, component := range m.components {
		if err := component.Start(ctx); err != nil {
			// 启动失败，回滚已启动的组件
			for j := i - 1; j >= 0; j-- {
				_ = m.components[j].Stop()
			}
			return fmt.Errorf("start %s failed: %w", component.Name(), err)
		}
	}
	return nil
}

// StopAll 逆序停止所有组件
func (m *LifecycleManager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for i := len(m.components) - 1; i >= 0; i-- {
		if err := m.components[i].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", m.components[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}

// CheckHealth 检查所有组件健康状态
func (m *LifecycleManager) CheckHealth() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, component := range m.components {
		if err := component.Health(); err != nil {
			return fmt.Errorf("%s unhealthy: %w", component.Name(), err)
		}
	}
	return nil
}

// httpServerComponent HTTP服务器组件
type httpServerComponent struct {
	name    string
	handler http.Handler
	addr    string
	logger  *logger.Logger
	server  *http.Server
	started bool
	mu      sync.Mutex
}

func (h *httpServerComponent) Name() string { return h.name }

func (h *httpServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}

	h.server = &http.Server{
		Addr:              h.addr,
		Handler:           h.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := h.server

	// 在后台启动服务器
	go func() {
		h.logger.Info("http server listening", zap.String("component", h.name), zap.String("addr", h.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.LogError(err, zap.String("component", h.name), zap.String("action", "listen"))
		}
	}()

	h.started = true
	return nil
}

func (h *httpServerComponent) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started || h.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", h.name, err)
	}

	h.logger.Info("http server stopped", zap.String("component", h.name))
	h.started = false
	return nil
}

func (h *httpServerComponent) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return fmt.Errorf("%s not started", h.name)
	}
	return nil
}

// runnerComponent 在后台运行做市循环。循环自行退出（致命错误）时关闭 done。
type runnerComponent struct {
	runner *runner.Runner
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func newRunnerComponent(r *runner.Runner) *runnerComponent {
	return &runnerComponent{runner: r, done: make(chan struct{})}
}

func (c *runnerComponent) Name() string { return "runner" }

func (c *runnerComponent) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	go func() {
		defer close(c.done)
		err := c.runner.Run(ctx)
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
	}()
	return nil
}

// Stop 取消循环并等待撤单与宽限期结束。
func (c *runnerComponent) Stop() error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	<-c.done
	return c.exitErr()
}

func (c *runnerComponent) Health() error {
	select {
	case <-c.done:
		if err := c.exitErr(); err != nil {
			return err
		}
		return errors.New("runner exited")
	default:
		return nil
	}
}

func (c *runnerComponent) exitErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// watcherComponent 配置热更新，新参数交给 runner。
type watcherComponent struct {
	watcher config.Watcher
	runner  *runner.Runner
	logger  *logger.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

func (w *watcherComponent) Name() string { return "config_watcher" }

func (w *watcherComponent) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		err := w.watcher.Run(ctx, func(cfg config.AppConfig) {
			w.runner.ApplyConfig(cfg.MarketMaker)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.LogError(err, zap.String("component", "config_watcher"))
		}
	}()
	return nil
}

func (w *watcherComponent) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	<-w.done
	return nil
}

func (w *watcherComponent) Health() error { return nil }
