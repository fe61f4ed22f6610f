package container

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"options-mm/config"
	"options-mm/gateway"
	"options-mm/infrastructure/logger"
	"options-mm/infrastructure/monitor"
	"options-mm/internal/api"
	"options-mm/internal/runner"
)

// reloadCooldown 两次配置热更新的最小间隔。
const reloadCooldown = 2 * time.Second

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg     config.AppConfig
	cfgPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor

	// 交易所网关
	client *gateway.Client

	// 核心服务
	runner    *runner.Runner
	runnerC   *runnerComponent
	apiServer *api.Server

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 加载配置（含 .env 与环境变量覆盖）并创建容器
func New(configPath string) (*Container, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env failed: %w", err)
	}
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(cfg, configPath), nil
}

// NewWithConfig configPath 为空时不启用热更新。
func NewWithConfig(cfg config.AppConfig, configPath string) *Container {
	return &Container{
		cfg:       cfg,
		cfgPath:   configPath,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	c.buildGateway()
	c.buildCoreServices()
	c.registerLifecycleComponents()
	c.logger.Info("container built", zap.String("env", c.cfg.Env), zap.String("session", c.runner.SessionID()))
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.monitor = monitor.New(monitor.DefaultConfig())
	return nil
}

func (c *Container) buildGateway() {
	c.client = gateway.NewClient(gateway.Config{
		URL:       c.cfg.Gateway.URL,
		APIKey:    c.cfg.Gateway.APIKey,
		APISecret: c.cfg.Gateway.APISecret,
		RateLimit: c.cfg.Gateway.RateLimit,
		Burst:     c.cfg.Gateway.Burst,
	}, c.logger.Logger, c.monitor)
}

func (c *Container) buildCoreServices() {
	c.runner = runner.New(c.cfg.MarketMaker, c.client,
		runner.WithLogger(c.logger),
		runner.WithMonitor(c.monitor))
	c.runnerC = newRunnerComponent(c.runner)
	if c.cfg.HTTP.Addr != "" {
		c.apiServer = api.NewServer(c.runner, c.monitor.Handler(), c.cfg.HTTP.CORSOrigins, c.logger.Logger)
	}
}

// registerLifecycleComponents 启动顺序：状态接口、热更新、做市循环；停止时逆序，先撤单。
func (c *Container) registerLifecycleComponents() {
	if c.apiServer != nil {
		c.lifecycle.Register(&httpServerComponent{
			name:    "api_server",
			handler: c.apiServer.Handler(),
			addr:    c.cfg.HTTP.Addr,
			logger:  c.logger,
		})
	}
	if c.cfgPath != "" {
		c.lifecycle.Register(&watcherComponent{
			watcher: config.Watcher{Path: c.cfgPath, Cooldown: reloadCooldown, Log: c.logger.Logger},
			runner:  c.runner,
			logger:  c.logger,
		})
	}
	c.lifecycle.Register(c.runnerC)
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// Done 做市循环退出时关闭。
func (c *Container) Done() <-chan struct{} { return c.runnerC.done }

// Stop 停止所有组件，返回做市循环的退出错误。
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, zap.String("action", "stop"))
	} else {
		c.logger.Info("container stopped")
	}
	_ = c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

func (c *Container) Runner() *runner.Runner { return c.runner }
