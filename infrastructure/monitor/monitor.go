package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器。所有方法对 nil 接收者安全。
type Monitor struct {
	registry *prometheus.Registry

	// 组合风险
	greeks *prometheus.GaugeVec

	// 订单
	openOrders  prometheus.Gauge
	orderEvents *prometheus.CounterVec
	operations  *prometheus.CounterVec

	// 报价循环
	recalcs       prometheus.Counter
	recalcErrors  prometheus.Counter
	recalcLatency prometheus.Histogram
	engineState   prometheus.Gauge

	// 网关
	wsConnections prometheus.Counter
	wsMessages    *prometheus.CounterVec
	batchesSent   prometheus.Counter
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "mm",
		Subsystem: "options",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,

		greeks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "portfolio_greek",
			Help:      "组合希腊值合计",
		}, []string{"greek"}),

		openOrders: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "open_orders",
			Help:      "账本中的挂单数量",
		}),
		orderEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "order_events_total",
			Help:      "交易所订单回报数",
		}, []string{"event"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "operations_total",
			Help:      "生成的出站操作数",
		}, []string{"type"}),

		recalcs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "recalculations_total",
			Help:      "重新计算目标挂单的次数",
		}),
		recalcErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "recalculation_errors_total",
			Help:      "重新计算失败次数",
		}),
		recalcLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "recalculation_seconds",
			Help:      "重新计算耗时（秒）",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		engineState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "engine_state",
			Help:      "引擎状态（0 idle, 1 running, 2 faulted, 3 stopped）",
		}),

		wsConnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_connections_total",
			Help:      "WebSocket连接次数",
		}),
		wsMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_messages_total",
			Help:      "按类型统计的入站消息数",
		}, []string{"type"}),
		batchesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "batches_sent_total",
			Help:      "发送的操作批次数",
		}),
	}
}

func (m *Monitor) UpdateGreeks(delta, gammaP, vega, theta float64) {
	if m == nil {
		return
	}
	m.greeks.WithLabelValues("delta").Set(delta)
	m.greeks.WithLabelValues("gamma_p").Set(gammaP)
	m.greeks.WithLabelValues("vega").Set(vega)
	m.greeks.WithLabelValues("theta").Set(theta)
}

func (m *Monitor) UpdateOpenOrders(n int) {
	if m == nil {
		return
	}
	m.openOrders.Set(float64(n))
}

// RecordOrderEvent event 如 placed, filled, cancelled。
func (m *Monitor) RecordOrderEvent(event string) {
	if m == nil {
		return
	}
	m.orderEvents.WithLabelValues(event).Inc()
}

func (m *Monitor) RecordOperation(opType string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(opType).Inc()
}

func (m *Monitor) RecordRecalculation(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.recalcs.Inc()
	m.recalcLatency.Observe(d.Seconds())
	if err != nil {
		m.recalcErrors.Inc()
	}
}

func (m *Monitor) UpdateEngineState(state int) {
	if m == nil {
		return
	}
	m.engineState.Set(float64(state))
}

func (m *Monitor) RecordWSConnection() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Monitor) RecordWSMessage(msgType string) {
	if m == nil {
		return
	}
	m.wsMessages.WithLabelValues(msgType).Inc()
}

func (m *Monitor) RecordBatchSent() {
	if m == nil {
		return
	}
	m.batchesSent.Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
