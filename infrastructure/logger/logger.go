package logger

import (
	"fmt"
	"os"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 封装 zap 日志器，附带做市相关的事件日志。
type Logger struct {
	*zap.Logger
	config Config
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format"`      // json 或 console
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

// New 创建新的Logger实例
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if slices.Contains(cfg.Outputs, "stdout") {
		var encoder zapcore.Encoder
		if cfg.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if slices.Contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		w, err := openAppend(cfg.OutputFile)
		if err != nil {
			return nil, fmt.Errorf("open log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), w, level))
	}

	// 错误日志单独文件，只记录 error 及以上
	if cfg.ErrorFile != "" {
		w, err := openAppend(cfg.ErrorFile)
		if err != nil {
			return nil, fmt.Errorf("open error log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), w, zapcore.ErrorLevel))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: z, config: cfg}, nil
}

// Wrap 包装已有的 zap.Logger，测试中常用 zaptest/observer。
func Wrap(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{Logger: z, config: DefaultConfig()}
}

func Nop() *Logger { return Wrap(nil) }

func openAppend(path string) (zapcore.WriteSyncer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(f), nil
}

// With 添加字段返回新的logger
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), config: l.config}
}

// Named 返回子模块日志器。
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name), config: l.config}
}

// LogOrder 记录交易所订单回报
func (l *Logger) LogOrder(event string, orderID int64, fields ...zap.Field) {
	l.Info("order_event", append([]zap.Field{zap.String("event", event), zap.Int64("order_id", orderID)}, fields...)...)
}

// LogOperation 记录发往交易所的一批操作
func (l *Logger) LogOperation(event string, count int, fields ...zap.Field) {
	l.Info("operation_event", append([]zap.Field{zap.String("event", event), zap.Int("count", count)}, fields...)...)
}

// LogRisk 记录风控事件
func (l *Logger) LogRisk(event string, fields ...zap.Field) {
	l.Warn("risk_event", append([]zap.Field{zap.String("event", event)}, fields...)...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, fields ...zap.Field) {
	l.Error("error_event", append([]zap.Field{zap.Error(err)}, fields...)...)
}

// Close 关闭日志器
func (l *Logger) Close() error {
	return l.Sync()
}
