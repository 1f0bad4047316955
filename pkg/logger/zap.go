package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kasuganosora/sqlsession/pkg/errs"
)

// ZapLogger 基于 zap 的 Logger 实现
type ZapLogger struct {
	base  *zap.SugaredLogger
	level zap.AtomicLevel
}

// NewZapLogger creates a zap logger; "json" uses the production encoder,
// anything else the development console encoder.
func NewZapLogger(level LogLevel, format string) (*ZapLogger, error) {
	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	atomic := zap.NewAtomicLevelAt(toZapLevel(level))
	cfg.Level = atomic

	base, err := cfg.Build()
	if err != nil {
		return nil, errs.WrapError(err, errs.ErrCodeConfig, "init zap logger")
	}
	return &ZapLogger{base: base.Sugar(), level: atomic}, nil
}

// NewZapLoggerWithCore wraps an existing core, mostly for tests.
func NewZapLoggerWithCore(core zapcore.Core, level LogLevel) *ZapLogger {
	return &ZapLogger{
		base:  zap.New(core).Sugar(),
		level: zap.NewAtomicLevelAt(toZapLevel(level)),
	}
}

// Named 返回带名称的子日志
func (l *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{base: l.base.Named(name), level: l.level}
}

func (l *ZapLogger) Debug(format string, args ...interface{}) {
	if !l.level.Enabled(zap.DebugLevel) {
		return
	}
	l.base.Debugf(format, args...)
}

func (l *ZapLogger) Info(format string, args ...interface{}) {
	if !l.level.Enabled(zap.InfoLevel) {
		return
	}
	l.base.Infof(format, args...)
}

func (l *ZapLogger) Warn(format string, args ...interface{}) {
	if !l.level.Enabled(zap.WarnLevel) {
		return
	}
	l.base.Warnf(format, args...)
}

func (l *ZapLogger) Error(format string, args ...interface{}) {
	if !l.level.Enabled(zap.ErrorLevel) {
		return
	}
	l.base.Errorf(format, args...)
	_ = l.base.Sync()
}

// SetLevel 设置日志级别
func (l *ZapLogger) SetLevel(level LogLevel) {
	l.level.SetLevel(toZapLevel(level))
}

// GetLevel 获取日志级别
func (l *ZapLogger) GetLevel() LogLevel {
	switch l.level.Level() {
	case zapcore.DebugLevel:
		return LogDebug
	case zapcore.InfoLevel:
		return LogInfo
	case zapcore.WarnLevel:
		return LogWarn
	default:
		return LogError
	}
}

// Sync 刷新缓冲
func (l *ZapLogger) Sync() error {
	return l.base.Sync()
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogDebug:
		return zapcore.DebugLevel
	case LogInfo:
		return zapcore.InfoLevel
	case LogWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
