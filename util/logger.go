package util

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger      = newLogger()
)

func newLogger() *zap.SugaredLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), atomicLevel)
	return zap.New(core).Sugar()
}

func SetLevel(level LogLevel) {
	atomicLevel.SetLevel(level.zapLevel())
}

// Logger returns the process logger tagged with a component name, for call sites
// that prefer key/value fields over format strings.
func Logger(component string) *zap.SugaredLogger {
	return logger.Named(component)
}

func Debug(format string, v ...interface{}) {
	logger.Debugf(format, v...)
}

func Info(format string, v ...interface{}) {
	logger.Infof(format, v...)
}

func Warn(format string, v ...interface{}) {
	logger.Warnf(format, v...)
}

func Error(format string, v ...interface{}) {
	logger.Errorf(format, v...)
}

// Fatal logs and exits the process with status 1.
func Fatal(format string, v ...interface{}) {
	logger.Fatalf(format, v...)
}

// Sync flushes buffered log entries; call before exit.
func Sync() {
	_ = logger.Sync()
}
