package log

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLog builds the process logger. Encoding is "console" or "json"; anything
// else falls back to console.
func InitLog(lvl zap.AtomicLevel, encoding string) *zap.Logger {
	if strings.ToLower(encoding) != "json" {
		encoding = "console"
	}

	loggerCfg := &zap.Config{
		Level:    lvl,
		Encoding: encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "severity",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeTime:     zapcore.RFC3339TimeEncoder,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	plain, err := loggerCfg.Build(zap.AddStacktrace(zap.DPanicLevel))
	if err != nil {
		panic(err)
	}

	return plain
}

// ParseLevel returns the atomic level for the given name, defaulting to info.
func ParseLevel(level string) zap.AtomicLevel {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return lvl
}
