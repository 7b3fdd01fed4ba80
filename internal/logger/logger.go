package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// SetDebug lowers the shared level of every logger handed out by New.
func SetDebug(debug bool) {
	if debug {
		level.SetLevel(zap.DebugLevel)
		return
	}
	level.SetLevel(zap.InfoLevel)
}

// New returns a logger tagged with the calling package. GPUBW_DEBUG selects the
// human-readable development encoder.
func New(pkg string) *zap.Logger {
	var cfg zap.Config
	if _, debug := os.LookupEnv("GPUBW_DEBUG"); debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		level.SetLevel(zap.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = level

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l.With(zap.String("package", pkg))
}
