// Package log provides centralized logging functionality using zap logger.
package log

import (
	"fmt"

	"go.uber.org/zap"
)

// base logs for components; helpers wraps it with one frame of caller skip
// for the package-level functions below.
var (
	base    *zap.Logger
	helpers *zap.SugaredLogger
)

// Init initializes the process logger
func Init(debug bool) error {
	var zapLogger *zap.Logger
	var err error

	if debug {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %v", err)
	}

	setBase(zapLogger)
	return nil
}

func setBase(l *zap.Logger) {
	base = l
	helpers = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func ensure() {
	if base == nil {
		// Fallback logger if not initialized
		l, _ := zap.NewProduction()
		setBase(l)
	}
}

// Component returns a logger named after a pipeline component.  Components
// receive it at construction instead of calling the package-level helpers.
func Component(name string) *zap.SugaredLogger {
	ensure()
	return base.Sugar().Named(name)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// Sync flushes any buffered log entries
func Sync() {
	if base != nil {
		base.Sync()
	}
}

func Warnf(template string, args ...interface{}) {
	ensure()
	helpers.Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	ensure()
	helpers.Errorf(template, args...)
}
