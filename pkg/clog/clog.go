package clog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/apex/log"
)

// ContextLogger routes log entries by a context name. Each tier and each
// sweep run logs under its own context. A context without a dedicated
// logger goes to the global logger, tagged with a ctx field.
type ContextLogger struct {
	GlobalLogger   *log.Logger
	ContextLoggers sync.Map
}

const GlobalLoggerCtx = "global"

// Well known contexts.
const (
	MainCtx    = "main"
	ArchiveCtx = "archive"
	ScanCtx    = "scan"
	SweepCtx   = "sweep"
)

func NewContextLogger(globalLoggerWriter io.WriteCloser) *ContextLogger {
	return &ContextLogger{
		GlobalLogger: &log.Logger{
			Handler: NewHandler(globalLoggerWriter),
			Level:   log.InfoLevel,
		},
	}
}

// AddLoggingContext gives ctx its own logger writing to w. The level starts
// out as the level of the global logger.
func (l *ContextLogger) AddLoggingContext(ctx string, w io.WriteCloser) {
	logger := &log.Logger{
		Handler: NewHandler(w),
		Level:   l.GlobalLogger.Level,
	}

	if old, loaded := l.ContextLoggers.Swap(ctx, logger); loaded {
		closeHandler(old)
	}
}

// AddFileLoggingContext is AddLoggingContext writing to dir/ctx.log.
func (l *ContextLogger) AddFileLoggingContext(ctx, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, ctx+".log")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return "", err
	}

	l.AddLoggingContext(ctx, f)

	return path, nil
}

func (l *ContextLogger) RemoveLoggingContext(ctx string) {
	logger, ok := l.ContextLoggers.LoadAndDelete(ctx)
	if !ok {
		return
	}

	closeHandler(logger)
}

func (l *ContextLogger) SetLevel(ctx string, level log.Level) {
	if ctx == GlobalLoggerCtx {
		l.GlobalLogger.Level = level
		return
	}

	if clogger := l.getContextLogger(ctx); clogger != nil {
		clogger.Level = level
	}
}

func (l *ContextLogger) SetLevelFromString(ctx, s string) error {
	level, err := log.ParseLevel(s)
	if err != nil {
		return err
	}

	l.SetLevel(ctx, level)

	return nil
}

func (l *ContextLogger) SetOutput(ctx string, w io.WriteCloser) error {
	if ctx == GlobalLoggerCtx {
		h, ok := l.GlobalLogger.Handler.(*Handler)
		if !ok {
			return fmt.Errorf("global logger has a foreign handler")
		}
		h.SetOutput(w)
		return nil
	}

	handler := toHandler(l.getContextLogger(ctx))
	if handler == nil {
		return fmt.Errorf("no such context %s", ctx)
	}

	handler.SetOutput(w)
	return nil
}

func (l *ContextLogger) UsingCtx(ctx string) *log.Entry {
	if logger := l.getContextLogger(ctx); logger != nil {
		return logger.WithField("ctx", ctx)
	}

	return l.GlobalLogger.WithField("ctx", ctx)
}

func (l *ContextLogger) Global() *log.Entry {
	return l.UsingCtx(GlobalLoggerCtx)
}

func (l *ContextLogger) getContextLogger(ctx string) *log.Logger {
	logger, ok := l.ContextLoggers.Load(ctx)
	if !ok {
		return nil
	}

	clogger, _ := logger.(*log.Logger)
	return clogger
}

func toHandler(logger *log.Logger) *Handler {
	if logger == nil {
		return nil
	}

	h, _ := logger.Handler.(*Handler)
	return h
}

func closeHandler(logger interface{}) {
	clogger, _ := logger.(*log.Logger)
	if h := toHandler(clogger); h != nil {
		h.Close()
	}
}
