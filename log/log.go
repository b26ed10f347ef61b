// Package log provides the leveled Logger contract every reqengine
// component depends on. The core never binds to a concrete logging
// framework: components hold a log.Logger field and the embedding
// application supplies whichever implementation it likes.
package log

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
)

// Logger is the leveled logging contract shared by the cache, queue,
// executor and interceptor chain. ctx carries request-scoped fields an
// implementation may choose to extract (request id, user); the core
// itself never inspects it.
type Logger interface {
	Debugf(ctx context.Context, format string, args ...interface{})
	Infof(ctx context.Context, format string, args ...interface{})
	Warnf(ctx context.Context, format string, args ...interface{})
	Errorf(ctx context.Context, format string, args ...interface{})
}

var stdLogFlags = log.LstdFlags | log.Lshortfile | log.LUTC

const outputCallDepth = 3

// StdLogger is the default Logger, backed by the standard library "log"
// package with one leveled *log.Logger per level, matching the shape of
// the teacher's package-level DebugLogger/InfoLogger/ErrorLogger trio.
type StdLogger struct {
	debug bool

	debugLogger *log.Logger
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
}

// NewStdLogger returns a Logger writing to out. debug gates Debugf output,
// mirroring the teacher's `-debug` command line flag.
func NewStdLogger(out io.Writer, debug bool) *StdLogger {
	if out == nil {
		out = os.Stderr
	}
	return &StdLogger{
		debug:       debug,
		debugLogger: log.New(out, "DEBUG: ", stdLogFlags),
		infoLogger:  log.New(out, "INFO: ", stdLogFlags),
		warnLogger:  log.New(out, "WARN: ", stdLogFlags),
		errorLogger: log.New(out, "ERROR: ", stdLogFlags),
	}
}

func (l *StdLogger) SetDebug(debug bool) { l.debug = debug }

func (l *StdLogger) Debugf(_ context.Context, format string, args ...interface{}) {
	if !l.debug {
		return
	}
	_ = l.debugLogger.Output(outputCallDepth, fmt.Sprintf(format, args...))
}

func (l *StdLogger) Infof(_ context.Context, format string, args ...interface{}) {
	_ = l.infoLogger.Output(outputCallDepth, fmt.Sprintf(format, args...))
}

func (l *StdLogger) Warnf(_ context.Context, format string, args ...interface{}) {
	_ = l.warnLogger.Output(outputCallDepth, fmt.Sprintf(format, args...))
}

func (l *StdLogger) Errorf(_ context.Context, format string, args ...interface{}) {
	_ = l.errorLogger.Output(outputCallDepth, fmt.Sprintf(format, args...))
}

// nopLogger discards everything. Useful as a default so components never
// need a nil check before logging.
type nopLogger struct{}

func (nopLogger) Debugf(context.Context, string, ...interface{}) {}
func (nopLogger) Infof(context.Context, string, ...interface{})  {}
func (nopLogger) Warnf(context.Context, string, ...interface{})  {}
func (nopLogger) Errorf(context.Context, string, ...interface{}) {}

// Nop is the shared no-op Logger instance.
var Nop Logger = nopLogger{}
