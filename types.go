package auth

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used across the package.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider = glog.LoggerProvider

// ResolveLogger returns the provider and the named logger a component should
// use. A provider that yields no logger for name falls back to logger, and a
// nil logger falls back to the package default.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			return provider, named
		}
	}

	if logger == nil {
		logger = defaultLogger()
	}

	return staticProvider{logger: logger}, logger
}

type staticProvider struct {
	logger Logger
}

func (p staticProvider) GetLogger(string) Logger {
	return p.logger
}

func defaultLogger() Logger {
	return defLogger{out: os.Stderr}
}

type defLogger struct {
	out io.Writer
}

func (l defLogger) Trace(msg string, args ...any) { l.print("TRC", msg, args...) }
func (l defLogger) Debug(msg string, args ...any) { l.print("DBG", msg, args...) }
func (l defLogger) Info(msg string, args ...any)  { l.print("INF", msg, args...) }
func (l defLogger) Warn(msg string, args ...any)  { l.print("WRN", msg, args...) }
func (l defLogger) Error(msg string, args ...any) { l.print("ERR", msg, args...) }
func (l defLogger) Fatal(msg string, args ...any) { l.print("FTL", msg, args...) }

func (l defLogger) WithContext(context.Context) Logger {
	return l
}

func (l defLogger) print(level, msg string, args ...any) {
	if l.out == nil {
		return
	}
	fmt.Fprintf(l.out, "[%s] AUTH %s%s\n", level, msg, formatKeyValues(args))
}

func formatKeyValues(args []any) string {
	if len(args) == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fmt.Fprintf(&b, " %v", args[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}
