/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package modlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/attestra/authbench/pkg/internal/common/logging/metadata"
	spilog "github.com/attestra/authbench/spi/log"
)

const (
	logLevelFormatter   = "UTC %s-> %s "
	logPrefixFormatter  = " [%s] "
	callerInfoFormatter = "- %s "
)

// NewDefLog returns a new defLog instance backed by the standard library loggerstdout.
func NewDefLog(module string) *DefLog {
	logger := log.New(os.Stdout, fmt.Sprintf(logPrefixFormatter, module),
		log.Ldate|log.Ltime|log.LUTC)

	return &DefLog{logger: logger, module: module}
}

// DefLog is a standard-library-backed logger implementation.
type DefLog struct {
	logger *log.Logger
	module string
}

// Fatalf is CRITICAL log formatted followed by a call to os.Exit(1).
func (l *DefLog) Fatalf(format string, args ...interface{}) {
	l.logf(spilog.CRITICAL, format, args...)
	os.Exit(1)
}

// Panicf is CRITICAL log formatted followed by a call to panic().
func (l *DefLog) Panicf(format string, args ...interface{}) {
	l.logf(spilog.CRITICAL, format, args...)
	panic(fmt.Sprintf(format, args...))
}

// Debugf is for logging verbose messages. Arguments are handled in the manner of fmt.Printf.
func (l *DefLog) Debugf(format string, args ...interface{}) {
	l.logf(spilog.DEBUG, format, args...)
}

// Infof is for logging general information messages. INFO is the default logging level.
// Arguments are handled in the manner of fmt.Printf.
func (l *DefLog) Infof(format string, args ...interface{}) {
	l.logf(spilog.INFO, format, args...)
}

// Warnf is for logging messages about possible issues.
// Arguments are handled in the manner of fmt.Printf.
func (l *DefLog) Warnf(format string, args ...interface{}) {
	l.logf(spilog.WARNING, format, args...)
}

// Errorf is for logging errors. Arguments are handled in the manner of fmt.Printf.
func (l *DefLog) Errorf(format string, args ...interface{}) {
	l.logf(spilog.ERROR, format, args...)
}

// ChangeOutput changes the output destination for the logger.
func (l *DefLog) ChangeOutput(output io.Writer) {
	l.logger.SetOutput(output)
}

func (l *DefLog) logf(level spilog.Level, format string, args ...interface{}) {
	// prefix shows the caller function name, the log level, and that the timezone is UTC
	customPrefix := fmt.Sprintf(logLevelFormatter, l.getCallerInfo(level), metadata.ParseString(level))

	err := l.logger.Output(2, customPrefix+fmt.Sprintf(format, args...)) //nolint:gomnd
	if err != nil {
		fmt.Printf("error from logger.Output %v\n", err)
	}
}

func (l *DefLog) getCallerInfo(level spilog.Level) string {
	if !metadata.IsCallerInfoEnabled(l.module, level) {
		return ""
	}

	const (
		maxCallers     = 6
		skipCallers    = 5
		notFound       = "n/a"
		defLogPrefixes = "modlog."
	)

	fpcs := make([]uintptr, maxCallers)

	n := runtime.Callers(skipCallers, fpcs)
	if n == 0 {
		return fmt.Sprintf(callerInfoFormatter, notFound)
	}

	frames := runtime.CallersFrames(fpcs[:n])

	for f, more := frames.Next(); more; f, more = frames.Next() {
		_, fnName := filepath.Split(f.Function)

		if f.Func == nil || f.Function == "" {
			fnName = notFound
		}

		// skip this package's own frames to reach the real caller
		if strings.HasPrefix(fnName, defLogPrefixes) || strings.HasPrefix(fnName, "log.(*Log)") {
			continue
		}

		return fmt.Sprintf(callerInfoFormatter, fnName)
	}

	return fmt.Sprintf(callerInfoFormatter, notFound)
}
