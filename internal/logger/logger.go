// Package logger provides leveled logging for the whole process.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

type leveledLogger struct {
	level  Level
	logger *log.Logger
}

var defaultLogger *leveledLogger

// Init initializes the default logger with the specified level and format.
// The "text" format adds caller locations for local debugging.
func Init(level string, format string) {
	var l Level
	switch strings.ToLower(level) {
	case "debug":
		l = DebugLevel
	case "info":
		l = InfoLevel
	case "warn":
		l = WarnLevel
	case "error":
		l = ErrorLevel
	default:
		l = InfoLevel
	}

	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}

	defaultLogger = &leveledLogger{
		level:  l,
		logger: log.New(os.Stderr, "", flags),
	}
}

func output(level Level, tag, format string, args ...any) {
	if defaultLogger == nil || defaultLogger.level > level {
		return
	}
	_ = defaultLogger.logger.Output(3, fmt.Sprintf(tag+" "+format, args...))
}

func Debug(format string, args ...any) {
	output(DebugLevel, "[DEBUG]", format, args...)
}

func Info(format string, args ...any) {
	output(InfoLevel, "[INFO]", format, args...)
}

func Warn(format string, args ...any) {
	output(WarnLevel, "[WARN]", format, args...)
}

func Error(format string, args ...any) {
	output(ErrorLevel, "[ERROR]", format, args...)
}

// Fatal logs at the highest severity and terminates the process.
func Fatal(format string, args ...any) {
	if defaultLogger != nil {
		_ = defaultLogger.logger.Output(2, fmt.Sprintf("[FATAL] "+format, args...))
	}
	os.Exit(1)
}
