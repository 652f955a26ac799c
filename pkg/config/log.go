package config

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var availableLevels = []string{"panic", "fatal", "error", "warn", "info", "debug"}

var (
	loggersMu sync.Mutex
	loggers   = map[string]*logrus.Logger{}
	level     = logrus.InfoLevel
)

// NamedLogger creates named package logger.
func NamedLogger(name string) *logrus.Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[name]; ok {
		return l
	}
	l := &logrus.Logger{
		Out: os.Stderr,
		Formatter: &CustomTextFormatter{
			TextFormatter: logrus.TextFormatter{
				FullTimestamp: true,
				CallerPrettyfier: func(*runtime.Frame) (string, string) {
					return "", ""
				},
			},
			name: name,
		},
		Hooks:        make(logrus.LevelHooks),
		Level:        level,
		ReportCaller: true,
	}
	loggers[name] = l
	return l
}

// SetLevel applies a level name to every named logger, current and future.
func SetLevel(name string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(name))
	if err != nil {
		return err
	}
	loggersMu.Lock()
	defer loggersMu.Unlock()
	level = lvl
	for _, l := range loggers {
		l.SetLevel(lvl)
	}
	return nil
}

// ValidLevel reports whether name is an accepted logging level
func ValidLevel(name string) bool {
	for _, l := range availableLevels {
		if l == strings.ToLower(name) {
			return true
		}
	}
	return false
}

// CustomTextFormatter prefixes messages with the logger name and call site
type CustomTextFormatter struct {
	logrus.TextFormatter
	name string
}

// Format renders a single log entry
func (f *CustomTextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	if entry.HasCaller() {
		entry.Message = fmt.Sprintf("[%s %s:%03d] %s", f.name, path.Base(entry.Caller.File), entry.Caller.Line, entry.Message)
	} else {
		entry.Message = fmt.Sprintf("[%s] %s", f.name, entry.Message)
	}
	return f.TextFormatter.Format(entry)
}
