package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// LogLevel represents severity.
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[string]LogLevel{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

var currentLevel int32 = int32(LevelInfo)

var baseLogger = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)

// SetLogLevel parses and sets the global log level. Unknown names are ignored
// and reported as false.
func SetLogLevel(s string) bool {
	l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return false
	}
	atomic.StoreInt32(&currentLevel, int32(l))
	return true
}

// SetOutput redirects all log lines (used by the CLI --log-file flag).
func SetOutput(w io.Writer) { baseLogger.SetOutput(w) }

func getLevel() LogLevel { return LogLevel(atomic.LoadInt32(&currentLevel)) }

// GetLogLevel returns current global log level.
func GetLogLevel() LogLevel { return getLevel() }

func logf(l LogLevel, format string, args ...interface{}) {
	if getLevel() > l {
		return
	}
	prefix := "INFO"
	switch l {
	case LevelDebug:
		prefix = "DEBUG"
	case LevelWarn:
		prefix = "WARN"
	case LevelError:
		prefix = "ERROR"
	}
	// Plain messages are printed as-is so a literal % in an already formatted
	// string is not re-parsed by fmt.
	if len(args) == 0 {
		baseLogger.Printf("[%s] %s", prefix, format)
		return
	}
	baseLogger.Printf("[%s] %s", prefix, fmt.Sprintf(format, args...))
}

func Debugf(format string, a ...interface{}) { logf(LevelDebug, format, a...) }
func Infof(format string, a ...interface{})  { logf(LevelInfo, format, a...) }
func Warnf(format string, a ...interface{})  { logf(LevelWarn, format, a...) }
func Errorf(format string, a ...interface{}) { logf(LevelError, format, a...) }

// Prefixed returns a Logger that tags every line with "[tag] ".
func Prefixed(tag string) Logger { return Logger{tag: tag} }

// Logger is a tagged view over the global logger. The zero value logs untagged.
type Logger struct {
	tag string
}

func (p Logger) wrap(format string) string {
	if p.tag == "" {
		return format
	}
	return "[" + p.tag + "] " + format
}

func (p Logger) Debugf(format string, a ...interface{}) { logf(LevelDebug, p.wrap(format), a...) }
func (p Logger) Infof(format string, a ...interface{})  { logf(LevelInfo, p.wrap(format), a...) }
func (p Logger) Warnf(format string, a ...interface{})  { logf(LevelWarn, p.wrap(format), a...) }
func (p Logger) Errorf(format string, a ...interface{}) { logf(LevelError, p.wrap(format), a...) }

// TimeTrack logs the duration of a phase at debug level.
func TimeTrack(start time.Time, label string) {
	Debugf("%s took %s", label, time.Since(start))
}
