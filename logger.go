package simpletq

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Logger defines logging methods used by the library. Implementations should be cheap.
// Default is FmtLogger which writes to stdout/stderr using fmt.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Level is the minimum severity a FmtLogger prints.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel converts "debug", "info", "warn" or "error" into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

var (
	debugTag = color.New(color.FgHiBlack).Sprint("[DEBUG]")
	infoTag  = color.New(color.FgBlue).Sprint("[INFO] ")
	warnTag  = color.New(color.FgYellow).Sprint("[WARN] ")
	errorTag = color.New(color.FgRed, color.Bold).Sprint("[ERROR]")
)

// FmtLogger prints messages with level prefixes.
// Debug/Info go to Out; Warn/Error go to Err.
type FmtLogger struct {
	Out io.Writer
	Err io.Writer
	Min Level
}

// NewFmtLogger creates a FmtLogger on stdout/stderr at info level.
func NewFmtLogger() *FmtLogger {
	return &FmtLogger{Out: os.Stdout, Err: os.Stderr, Min: LevelInfo}
}

func (l *FmtLogger) print(lv Level, w io.Writer, tag, format string, args []any) {
	if lv < l.Min || w == nil {
		return
	}
	fmt.Fprintf(w, tag+" "+format+"\n", args...)
}

func (l *FmtLogger) Debugf(format string, args ...any) { l.print(LevelDebug, l.Out, debugTag, format, args) }
func (l *FmtLogger) Infof(format string, args ...any)  { l.print(LevelInfo, l.Out, infoTag, format, args) }
func (l *FmtLogger) Warnf(format string, args ...any)  { l.print(LevelWarn, l.Err, warnTag, format, args) }
func (l *FmtLogger) Errorf(format string, args ...any) { l.print(LevelError, l.Err, errorTag, format, args) }
