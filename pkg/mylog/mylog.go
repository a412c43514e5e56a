package mylog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

type Logger interface {
	Printf(string, ...interface{})
}

type Level int

const (
	LevelFatal Level = -2
	LevelError       = iota
	LevelInfo
	LevelTrace
	LevelDebug
)

var levelStrings = map[string]Level{
	"FATAL": LevelFatal,
	"ERROR": LevelError,
	"INFO":  LevelInfo,
	"TRACE": LevelTrace,
	"DEBUG": LevelDebug,
}

// zerolog has no TRACE above DEBUG, our TRACE is emitted as zerolog's debug
// and our DEBUG as zerolog's trace.
var zeroLevels = map[Level]zerolog.Level{
	LevelFatal: zerolog.FatalLevel,
	LevelError: zerolog.ErrorLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelTrace: zerolog.DebugLevel,
	LevelDebug: zerolog.TraceLevel,
}

// ParseLevel converts a level name (case insensitive)
func ParseLevel(lvl string) (Level, error) {
	level, ok := levelStrings[strings.ToUpper(lvl)]
	if !ok {
		return 0, fmt.Errorf("invalid log level '%s'", lvl)
	}
	return level, nil
}

type MyLog struct {
	logLevel                  Level
	consoleLogger, fileLogger *zerolog.Logger
	exit                      func(int)
}

// NewLog return a MyLog structure.
// The console writer get a human readable output, the file writer gets JSON lines.
// Both writers can be nil.
func NewLog(lvl string, console io.Writer, file io.Writer) (*MyLog, error) {
	level, err := ParseLevel(lvl)
	if err != nil {
		return nil, err
	}

	l := &MyLog{
		logLevel: level,
		exit:     os.Exit,
	}
	if console != nil {
		cl := zerolog.New(zerolog.ConsoleWriter{Out: console, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()
		l.consoleLogger = &cl
	}
	if file != nil {
		fl := zerolog.New(file).With().Timestamp().Logger()
		l.fileLogger = &fl
	}
	return l, nil
}

// Fatal prepare the output of FATAL message
func (l *MyLog) Fatal() logcontext {
	return logcontext{l, LevelFatal}
}

// Error prepare the output of ERROR message
func (l *MyLog) Error() logcontext {
	return logcontext{l, LevelError}
}

// Info prepare the output of INFO message
func (l *MyLog) Info() logcontext {
	return logcontext{l, LevelInfo}
}

// Trace prepare the output of TRACE message
func (l *MyLog) Trace() logcontext {
	return logcontext{l, LevelTrace}
}

// Debug prepare the output of DEBUG message
func (l *MyLog) Debug() logcontext {
	return logcontext{l, LevelDebug}
}

// IsDebug return true if log level is DEBUG
func (l *MyLog) IsDebug() bool {
	if l == nil {
		return true
	}
	return l.logLevel >= LevelDebug
}

// Level returns the current level
func (l *MyLog) Level() Level {
	if l == nil {
		return LevelDebug
	}
	return l.logLevel
}

// logcontext get the level of current message
type logcontext struct {
	mylog *MyLog
	lvl   Level
}

// Printf print message on configured writers
// When a log file writer is provided, only errors are written on
// console writer
// When the message is FATAL, the message is written on writers and the
// program exits
// If the logger isn't initialized, it logs with zerolog's global logger
func (c logcontext) Printf(format string, args ...interface{}) {
	zl := zeroLevels[c.lvl]
	if c.mylog == nil {
		zlog.WithLevel(zl).Msgf(format, args...)
		if c.lvl == LevelFatal {
			os.Exit(1)
		}
		return
	}
	if c.mylog.consoleLogger != nil {
		// without file, the console follows the configured level
		if c.lvl <= LevelError || (c.mylog.fileLogger == nil && c.lvl <= c.mylog.logLevel) {
			c.mylog.consoleLogger.WithLevel(zl).Msgf(format, args...)
		}
	}
	if c.mylog.fileLogger != nil && c.lvl <= c.mylog.logLevel {
		c.mylog.fileLogger.WithLevel(zl).Msgf(format, args...)
	}
	if c.lvl == LevelFatal {
		c.mylog.exit(1)
	}
}

// NullLogger discards everything
type NullLogger struct{}

func (NullLogger) Printf(string, ...interface{}) {}
