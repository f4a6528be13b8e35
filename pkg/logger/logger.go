package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the module-scoped logger passed to every component.
type Logger interface {
	Debugf(msg string, args ...any)
	Infof(msg string, args ...any)
	Warnf(msg string, args ...any)
	Errorf(msg string, args ...any)
	Sub(module string) Logger
}

type zeroLogger struct {
	module string
	base   zerolog.Logger
}

// Stdout builds a console logger for the given module and minimum level.
func Stdout(module, level string, color bool) Logger {
	out := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		NoColor:    !color || os.Getenv("NO_COLOR") != "",
	}
	return newZero(out, module, level)
}

func newZero(out io.Writer, module, level string) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return &zeroLogger{module: module, base: zl}
}

func (l *zeroLogger) emit(evt *zerolog.Event, msg string, args []any) {
	if l.module != "" {
		evt = evt.Str("module", l.module)
	}
	evt.Msg(fmt.Sprintf(msg, args...))
}

func (l *zeroLogger) Debugf(msg string, args ...any) { l.emit(l.base.Debug(), msg, args) }
func (l *zeroLogger) Infof(msg string, args ...any)  { l.emit(l.base.Info(), msg, args) }
func (l *zeroLogger) Warnf(msg string, args ...any)  { l.emit(l.base.Warn(), msg, args) }
func (l *zeroLogger) Errorf(msg string, args ...any) { l.emit(l.base.Error(), msg, args) }

func (l *zeroLogger) Sub(module string) Logger {
	name := module
	if l.module != "" {
		name = l.module + "/" + module
	}
	return &zeroLogger{module: name, base: l.base}
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}
func (n noopLogger) Sub(string) Logger   { return n }

// Noop discards everything.
var Noop Logger = noopLogger{}

type Loggers struct {
	App  Logger
	HTTP Logger
}

func New(level string) *Loggers {
	if level == "" {
		level = "INFO"
	}
	app := Stdout("App", level, true)
	return &Loggers{
		App:  app,
		HTTP: app.Sub("HTTP"),
	}
}
