// Package log renders zap fields through lipgloss for terminal users. The
// Logger is a small value carried in a context; every builder returns a copy.
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/env"
	"github.com/gitmerge/gitmerge/internal/utils"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelErr     Level = "error"
	LevelSuccess Level = "success"
)

// Levels are the values accepted for --logLevel.
var Levels = []string{string(LevelInfo), string(LevelWarn), string(LevelErr)}

// success is reported at info severity
var severity = map[Level]int{
	LevelInfo:    0,
	LevelSuccess: 0,
	LevelWarn:    1,
	LevelErr:     2,
}

// Formatter turns a message into the line that is written, or "" to drop it.
type Formatter func(level Level, msg string) string

type contextKey struct{}

type Logger struct {
	level           Level
	fields          []zapcore.Field
	interactiveOnly bool
	style           *lipgloss.Style
	formatter       Formatter
	writer          io.Writer
}

func With(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// From returns the logger stored in ctx, or a default one writing to stderr.
func From(ctx context.Context) Logger {
	if l, ok := ctx.Value(contextKey{}).(Logger); ok {
		return l
	}
	return New()
}

func New() Logger {
	formatter := StyledFormatter
	if env.IsGithubAction() {
		formatter = ActionsFormatter
	}

	return Logger{
		level:     LevelInfo,
		formatter: formatter,
		writer:    os.Stderr,
	}
}

func (l Logger) WithLevel(level Level) Logger {
	l.level = level
	return l
}

// WithInteractiveOnly silences the logger when stdout is not a terminal.
func (l Logger) WithInteractiveOnly() Logger {
	l.interactiveOnly = true
	return l
}

func (l Logger) WithStyle(style lipgloss.Style) Logger {
	l.style = &style
	return l
}

// With adds fields to every later entry.
func (l Logger) With(fields ...zapcore.Field) Logger {
	l.fields = append(append([]zapcore.Field{}, l.fields...), fields...)
	return l
}

func (l Logger) WithFormatter(f Formatter) Logger {
	l.formatter = f
	return l
}

func (l Logger) WithWriter(w io.Writer) Logger {
	l.writer = w
	return l
}

func (l Logger) Level() Level {
	return l.level
}

func (l Logger) Info(msg string, fields ...zapcore.Field) {
	l.log(LevelInfo, msg, fields)
}

func (l Logger) Infof(format string, a ...any) {
	l.Info(fmt.Sprintf(format, a...))
}

func (l Logger) Warn(msg string, fields ...zapcore.Field) {
	l.log(LevelWarn, msg, fields)
}

func (l Logger) Warnf(format string, a ...any) {
	l.Warn(fmt.Sprintf(format, a...))
}

func (l Logger) Error(msg string, fields ...zapcore.Field) {
	l.log(LevelErr, msg, fields)
}

func (l Logger) Errorf(format string, a ...any) {
	l.Error(fmt.Sprintf(format, a...))
}

func (l Logger) Success(msg string, fields ...zapcore.Field) {
	l.log(LevelSuccess, msg, fields)
}

func (l Logger) enabled(level Level) bool {
	return severity[level] >= severity[l.level]
}

func (l Logger) log(level Level, msg string, fields []zapcore.Field) {
	if !l.enabled(level) {
		return
	}

	all := append(append([]zapcore.Field{}, l.fields...), fields...)
	rest, err := splitError(all)
	switch {
	case err != nil && msg == "":
		msg = err.Error()
	case err != nil:
		rest = append(rest, zap.Error(err))
	}

	out := l.formatter(level, msg)
	if out == "" {
		return
	}
	l.Println(out + encodeFields(rest))
}

// Printf writes a plain line, ignoring the level.
func (l Logger) Printf(format string, a ...any) {
	l.Println(fmt.Sprintf(format, a...))
}

func (l Logger) PrintfStyled(style lipgloss.Style, format string, a ...any) {
	l.PrintlnUnstyled(style.Render(fmt.Sprintf(format, a...)))
}

func (l Logger) Println(s string) {
	l.Print(s + "\n")
}

func (l Logger) Print(s string) {
	if l.muted() {
		return
	}
	if l.style != nil {
		s = l.style.Render(s)
	}
	fmt.Fprint(l.writer, s)
}

func (l Logger) PrintlnUnstyled(a any) {
	if l.muted() {
		return
	}
	fmt.Fprintln(l.writer, a)
}

func (l Logger) muted() bool {
	return l.interactiveOnly && !utils.IsInteractive()
}

// StyledFormatter colours the message by level.
func StyledFormatter(level Level, msg string) string {
	switch level {
	case LevelInfo:
		return styles.Info.Render(msg)
	case LevelWarn:
		return styles.Warning.Render(msg)
	case LevelErr:
		return styles.Error.Render(msg)
	case LevelSuccess:
		return styles.Success.Render(msg)
	}
	return ""
}

// PlainFormatter renders messages without styling, for tests and pipes.
func PlainFormatter(level Level, msg string) string {
	return fmt.Sprintf("%s\t%s", level, msg)
}

// ActionsFormatter emits workflow commands so warnings and errors show up as
// annotations on a GitHub Actions run.
func ActionsFormatter(level Level, msg string) string {
	switch level {
	case LevelWarn:
		return "::warning title=gitmerge::" + msg
	case LevelErr:
		return "::error title=gitmerge::" + msg
	}
	return msg
}

// splitError pulls the last error field out of fields.
func splitError(fields []zapcore.Field) ([]zapcore.Field, error) {
	var err error
	rest := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		if e, ok := f.Interface.(error); ok && f.Type == zapcore.ErrorType {
			err = e
			continue
		}
		rest = append(rest, f)
	}
	return rest, err
}

func encodeFields(fields []zapcore.Field) string {
	if len(fields) == 0 {
		return ""
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}

	data, err := json.Marshal(enc.Fields)
	if err != nil {
		return ""
	}
	return "\t" + string(data)
}
