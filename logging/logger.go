// Package logging provides the per-component named logger used throughout
// streamrt, in the call shape of a named mediasoup-style Logger
// (NewLogger(name).Debug/.Error) but backed by zerolog instead of a
// hand-rolled writer.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a named, leveled logger. Every long-lived component (Worker,
// Consumer, Transport elsewhere; Executor and Runtime here) owns one
// tagged with its own name.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

var (
	baseOnce   sync.Once
	baseLogger zerolog.Logger
	output     io.Writer = os.Stderr
)

func base() zerolog.Logger {
	baseOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		baseLogger = zerolog.New(output).With().Timestamp().Logger()
	})
	return baseLogger
}

// SetOutput redirects every subsequently-created Logger's sink. Intended
// for tests that want to capture log output.
func SetOutput(w io.Writer) {
	output = w
	baseOnce = sync.Once{}
}

type componentLogger struct {
	log zerolog.Logger
}

// New returns a Logger tagged with component name, mirroring
// mediasoup.NewLogger("Worker") / NewLogger("Consumer").
func New(component string) Logger {
	return &componentLogger{log: base().With().Str("component", component).Logger()}
}

func (l *componentLogger) Debug(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *componentLogger) Info(format string, args ...interface{}) {
	l.log.Info().Msgf(format, args...)
}

func (l *componentLogger) Warn(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

func (l *componentLogger) Error(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}
