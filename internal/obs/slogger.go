//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: github.com/bassosimone/nop/slogger.go
//

// Package obs provides the shared observability primitives (structured
// logging, error classification, span IDs) used by every component of
// this module. It exists so the timer, aicp, stream, sslbridge, and
// httpclient packages share one logging convention instead of each
// reinventing it.
package obs

// SLogger abstracts the [*slog.Logger] behavior.
//
// This package uses two log levels:
//   - Info for lifecycle and protocol events (post, dispatch, handshake,
//     round trip, redirect, close)
//   - Debug for per-I/O events (read, write, set deadline, timer spak)
//
// The [*slog.Logger] type satisfies this interface.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// DefaultSLogger returns the default [SLogger] to use.
//
// The default is a no-op logger that discards all output, consistent
// with not writing to stdout/stderr unless explicitly configured.
func DefaultSLogger() SLogger {
	return discardSLogger{}
}

type discardSLogger struct{}

var _ SLogger = discardSLogger{}

func (discardSLogger) Debug(msg string, args ...any) {}
func (discardSLogger) Info(msg string, args ...any)  {}

// WithSpanID returns an [SLogger] that prepends "spanID", id to every log
// call's args, so every line a single span emits (one aice post/complete
// pair, one HTTP redirect hop, one SSL bridge re-entry) can be correlated
// back to it. Construct id with [NewSpanID].
func WithSpanID(logger SLogger, id string) SLogger {
	return spanLogger{logger: logger, id: id}
}

type spanLogger struct {
	logger SLogger
	id     string
}

var _ SLogger = spanLogger{}

func (s spanLogger) Debug(msg string, args ...any) {
	s.logger.Debug(msg, append([]any{"spanID", s.id}, args...)...)
}

func (s spanLogger) Info(msg string, args ...any) {
	s.logger.Info(msg, append([]any{"spanID", s.id}, args...)...)
}
