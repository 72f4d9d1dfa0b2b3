//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: github.com/bassosimone/nop/config.go
//

package aicp

import (
	"time"

	"github.com/aicp-go/aicp/internal/errclass"
	"github.com/aicp-go/aicp/internal/obs"
)

// Config holds the common configuration for a [*Proactor].
//
// Pass this to [New] to pre-wire dependencies. All fields have sensible
// defaults set by [NewConfig].
type Config struct {
	// MaxHandles bounds the number of live [*Aico] a [*Proactor] will
	// register at once (spec §3: "bounded by a configured maximum").
	// Zero means unbounded.
	MaxHandles int

	// Workers records the intended size of the shared worker pool
	// described in spec §4.4. Defaults to 1. [*Proactor.Run] does not read
	// it and starts no goroutines: each goroutine that calls Run is one
	// worker of the pool.
	Workers int

	// DefaultConnectTimeout, DefaultRecvTimeout, DefaultSendTimeout are
	// used when an [*Aico]'s per-op timeout is left at zero ("use the
	// runtime default", spec §4.2).
	DefaultConnectTimeout time.Duration
	DefaultRecvTimeout    time.Duration
	DefaultSendTimeout    time.Duration

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier obs.ErrClassifier

	// Logger is the [obs.SLogger] to use.
	Logger obs.SLogger

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

// NewConfig returns a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Workers:               1,
		DefaultConnectTimeout: 30 * time.Second,
		DefaultRecvTimeout:    30 * time.Second,
		DefaultSendTimeout:    30 * time.Second,
		ErrClassifier:         errclass.ObsClassifier,
		Logger:                obs.DefaultSLogger(),
		TimeNow:               time.Now,
	}
}
