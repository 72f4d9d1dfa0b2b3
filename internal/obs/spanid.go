//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: github.com/bassosimone/nop/spanid.go
//

package obs

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 representing a span: a sequence of operations
// that can fail in a single, specific way (e.g., one aice post/complete
// pair, one HTTP redirect hop, one SSL bridge re-entry). Attach it to a
// logger with [*slog.Logger.With] to correlate every log line emitted
// while servicing that operation.
//
// This function panics if the system random number generator fails, which
// should only happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
