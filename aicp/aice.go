//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: spec §3 "Request (aice)"; original_source/core/pkg/tbox.pkg/inc/tbox/asio/aice.h
//

package aicp

import "net/netip"

// Code identifies the kind of I/O operation a posted request performs,
// matching spec §3's aice discriminant. Unlike the original's single union
// struct, each code here is carried by a distinct posting verb on [*Aico],
// so the result shape per operation is visible in the type system rather
// than collapsed into one struct with code-dependent fields (spec §9,
// "untyped callback threaded through every verb").
type Code int

const (
	CodeNone Code = iota
	CodeAccept
	CodeConnect
	CodeRecv
	CodeSend
	CodeURecv
	CodeUSend
	CodeRecvV
	CodeSendV
	CodeURecvV
	CodeUSendV
	CodeSendFile
	CodeRead
	CodeWrite
	CodeReadV
	CodeWriteV
	CodeFSync
	CodeRunTask
	CodeClose
)

// String returns a human-readable name for the code, used in log lines.
func (c Code) String() string {
	switch c {
	case CodeAccept:
		return "accept"
	case CodeConnect:
		return "connect"
	case CodeRecv:
		return "recv"
	case CodeSend:
		return "send"
	case CodeURecv:
		return "urecv"
	case CodeUSend:
		return "usend"
	case CodeRecvV:
		return "recvv"
	case CodeSendV:
		return "sendv"
	case CodeURecvV:
		return "urecvv"
	case CodeUSendV:
		return "usendv"
	case CodeSendFile:
		return "sendfile"
	case CodeRead:
		return "read"
	case CodeWrite:
		return "write"
	case CodeReadV:
		return "readv"
	case CodeWriteV:
		return "writev"
	case CodeFSync:
		return "fsync"
	case CodeRunTask:
		return "runtask"
	case CodeClose:
		return "close"
	default:
		return "none"
	}
}

// State is the terminal outcome of a completed aice, matching spec §3/§7.
type State int

const (
	StateOK State = iota
	StateFailed
	StateKilled
	StateClosed
	StatePending
	StateTimeout
	StateNotSupported
)

// String returns a human-readable name for the state, used in log lines.
func (s State) String() string {
	switch s {
	case StateOK:
		return "ok"
	case StateFailed:
		return "failed"
	case StateKilled:
		return "killed"
	case StateClosed:
		return "closed"
	case StatePending:
		return "pending"
	case StateTimeout:
		return "timeout"
	case StateNotSupported:
		return "not_supported"
	default:
		return "unknown"
	}
}

// Result is delivered to a [Callback] exactly once per accepted post
// (spec §7, "exactly one terminal callback per accepted submission").
//
// Only the fields relevant to Code are meaningful; see each posting verb's
// doc comment on [*Aico] for which fields it fills.
type Result struct {
	// Code is the operation this result completes.
	Code Code

	// State is the terminal outcome.
	State State

	// Aico is the handle the operation was posted on.
	Aico *Aico

	// Real is the number of bytes actually moved, for data-carrying ops.
	Real int

	// Addr is the peer address, filled on urecv/urecvv and accept.
	Addr netip.AddrPort

	// Accepted is the newly-registered client [*Aico], filled on accept.
	Accepted *Aico

	// Err is the underlying error, if any (nil when State==StateOK).
	Err error
}

// Callback is invoked exactly once per accepted post, always on a worker
// goroutine running [*Proactor.Run] (spec §4.4/§5), never synchronously on
// the posting goroutine. priv is the opaque value passed to the posting
// verb, threaded through unchanged.
//
// Returning true indicates the handle may continue to be used; returning
// false is advisory only, matching spec §4.3 ("the runtime does not
// auto-close on false").
type Callback func(res *Result, priv any) bool
