// SPDX-License-Identifier: GPL-3.0-or-later

// Package aicp is the module root for an asynchronous I/O completion
// runtime and the protocol state machines built on top of it.
//
// # Packages
//
//   - [github.com/aicp-go/aicp/timer]: a timer wheel (spak/post/post_at/
//     task_kill/task_exit) used by the proactor and by protocol layers
//     that need their own delayed callbacks.
//   - [github.com/aicp-go/aicp/aicp]: the proactor engine itself —
//     [aicp.Proactor], [aicp.Aico] completion handles, and the posted-op
//     surface (Accept/Connect/Recv/Send/RecvV/SendV/SendFile/Read/Write/
//     FSync/RunTask, with *After variants of Accept/Connect/Recv/Send/
//     URecv/USend/RunTask).
//   - [github.com/aicp-go/aicp/stream]: a blocking [stream.Stream] façade
//     over an [aicp.Aico], plus chunked-transfer-coding and gzip/deflate
//     filters composable over it.
//   - [github.com/aicp-go/aicp/sslbridge]: an async TLS/SSL bridge whose
//     BIO hooks are [aicp.Aico] Recv/Send calls, so a handshake or
//     read/write suspends on the proactor rather than blocking a caller.
//   - [github.com/aicp-go/aicp/httpclient]: an async HTTP/1.x client
//     (connect, request, chunked/gzip response parsing, redirects,
//     keep-alive, byte-range seeking) built on [aicp], [stream], and
//     [sslbridge].
//   - [github.com/aicp-go/aicp/resolver]: a pluggable async DNS
//     collaborator consumed by [httpclient] to resolve hostnames through
//     the same proactor instead of Go's built-in blocking resolver.
//   - [github.com/aicp-go/aicp/cmd/aicp-fetch]: a minimal CLI exercising
//     the whole pipeline end to end.
//
// # Concurrency model
//
// Rather than binding to a platform-specific completion port (IOCP) or
// hand-rolling an epoll/kqueue readiness loop, each posted operation runs
// its blocking syscall on its own goroutine and reports completion
// through a channel drained by a worker pool started by
// [aicp.Proactor.Run]. Go's netpoller already multiplexes socket
// readiness under the hood, so this gets proactor-style completion
// semantics without reimplementing what the runtime already does.
//
// # Observability
//
// Every package shares the conventions in
// [github.com/aicp-go/aicp/internal/obs]: an [obs.SLogger] interface
// compatible with [log/slog], paired Start/Done structured log events at
// [slog.LevelInfo] for lifecycle transitions and [slog.LevelDebug] for
// per-I/O events, and [obs.NewSpanID] for correlating a single
// operation's log lines. Logging is disabled by default; set a package's
// Config.Logger to enable it.
package aicp
