//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: spec §4.6 "SSL async bridge"; config-over-globals and
// paired start/done logging conventions from github.com/bassosimone/nop
// (config.go, tls.go).
//

// Package sslbridge bridges Go's synchronous [*tls.Conn] engine onto an
// [*aicp.Aico] proactor handle, matching the state machine in spec §4.6.
//
// Design note (redesign, recorded in DESIGN.md): the original bridges a
// callback-driven BIO by hand-tracking a single "post" descriptor across
// re-entries of a non-blocking engine. Go's crypto/tls engine has no
// non-blocking mode, so instead this package runs each engine operation
// (handshake, read, write, close_notify) on its own dedicated goroutine
// whose BIO hooks ([*bioConn]) are synchronous calls into the bound
// [*aicp.Aico]'s async Recv/Send verbs, blocking that goroutine (never the
// caller, never a worker-pool goroutine) until the async op completes.
// Because [*tls.Conn] never issues a second BIO call before the first
// returns, this preserves spec §4.6's "at most one BIO need outstanding
// per SSL state at a time" invariant without hand-rolling a suspend/
// resume state machine -- the goroutine scheduler supplies the
// suspension points for free, which is the idiomatic Go expression of
// the same constraint.
package sslbridge

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/aicp-go/aicp/aicp"
	"github.com/aicp-go/aicp/internal/obs"
)

// Config configures a [*Bridge].
type Config struct {
	TLSConfig *tls.Config
	Logger    obs.SLogger
	TimeNow   func() time.Time
}

// NewConfig returns a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{TLSConfig: &tls.Config{}, Logger: obs.DefaultSLogger(), TimeNow: time.Now}
}

// Result is delivered to a [Callback], mirroring [aicp.Result]'s shape so
// the two feel like siblings to a caller already using aicp directly.
type Result struct {
	Op    Op
	State aicp.State
	Real  int
	Err   error
}

// Op identifies which bridge verb a [Result] completes, matching spec
// §4.6's "open, clos, read, write, task".
type Op int

const (
	OpOpen Op = iota
	OpClose
	OpRead
	OpWrite
	OpTask
)

func (o Op) String() string {
	switch o {
	case OpOpen:
		return "open"
	case OpClose:
		return "clos"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "task"
	}
}

// Callback is invoked exactly once per accepted post, on a worker
// goroutine drained by the owning [*aicp.Proactor]'s [*aicp.Proactor.Run].
type Callback func(res *Result, priv any)

type bridgeState int32

const (
	stateClosed bridgeState = iota
	stateOpening
	stateOpened
	stateKilling
)

// Bridge is the state machine from spec §4.6's diagram: closed -> opening
// -> opened -> closed, with a killing transition reachable from any
// state. The zero value is not usable; construct with [New].
type Bridge struct {
	aico   *aicp.Aico
	cfg    *Config
	server string // SNI / server name for the client handshake

	mu      sync.Mutex
	state   bridgeState
	conn    *bioConn
	tlsConn *tls.Conn
	killed  bool
}

// New wraps a (connected) [*aicp.Aico] socket handle for a TLS client
// handshake to serverName.
func New(a *aicp.Aico, serverName string, cfg *Config) *Bridge {
	if cfg == nil {
		cfg = NewConfig()
	}
	cfg = &Config{TLSConfig: cfg.TLSConfig, Logger: obs.WithSpanID(cfg.Logger, obs.NewSpanID()), TimeNow: cfg.TimeNow}
	return &Bridge{aico: a, cfg: cfg, server: serverName, state: stateClosed}
}

// Aico returns the bound handle.
func (b *Bridge) Aico() *aicp.Aico { return b.aico }

// Open drives the handshake: opening -> opened on success, closed on
// engine error, per spec §4.6's diagram.
func (b *Bridge) Open(cb Callback, priv any) bool {
	b.mu.Lock()
	if b.state != stateClosed {
		b.mu.Unlock()
		return false
	}
	b.state = stateOpening
	conn := newBioConn(b.aico)
	tlsCfg := b.cfg.TLSConfig.Clone()
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
	}
	if tlsCfg.ServerName == "" {
		tlsCfg.ServerName = b.server
	}
	tlsConn := tls.Client(conn, tlsCfg)
	b.conn = conn
	b.tlsConn = tlsConn
	b.mu.Unlock()

	b.cfg.Logger.Info("sslBridgeOpenStart", "server", b.server)
	go func() {
		t0 := b.cfg.TimeNow()
		err := tlsConn.HandshakeContext(context.Background())
		state := aicp.StateOK
		b.mu.Lock()
		switch {
		case b.killed:
			state = aicp.StateKilled
		case err != nil:
			state = aicp.StateFailed
			b.state = stateClosed
		default:
			b.state = stateOpened
		}
		b.mu.Unlock()
		b.cfg.Logger.Info("sslBridgeOpenDone", "server", b.server, "err", err, "t0", t0, "t", b.cfg.TimeNow())
		b.deliver(&Result{Op: OpOpen, State: state, Err: err}, cb, priv)
	}()
	return true
}

// Read posts a decrypted read of up to len(p) bytes.
func (b *Bridge) Read(p []byte, cb Callback, priv any) bool {
	b.mu.Lock()
	if b.state != stateOpened {
		b.mu.Unlock()
		return false
	}
	tlsConn := b.tlsConn
	b.mu.Unlock()

	go func() {
		n, err := tlsConn.Read(p)
		b.deliver(&Result{Op: OpRead, State: b.classify(err), Real: n, Err: err}, cb, priv)
	}()
	return true
}

// Write posts an encrypted write of p.
func (b *Bridge) Write(p []byte, cb Callback, priv any) bool {
	b.mu.Lock()
	if b.state != stateOpened {
		b.mu.Unlock()
		return false
	}
	tlsConn := b.tlsConn
	b.mu.Unlock()

	go func() {
		n, err := tlsConn.Write(p)
		b.deliver(&Result{Op: OpWrite, State: b.classify(err), Real: n, Err: err}, cb, priv)
	}()
	return true
}

// Task posts a no-op round-trip through the worker pool, e.g. to defer
// work until after in-flight bridge ops have drained.
func (b *Bridge) Task(cb Callback, priv any) bool {
	b.deliver(&Result{Op: OpTask, State: aicp.StateOK}, cb, priv)
	return true
}

// ClosTry attempts a synchronous close, returning true if already closed
// or if the bound aico is unavailable, per spec §4.6.
func (b *Bridge) ClosTry() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateClosed {
		return true
	}
	if b.aico == nil {
		b.state = stateClosed
		return true
	}
	return false
}

// Close posts an async close_notify on its own goroutine and fires the
// callback once the engine's close returns; if ClosTry already reports
// closed, the callback fires right away with StateOK.
func (b *Bridge) Close(cb Callback, priv any) bool {
	if b.ClosTry() {
		b.deliver(&Result{Op: OpClose, State: aicp.StateOK}, cb, priv)
		return true
	}
	b.mu.Lock()
	tlsConn := b.tlsConn
	b.mu.Unlock()
	go func() {
		err := tlsConn.Close()
		b.mu.Lock()
		b.state = stateClosed
		b.mu.Unlock()
		b.deliver(&Result{Op: OpClose, State: b.classify(err), Err: err}, cb, priv)
	}()
	return true
}

// Kill marks the bridge killing and kills the underlying aico; all
// in-flight ops eventually callback with [aicp.StateKilled], per spec
// §4.6.
func (b *Bridge) Kill() {
	b.mu.Lock()
	b.killed = true
	b.state = stateKilling
	b.mu.Unlock()
	b.aico.Kill()
}

func (b *Bridge) classify(err error) aicp.State {
	b.mu.Lock()
	killed := b.killed
	b.mu.Unlock()
	switch {
	case killed:
		return aicp.StateKilled
	case err == nil:
		return aicp.StateOK
	case err == io.EOF:
		return aicp.StateClosed
	default:
		return aicp.StateFailed
	}
}

func (b *Bridge) deliver(res *Result, cb Callback, priv any) {
	if cb == nil {
		return
	}
	b.aico.Proactor().Deliver(func() { cb(res, priv) })
}

// bioConn adapts [*aicp.Aico]'s async Recv/Send verbs to the synchronous
// [net.Conn] interface [*tls.Conn] requires for its BIO. Each Read/Write
// call posts exactly one aicp op and blocks the calling (engine)
// goroutine on its completion -- the BIO hook described in spec §4.6,
// expressed as a blocking call instead of a want-read/want-write return
// code, since only one goroutine (the engine's) ever calls it.
type bioConn struct {
	aico *aicp.Aico
}

func newBioConn(a *aicp.Aico) *bioConn { return &bioConn{aico: a} }

var _ net.Conn = (*bioConn)(nil)

func (c *bioConn) Read(p []byte) (int, error) {
	type outcome struct {
		n   int
		err error
	}
	done := make(chan outcome, 1)
	if !c.aico.Recv(p, func(res *aicp.Result, priv any) bool {
		done <- outcome{n: res.Real, err: res.Err}
		return true
	}, nil) {
		return 0, fmt.Errorf("sslbridge: recv already in flight")
	}
	o := <-done
	if o.err == nil && o.n == 0 {
		o.err = io.EOF
	}
	return o.n, o.err
}

func (c *bioConn) Write(p []byte) (int, error) {
	type outcome struct {
		n   int
		err error
	}
	done := make(chan outcome, 1)
	if !c.aico.Send(p, func(res *aicp.Result, priv any) bool {
		done <- outcome{n: res.Real, err: res.Err}
		return true
	}, nil) {
		return 0, fmt.Errorf("sslbridge: send already in flight")
	}
	o := <-done
	return o.n, o.err
}

func (c *bioConn) Close() error                       { return c.aico.CloseWait(context.Background()) }
func (c *bioConn) LocalAddr() net.Addr                { return safeAddr(c.aico.Sock(), true) }
func (c *bioConn) RemoteAddr() net.Addr               { return safeAddr(c.aico.Sock(), false) }
func (c *bioConn) SetDeadline(t time.Time) error     { return nil }
func (c *bioConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *bioConn) SetWriteDeadline(t time.Time) error { return nil }

func safeAddr(conn net.Conn, local bool) net.Addr {
	if conn == nil {
		return nil
	}
	if local {
		return conn.LocalAddr()
	}
	return conn.RemoteAddr()
}
