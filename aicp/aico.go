//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: spec §3 "Completion handle (aico)", §4.2, §4.3;
// original_source/core/pkg/tbox.pkg/inc/tbox/asio/aico.h
//

package aicp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassosimone/safeconn"
)

// Kind is the type of resource an [*Aico] is bound to, matching spec §3.
type Kind int

const (
	KindSocket Kind = iota
	KindFile
	KindTask
)

// HandleState is the lifecycle state of an [*Aico], matching spec §4.2's
// state machine: open --kill--> killed; open --clos_try ok--> closed.
type HandleState int32

const (
	handleOpen HandleState = iota
	handleClosing
	handleClosed
	handleKilled
)

// TimeoutKind selects which of the three socket timeouts (spec §3/§4.2)
// a call to [*Aico.Timeout]/[*Aico.SetTimeout] addresses.
type TimeoutKind int

const (
	TimeoutConnect TimeoutKind = iota
	TimeoutRecv
	TimeoutSend
)

// Dialer abstracts [*net.Dialer], grounded on github.com/bassosimone/nop's
// Dialer interface, so [*Aico.Connect] can be unit tested against a fake.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Aico is a registered completion handle, matching spec §3/§4.2.
//
// An Aico may not be destroyed while any of its posted requests is
// unresolved; a kill transition is idempotent; after a successful close no
// new request may be posted and no callback fires for this handle again.
// The zero value is not usable; construct via [*Proactor.OpenSocket],
// [*Proactor.OpenListener], [*Proactor.OpenFile], or [*Proactor.OpenTask].
type Aico struct {
	p    *Proactor
	kind Kind

	mu       sync.Mutex
	conn     net.Conn
	ln       net.Listener
	file     *os.File
	dialer   Dialer
	network  string
	state    atomic.Int32
	recvBusy bool
	sendBusy bool

	timeouts [3]time.Duration // indexed by TimeoutKind; 0 = use runtime default, <0 = no timeout
}

// OpenSocket registers conn as a socket [*Aico]. Use this for already-
// connected sockets (e.g. the result of [*Aico.Accept]).
func (p *Proactor) OpenSocket(conn net.Conn) (*Aico, error) {
	a := &Aico{p: p, kind: KindSocket, conn: conn}
	if err := p.register(a); err != nil {
		return nil, err
	}
	return a, nil
}

// OpenSocketFromType registers an unconnected socket [*Aico] bound to
// network ("tcp" or "udp"); dialer defaults to [*net.Dialer] when nil.
// Use [*Aico.Connect] to establish the connection.
func (p *Proactor) OpenSocketFromType(network string, dialer Dialer) (*Aico, error) {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	a := &Aico{p: p, kind: KindSocket, dialer: dialer, network: network}
	if err := p.register(a); err != nil {
		return nil, err
	}
	return a, nil
}

// OpenListener registers ln as a socket [*Aico] whose only valid verb is
// [*Aico.Accept].
func (p *Proactor) OpenListener(ln net.Listener) (*Aico, error) {
	a := &Aico{p: p, kind: KindSocket, ln: ln}
	if err := p.register(a); err != nil {
		return nil, err
	}
	return a, nil
}

// OpenFile registers f as a file [*Aico].
func (p *Proactor) OpenFile(f *os.File) (*Aico, error) {
	a := &Aico{p: p, kind: KindFile, file: f}
	if err := p.register(a); err != nil {
		return nil, err
	}
	return a, nil
}

// OpenFileFromPath opens path with the given flags/perm and registers it
// as a file [*Aico].
func (p *Proactor) OpenFileFromPath(path string, flag int, perm os.FileMode) (*Aico, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	return p.OpenFile(f)
}

// OpenTask registers a bare task [*Aico] with no underlying OS resource,
// used only to post [*Aico.RunTask]/[*Aico.RunTaskAfter].
func (p *Proactor) OpenTask() (*Aico, error) {
	a := &Aico{p: p, kind: KindTask}
	if err := p.register(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Kind returns the handle's type.
func (a *Aico) Kind() Kind { return a.kind }

// Proactor returns the owning [*Proactor].
func (a *Aico) Proactor() *Proactor { return a.p }

// Sock returns the underlying [net.Conn], or nil if this is not a
// connected socket handle.
func (a *Aico) Sock() net.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

// File returns the underlying [*os.File], or nil if this is not a file
// handle.
func (a *Aico) File() *os.File {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file
}

// Timeout returns the configured timeout for kind. Zero means "use the
// runtime default"; negative means "no timeout" (spec §4.2).
func (a *Aico) Timeout(kind TimeoutKind) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timeouts[kind]
}

// SetTimeout sets the timeout for kind.
func (a *Aico) SetTimeout(kind TimeoutKind, d time.Duration) {
	a.mu.Lock()
	a.timeouts[kind] = d
	a.mu.Unlock()
}

func (a *Aico) effectiveTimeout(kind TimeoutKind) time.Duration {
	d := a.Timeout(kind)
	if d < 0 {
		return 0 // no deadline
	}
	if d > 0 {
		return d
	}
	switch kind {
	case TimeoutConnect:
		return a.p.cfg.DefaultConnectTimeout
	case TimeoutRecv:
		return a.p.cfg.DefaultRecvTimeout
	default:
		return a.p.cfg.DefaultSendTimeout
	}
}

// Kill transitions the handle to killed. Idempotent. Any request already
// in flight observes its underlying I/O fail (the connection/file is
// closed), and [*Aico]'s op wrapper reports that as StateKilled rather
// than StateFailed because the killed flag was already observed.
func (a *Aico) Kill() {
	if !a.state.CompareAndSwap(int32(handleOpen), int32(handleKilled)) {
		a.state.CompareAndSwap(int32(handleClosing), int32(handleKilled))
	}
	a.mu.Lock()
	conn, ln, file := a.conn, a.ln, a.file
	a.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	if ln != nil {
		ln.Close()
	}
	if file != nil {
		file.Close()
	}
}

func (a *Aico) isKilled() bool {
	return HandleState(a.state.Load()) == handleKilled
}

// ClosTry attempts a synchronous close: it succeeds (returns true) only
// when no request is in flight on the handle, matching spec §4.2. On
// success the handle moves to closed and the underlying resource is
// closed; on failure the caller should retry, typically via
// [*Aico.CloseWait], which retries until it succeeds. A killed handle with
// no request in flight also succeeds; its resources were already closed
// by Kill and it stays in the killed state.
func (a *Aico) ClosTry() bool {
	a.mu.Lock()
	busy := a.recvBusy || a.sendBusy
	a.mu.Unlock()
	if busy {
		return false
	}
	if !a.state.CompareAndSwap(int32(handleOpen), int32(handleClosed)) {
		s := HandleState(a.state.Load())
		return s == handleClosed || s == handleKilled
	}
	a.mu.Lock()
	conn, ln, file := a.conn, a.ln, a.file
	a.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	if ln != nil {
		ln.Close()
	}
	if file != nil {
		file.Close()
	}
	return true
}

// CloseWait blocks until no request is in flight on the handle and then
// closes it, unregistering it from the owning [*Proactor]. It retries
// [*Aico.ClosTry] once a millisecond until that succeeds or ctx is done:
// ownership transfers out of the caller's hands the moment this returns
// nil.
func (a *Aico) CloseWait(ctx context.Context) error {
	for !a.ClosTry() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	a.p.unregister(a)
	return nil
}

// direction distinguishes the recv-side and send-side single-slot
// invariant from spec §4.4 ("only one outstanding request per handle per
// direction is permitted").
type direction int

const (
	dirRecv direction = iota
	dirSend
	dirNone // file/task ops and accept/connect, not subject to the recv/send slot
)

func codeDirection(c Code) direction {
	switch c {
	case CodeRecv, CodeURecv, CodeRecvV, CodeURecvV, CodeAccept:
		return dirRecv
	case CodeSend, CodeUSend, CodeSendV, CodeUSendV, CodeSendFile, CodeConnect:
		return dirSend
	default:
		return dirNone
	}
}

func (a *Aico) acquireSlot(dir direction) bool {
	if dir == dirNone {
		return true
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if dir == dirRecv {
		if a.recvBusy {
			return false
		}
		a.recvBusy = true
		return true
	}
	if a.sendBusy {
		return false
	}
	a.sendBusy = true
	return true
}

func (a *Aico) releaseSlot(dir direction) {
	if dir == dirNone {
		return
	}
	a.mu.Lock()
	if dir == dirRecv {
		a.recvBusy = false
	} else {
		a.sendBusy = false
	}
	a.mu.Unlock()
}

// opFunc performs the blocking half of a posting verb. It returns the
// number of bytes moved, the peer address (urecv/accept only), a freshly
// accepted Aico (accept only), and an error.
type opFunc func(ctx context.Context) (real int, addr netip.AddrPort, accepted *Aico, err error)

// submit is the shared implementation behind every posting verb in
// spec §4.3: it enforces the killed-handle invariant, the per-direction
// single-slot invariant, applies the relevant timeout, and always
// delivers exactly one [Result] to cb on a worker goroutine (spec §7/§8).
func (a *Aico) submit(code Code, timeoutKind TimeoutKind, op opFunc, cb Callback, priv any) bool {
	if cb == nil {
		return false
	}
	if a.isKilled() {
		a.p.deliver(&Result{Code: code, State: StateKilled, Aico: a}, cb, priv)
		return true
	}
	if HandleState(a.state.Load()) == handleClosed {
		return false
	}
	dir := codeDirection(code)
	if !a.acquireSlot(dir) {
		return false
	}
	go func() {
		defer a.releaseSlot(dir)
		ctx := context.Background()
		var cancel context.CancelFunc
		if d := a.effectiveTimeout(timeoutKind); d > 0 {
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		real, addr, accepted, err := op(ctx)
		res := &Result{Code: code, Aico: a, Real: real, Addr: addr, Accepted: accepted, Err: err}
		switch {
		case err == nil:
			res.State = StateOK
		case a.isKilled():
			res.State = StateKilled
		case ctx.Err() != nil:
			res.State = StateTimeout
		case err == io.EOF:
			res.State = StateClosed
		default:
			res.State = StateFailed
		}
		var errClass string
		if err != nil && a.p.errClass != nil {
			errClass = a.p.errClass.Classify(err)
		}
		a.p.logger.Info("aicoComplete",
			"code", code.String(), "state", res.State.String(), "real", real,
			"errClass", errClass, "err", err,
			"localAddr", safeconn.LocalAddr(a.conn), "remoteAddr", safeconn.RemoteAddr(a.conn))
		a.p.deliver(res, cb, priv)
	}()
	return true
}

// submitAfter defers submit behind the proactor's timer wheel by delay,
// matching the `_after_` posting verbs in spec §4.3. If the handle is
// killed while the delay is pending, the callback still fires with
// StateKilled when the timer ticks.
func (a *Aico) submitAfter(delay time.Duration, code Code, timeoutKind TimeoutKind, op opFunc, cb Callback, priv any) bool {
	if cb == nil {
		return false
	}
	a.p.timer.Post(delay, false, func(_ any, killed bool) {
		if killed || a.isKilled() {
			a.p.deliver(&Result{Code: code, State: StateKilled, Aico: a}, cb, priv)
			return
		}
		a.submit(code, timeoutKind, op, cb, priv)
	}, nil)
	return true
}

// Accept posts an accept on a listener [*Aico]. On success, res.Accepted
// is a newly-registered client [*Aico] and res.Addr is the peer address.
func (a *Aico) Accept(cb Callback, priv any) bool {
	return a.submit(CodeAccept, TimeoutConnect, a.acceptOp, cb, priv)
}

// AcceptAfter is the delayed variant of [*Aico.Accept].
func (a *Aico) AcceptAfter(delay time.Duration, cb Callback, priv any) bool {
	return a.submitAfter(delay, CodeAccept, TimeoutConnect, a.acceptOp, cb, priv)
}

func (a *Aico) acceptOp(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
	if a.ln == nil {
		return 0, netip.AddrPort{}, nil, fmt.Errorf("aicp: accept on non-listener handle")
	}
	type deadlineSetter interface {
		SetDeadline(time.Time) error
	}
	if d, ok := a.ln.(deadlineSetter); ok {
		if dl, hasDL := ctx.Deadline(); hasDL {
			d.SetDeadline(dl)
		}
	}
	conn, err := a.ln.Accept()
	if err != nil {
		return 0, netip.AddrPort{}, nil, err
	}
	client, rerr := a.p.OpenSocket(conn)
	if rerr != nil {
		conn.Close()
		return 0, netip.AddrPort{}, nil, rerr
	}
	addr, _ := netip.ParseAddrPort(conn.RemoteAddr().String())
	return 0, addr, client, nil
}

// Connect posts a connect on a socket [*Aico] created via
// [*Proactor.OpenSocketFromType]. On success the handle's underlying
// connection becomes addr.
func (a *Aico) Connect(addr netip.AddrPort, cb Callback, priv any) bool {
	return a.submit(CodeConnect, TimeoutConnect, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.connectOp(ctx, addr)
	}, cb, priv)
}

// ConnectAfter is the delayed variant of [*Aico.Connect].
func (a *Aico) ConnectAfter(delay time.Duration, addr netip.AddrPort, cb Callback, priv any) bool {
	return a.submitAfter(delay, CodeConnect, TimeoutConnect, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.connectOp(ctx, addr)
	}, cb, priv)
}

func (a *Aico) connectOp(ctx context.Context, addr netip.AddrPort) (int, netip.AddrPort, *Aico, error) {
	if a.dialer == nil {
		return 0, netip.AddrPort{}, nil, fmt.Errorf("aicp: connect on non-dial handle")
	}
	conn, err := a.dialer.DialContext(ctx, a.network, addr.String())
	if err != nil {
		return 0, netip.AddrPort{}, nil, err
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	return 0, addr, nil, nil
}

// Recv posts a buffered receive on a connected socket.
func (a *Aico) Recv(buf []byte, cb Callback, priv any) bool {
	return a.submit(CodeRecv, TimeoutRecv, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.recvOp(ctx, buf)
	}, cb, priv)
}

// RecvAfter is the delayed variant of [*Aico.Recv].
func (a *Aico) RecvAfter(delay time.Duration, buf []byte, cb Callback, priv any) bool {
	return a.submitAfter(delay, CodeRecv, TimeoutRecv, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.recvOp(ctx, buf)
	}, cb, priv)
}

func (a *Aico) recvOp(ctx context.Context, buf []byte) (int, netip.AddrPort, *Aico, error) {
	conn := a.Sock()
	if conn == nil {
		return 0, netip.AddrPort{}, nil, fmt.Errorf("aicp: recv on unconnected handle")
	}
	applyReadDeadline(conn, ctx)
	n, err := conn.Read(buf)
	return n, netip.AddrPort{}, nil, err
}

// Send posts a buffered send on a connected socket. size==0 is an
// explicit zero-byte send that reports ok with zero bytes moved (the
// clearer interpretation this repo adopts per spec §9; the original's
// "size==0 means send the rest of the file" confusion applies only to
// [*Aico.SendFile]).
func (a *Aico) Send(data []byte, cb Callback, priv any) bool {
	return a.submit(CodeSend, TimeoutSend, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.sendOp(ctx, data)
	}, cb, priv)
}

// SendAfter is the delayed variant of [*Aico.Send].
func (a *Aico) SendAfter(delay time.Duration, data []byte, cb Callback, priv any) bool {
	return a.submitAfter(delay, CodeSend, TimeoutSend, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.sendOp(ctx, data)
	}, cb, priv)
}

func (a *Aico) sendOp(ctx context.Context, data []byte) (int, netip.AddrPort, *Aico, error) {
	if len(data) == 0 {
		return 0, netip.AddrPort{}, nil, nil
	}
	conn := a.Sock()
	if conn == nil {
		return 0, netip.AddrPort{}, nil, fmt.Errorf("aicp: send on unconnected handle")
	}
	applyWriteDeadline(conn, ctx)
	n, err := conn.Write(data)
	return n, netip.AddrPort{}, nil, err
}

// URecv posts a UDP receive, filling res.Addr with the sender's address.
func (a *Aico) URecv(buf []byte, cb Callback, priv any) bool {
	return a.submit(CodeURecv, TimeoutRecv, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.urecvOp(ctx, buf)
	}, cb, priv)
}

// URecvAfter is the delayed variant of [*Aico.URecv].
func (a *Aico) URecvAfter(delay time.Duration, buf []byte, cb Callback, priv any) bool {
	return a.submitAfter(delay, CodeURecv, TimeoutRecv, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.urecvOp(ctx, buf)
	}, cb, priv)
}

func (a *Aico) urecvOp(ctx context.Context, buf []byte) (int, netip.AddrPort, *Aico, error) {
	conn := a.Sock()
	if conn == nil {
		return 0, netip.AddrPort{}, nil, fmt.Errorf("aicp: urecv on unconnected handle")
	}
	applyReadDeadline(conn, ctx)
	pc, ok := conn.(net.PacketConn)
	if !ok {
		n, err := conn.Read(buf)
		return n, netip.AddrPort{}, nil, err
	}
	n, raddr, err := pc.ReadFrom(buf)
	var addr netip.AddrPort
	if raddr != nil {
		addr, _ = netip.ParseAddrPort(raddr.String())
	}
	return n, addr, nil, err
}

// USend posts a UDP send to addr.
func (a *Aico) USend(addr netip.AddrPort, data []byte, cb Callback, priv any) bool {
	return a.submit(CodeUSend, TimeoutSend, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.usendOp(ctx, addr, data)
	}, cb, priv)
}

// USendAfter is the delayed variant of [*Aico.USend].
func (a *Aico) USendAfter(delay time.Duration, addr netip.AddrPort, data []byte, cb Callback, priv any) bool {
	return a.submitAfter(delay, CodeUSend, TimeoutSend, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.usendOp(ctx, addr, data)
	}, cb, priv)
}

func (a *Aico) usendOp(ctx context.Context, addr netip.AddrPort, data []byte) (int, netip.AddrPort, *Aico, error) {
	if len(data) == 0 {
		return 0, addr, nil, nil
	}
	conn := a.Sock()
	if conn == nil {
		return 0, netip.AddrPort{}, nil, fmt.Errorf("aicp: usend on unconnected handle")
	}
	applyWriteDeadline(conn, ctx)
	pc, ok := conn.(net.PacketConn)
	if !ok {
		n, err := conn.Write(data)
		return n, addr, nil, err
	}
	udpAddr := net.UDPAddrFromAddrPort(addr)
	n, err := pc.WriteTo(data, udpAddr)
	return n, addr, nil, err
}

// RecvV posts a scatter receive into iovecs.
func (a *Aico) RecvV(iovecs [][]byte, cb Callback, priv any) bool {
	return a.submit(CodeRecvV, TimeoutRecv, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.recvvOp(ctx, iovecs)
	}, cb, priv)
}

func (a *Aico) recvvOp(ctx context.Context, iovecs [][]byte) (int, netip.AddrPort, *Aico, error) {
	conn := a.Sock()
	if conn == nil {
		return 0, netip.AddrPort{}, nil, fmt.Errorf("aicp: recvv on unconnected handle")
	}
	applyReadDeadline(conn, ctx)
	var total int
	for _, buf := range iovecs {
		if len(buf) == 0 {
			continue
		}
		n, err := conn.Read(buf)
		total += n
		if err != nil {
			return total, netip.AddrPort{}, nil, err
		}
		if n < len(buf) {
			break
		}
	}
	return total, netip.AddrPort{}, nil, nil
}

// SendV posts a gather send from iovecs.
func (a *Aico) SendV(iovecs [][]byte, cb Callback, priv any) bool {
	return a.submit(CodeSendV, TimeoutSend, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.sendvOp(ctx, iovecs)
	}, cb, priv)
}

func (a *Aico) sendvOp(ctx context.Context, iovecs [][]byte) (int, netip.AddrPort, *Aico, error) {
	conn := a.Sock()
	if conn == nil {
		return 0, netip.AddrPort{}, nil, fmt.Errorf("aicp: sendv on unconnected handle")
	}
	applyWriteDeadline(conn, ctx)
	var total int
	for _, buf := range iovecs {
		if len(buf) == 0 {
			continue
		}
		n, err := conn.Write(buf)
		total += n
		if err != nil {
			return total, netip.AddrPort{}, nil, err
		}
	}
	return total, netip.AddrPort{}, nil, nil
}

// URecvV and USendV are the UDP scatter/gather variants, matching spec §4.3.
func (a *Aico) URecvV(iovecs [][]byte, cb Callback, priv any) bool {
	return a.submit(CodeURecvV, TimeoutRecv, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		buf := joinIOV(iovecs)
		n, addr, _, err := a.urecvOp(ctx, buf)
		var off int
		for _, v := range iovecs {
			off += copy(v, buf[off:])
		}
		return n, addr, nil, err
	}, cb, priv)
}

func (a *Aico) USendV(addr netip.AddrPort, iovecs [][]byte, cb Callback, priv any) bool {
	return a.submit(CodeUSendV, TimeoutSend, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.usendOp(ctx, addr, joinIOV(iovecs))
	}, cb, priv)
}

func joinIOV(iovecs [][]byte) []byte {
	var total int
	for _, v := range iovecs {
		total += len(v)
	}
	out := make([]byte, total)
	var off int
	for _, v := range iovecs {
		off += copy(out[off:], v)
	}
	return out
}

// SendFile posts a copy from f (starting at seek, for up to size bytes;
// size==0 means "until EOF" -- the file-sentinel meaning spec §9 keeps
// for this verb specifically, unlike plain [*Aico.Send]) to the socket.
func (a *Aico) SendFile(f *os.File, seek int64, size int64, cb Callback, priv any) bool {
	return a.submit(CodeSendFile, TimeoutSend, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.sendfileOp(ctx, f, seek, size)
	}, cb, priv)
}

func (a *Aico) sendfileOp(ctx context.Context, f *os.File, seek int64, size int64) (int, netip.AddrPort, *Aico, error) {
	conn := a.Sock()
	if conn == nil {
		return 0, netip.AddrPort{}, nil, fmt.Errorf("aicp: sendfile on unconnected handle")
	}
	applyWriteDeadline(conn, ctx)
	if size == 0 {
		info, err := f.Stat()
		if err != nil {
			return 0, netip.AddrPort{}, nil, err
		}
		size = info.Size() - seek
	}
	section := io.NewSectionReader(f, seek, size)
	n, err := io.Copy(conn, section)
	return int(n), netip.AddrPort{}, nil, err
}

// Read posts an explicit-offset read on a file handle (spec §4.3: "always
// take an explicit seek; the file descriptor's current position is not
// relied upon").
func (a *Aico) Read(seek int64, buf []byte, cb Callback, priv any) bool {
	return a.submit(CodeRead, TimeoutRecv, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.readOp(seek, buf)
	}, cb, priv)
}

func (a *Aico) readOp(seek int64, buf []byte) (int, netip.AddrPort, *Aico, error) {
	f := a.File()
	if f == nil {
		return 0, netip.AddrPort{}, nil, fmt.Errorf("aicp: read on non-file handle")
	}
	n, err := f.ReadAt(buf, seek)
	return n, netip.AddrPort{}, nil, err
}

// Write posts an explicit-offset write on a file handle.
func (a *Aico) Write(seek int64, data []byte, cb Callback, priv any) bool {
	return a.submit(CodeWrite, TimeoutSend, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.writeOp(seek, data)
	}, cb, priv)
}

func (a *Aico) writeOp(seek int64, data []byte) (int, netip.AddrPort, *Aico, error) {
	f := a.File()
	if f == nil {
		return 0, netip.AddrPort{}, nil, fmt.Errorf("aicp: write on non-file handle")
	}
	n, err := f.WriteAt(data, seek)
	return n, netip.AddrPort{}, nil, err
}

// ReadV and WriteV are the iovec forms of Read/Write.
func (a *Aico) ReadV(seek int64, iovecs [][]byte, cb Callback, priv any) bool {
	return a.submit(CodeReadV, TimeoutRecv, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		buf := joinIOV(iovecs)
		n, _, _, err := a.readOp(seek, buf)
		var off int
		for _, v := range iovecs {
			off += copy(v, buf[off:])
		}
		return n, netip.AddrPort{}, nil, err
	}, cb, priv)
}

func (a *Aico) WriteV(seek int64, iovecs [][]byte, cb Callback, priv any) bool {
	return a.submit(CodeWriteV, TimeoutSend, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return a.writeOp(seek, joinIOV(iovecs))
	}, cb, priv)
}

// FSync posts an fsync on a file handle.
func (a *Aico) FSync(cb Callback, priv any) bool {
	return a.submit(CodeFSync, TimeoutSend, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		f := a.File()
		if f == nil {
			return 0, netip.AddrPort{}, nil, fmt.Errorf("aicp: fsync on non-file handle")
		}
		return 0, netip.AddrPort{}, nil, f.Sync()
	}, cb, priv)
}

// RunTask posts a one-shot callback with no I/O (spec §4.3).
func (a *Aico) RunTask(cb Callback, priv any) bool {
	return a.submit(CodeRunTask, TimeoutRecv, func(ctx context.Context) (int, netip.AddrPort, *Aico, error) {
		return 0, netip.AddrPort{}, nil, nil
	}, cb, priv)
}

// RunTaskAfter fires cb after delay without any I/O.
func (a *Aico) RunTaskAfter(delay time.Duration, cb Callback, priv any) bool {
	if cb == nil {
		return false
	}
	a.p.timer.Post(delay, false, func(_ any, killed bool) {
		state := StateOK
		if killed || a.isKilled() {
			state = StateKilled
		}
		a.p.deliver(&Result{Code: CodeRunTask, State: state, Aico: a}, cb, priv)
	}, nil)
	return true
}

// Close posts an async close: it reports StateOK once the handle has no
// in-flight requests and has been closed, or StateKilled if the handle
// was killed first. Prefer [*Aico.CloseWait] in new code; Close exists for
// callback-style callers migrating from the polled clos_try pattern.
func (a *Aico) Close(cb Callback, priv any) bool {
	if cb == nil {
		return false
	}
	go func() {
		err := a.CloseWait(context.Background())
		state := StateOK
		if err != nil || a.isKilled() {
			state = StateKilled
		}
		a.p.deliver(&Result{Code: CodeClose, State: state, Aico: a}, cb, priv)
	}()
	return true
}

func applyReadDeadline(conn net.Conn, ctx context.Context) {
	if dl, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(dl)
	} else {
		conn.SetReadDeadline(time.Time{})
	}
}

func applyWriteDeadline(conn net.Conn, ctx context.Context) {
	if dl, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(dl)
	} else {
		conn.SetWriteDeadline(time.Time{})
	}
}
