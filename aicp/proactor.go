//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: spec §4.4 "Proactor (aicp)"; structured-logging and
// config-over-globals conventions from github.com/bassosimone/nop.
//

// Package aicp implements the proactor-style async I/O runtime described
// in spec §3/§4.2-§4.4: typed completion handles ([Aico]) on which callers
// post typed requests, dispatched by a worker pool that invokes a user
// [Callback] with the operation's [Result].
//
// Backend note: rather than hand-rolling IOCP/epoll/kqueue bindings (which
// would bypass Go's runtime netpoller and is not idiomatic Go), each posted
// operation runs its blocking syscall on its own goroutine -- bounded by
// "at most one in-flight op per (handle, direction)" per spec §4.4 -- and
// reports completion through a channel drained by the worker pool started
// by [*Proactor.Run]. Go's runtime netpoller already multiplexes socket
// readiness via epoll/kqueue/IOCP under the hood, so this gets the same
// completion semantics the spec describes without reimplementing the OS
// backend by hand.
package aicp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aicp-go/aicp/internal/obs"
	"github.com/aicp-go/aicp/timer"
	"github.com/bassosimone/runtimex"
)

type proactorState int32

const (
	stateRunning proactorState = iota
	stateKilling
	stateKilled
)

// Proactor is the runtime described in spec §4.4. The zero value is not
// usable; construct with [New].
type Proactor struct {
	cfg      *Config
	logger   obs.SLogger
	errClass obs.ErrClassifier
	timer    *timer.Wheel

	mu       sync.Mutex
	cond     *sync.Cond
	handles  map[*Aico]struct{}
	state    atomic.Int32
	live     atomic.Int64

	completions chan pendingCompletion
	closeOnce   sync.Once
}

type pendingCompletion struct {
	res  *Result
	cb   Callback
	priv any
}

// New returns a new [*Proactor]. cfg must not be nil; pass [NewConfig]'s
// result for defaults.
func New(cfg *Config) *Proactor {
	runtimex.Assert(cfg != nil)
	logger := obs.WithSpanID(cfg.Logger, obs.NewSpanID())
	p := &Proactor{
		cfg:         cfg,
		logger:      logger,
		errClass:    cfg.ErrClassifier,
		timer:       timer.New(&timer.Config{TimeNow: cfg.TimeNow, Logger: logger}, timer.High),
		handles:     make(map[*Aico]struct{}),
		completions: make(chan pendingCompletion, 64),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Maxn returns the configured maximum handle count, or 0 for unbounded.
func (p *Proactor) Maxn() int { return p.cfg.MaxHandles }

// Time returns the current time read from [Config.TimeNow] on every call;
// the value is not cached.
func (p *Proactor) Time() time.Time { return p.cfg.TimeNow() }

func (p *Proactor) register(a *Aico) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if proactorState(p.state.Load()) != stateRunning {
		return fmt.Errorf("aicp: proactor is not running")
	}
	if p.cfg.MaxHandles > 0 && len(p.handles) >= p.cfg.MaxHandles {
		return fmt.Errorf("aicp: maxn %d reached", p.cfg.MaxHandles)
	}
	p.handles[a] = struct{}{}
	p.live.Add(1)
	return nil
}

func (p *Proactor) unregister(a *Aico) {
	p.mu.Lock()
	delete(p.handles, a)
	n := p.live.Add(-1)
	p.mu.Unlock()
	if n == 0 {
		p.cond.Broadcast()
	}
}

// deliver enqueues a completion for a worker goroutine running [Run] to
// invoke. If the proactor has been killed, it is still delivered (a killed
// aice still gets exactly one callback, per spec §7/§8).
func (p *Proactor) deliver(res *Result, cb Callback, priv any) {
	if cb == nil {
		return
	}
	p.completions <- pendingCompletion{res: res, cb: cb, priv: priv}
}

// Deliver posts an arbitrary function for execution on a worker goroutine
// running [Run], so higher-level protocol state machines built atop aicp
// (sslbridge, httpclient) are drained through the same worker pool as
// native aicp verbs rather than inventing a second dispatch path.
func (p *Proactor) Deliver(fn func()) {
	p.completions <- pendingCompletion{cb: func(*Result, any) bool { fn(); return true }}
}

// Run drains completions and invokes their callbacks until ctx is done or
// the proactor is killed. Any number of goroutines may call Run
// concurrently to form the shared worker pool described in spec §4.4/§5.
func (p *Proactor) Run(ctx context.Context) error {
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if d, ok := p.timer.Delay(); ok && d == 0 {
				go p.timer.Spak(p.Time())
			}
		case pc, ok := <-p.completions:
			if !ok {
				return nil
			}
			if pc.res != nil {
				p.logger.Debug("aicpDispatch", "code", pc.res.Code.String(), "state", pc.res.State.String())
			}
			pc.cb(pc.res, pc.priv)
			if proactorState(p.state.Load()) != stateRunning && len(p.completions) == 0 {
				return nil
			}
		}
	}
}

// RunUntil is like [Run] but also stops when stop returns true, checked
// between completions.
func (p *Proactor) RunUntil(ctx context.Context, stop func() bool) error {
	for {
		if stop() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pc, ok := <-p.completions:
			if !ok {
				return nil
			}
			pc.cb(pc.res, pc.priv)
		default:
			if d, ok := p.timer.Delay(); ok && d == 0 {
				go p.timer.Spak(p.Time())
			}
			time.Sleep(time.Millisecond)
		}
	}
}

// Kill stops the loop: it flips running->killing so that [Run] returns
// once a completion it dispatches leaves the queue empty. It does not
// itself cancel in-flight operations; use [*Proactor.KillAll] for that.
func (p *Proactor) Kill() {
	p.state.CompareAndSwap(int32(stateRunning), int32(stateKilling))
}

// KillAll refuses further registrations and posts, and kills every
// registered [*Aico]: their in-flight and queued requests complete with
// StateKilled (spec §4.4).
func (p *Proactor) KillAll() {
	p.Kill()
	p.mu.Lock()
	handles := make([]*Aico, 0, len(p.handles))
	for a := range p.handles {
		handles = append(handles, a)
	}
	p.mu.Unlock()
	for _, a := range handles {
		a.Kill()
	}
	p.state.Store(int32(stateKilled))
}

// WaitAll blocks until the live-handle count reaches zero or timeout
// elapses. Returns +1 if already/now quiescent, 0 if the timeout elapsed
// first, matching spec §4.4's three-way return (the source's -1 "error"
// case does not arise in this implementation, since WaitAll cannot fail
// except by timing out).
func (p *Proactor) WaitAll(timeout time.Duration) int {
	if p.live.Load() == 0 {
		return 1
	}
	if timeout <= 0 {
		return 0
	}

	timedOut := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		close(timedOut)
		p.cond.Broadcast()
	})
	defer timer.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.live.Load() > 0 {
		select {
		case <-timedOut:
			return 0
		default:
		}
		p.cond.Wait()
	}
	return 1
}

// Exit waits for quiescence (live handle count zero) and then tears down
// the proactor, closing its completion channel so any worker blocked in
// [Run] returns. This replaces the original's polling clos_try loop with
// a deterministic wait, per spec §9's redesign note on kill/exit races.
func (p *Proactor) Exit(ctx context.Context) error {
	p.Kill()
	done := make(chan struct{})
	go func() {
		p.mu.Lock()
		for p.live.Load() > 0 {
			p.cond.Wait()
		}
		p.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.closeOnce.Do(func() {
		close(p.completions)
	})
	p.state.Store(int32(stateKilled))
	return nil
}
