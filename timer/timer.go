//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: github.com/bassosimone/nop (config.go, slogger.go conventions);
// heap shape grounded on original_source/core/pkg/tbox.pkg/inc/tbox/platform/timer.h
//

// Package timer implements the deadline-ordered task queue described in
// spec §4.1: a min-heap of entries keyed by absolute trigger time, drained
// by Spak, that backs the aicp's `_after_` posting verbs. Per-socket
// timeouts do not use it.
package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/aicp-go/aicp/internal/obs"
	"github.com/bassosimone/runtimex"
)

// Precision selects the clock the [*Wheel] uses to decide when entries
// are due: [High] reads the absolute wall clock on every call, while
// [Coarse] reads a monotonic tick that a caller refreshes out of band
// (e.g., once per event-loop iteration) for cheaper, less precise timing.
type Precision int

const (
	// High reads [time.Now] (or [Config.TimeNow]) on every Spak/Delay call.
	High Precision = iota
	// Coarse uses whatever time the caller last pushed via [*Wheel.Tick].
	Coarse
)

// Config carries the common collaborators for a [*Wheel], following this
// module's "explicit config over globals" convention.
type Config struct {
	// TimeNow returns the current time. Defaults to [time.Now].
	TimeNow func() time.Time

	// Logger receives spak/post/cancel span events. Defaults to a no-op logger.
	Logger obs.SLogger
}

// NewConfig returns a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		TimeNow: time.Now,
		Logger:  obs.DefaultSLogger(),
	}
}

// Func is the callback invoked when a timer entry fires.
//
// killed is true when the entry is firing because [*Task.Kill] was called
// rather than because its due time arrived.
type Func func(priv any, killed bool)

// Wheel is a min-heap of entries keyed by absolute trigger time.
//
// The zero value is not usable; construct with [New]. A [*Wheel] is safe
// for concurrent use by multiple goroutines.
type Wheel struct {
	mu       sync.Mutex
	entries  entryHeap
	nextSeq  uint64
	prec     Precision
	coarse   time.Time
	timeNow  func() time.Time
	logger   obs.SLogger
}

// New returns a new [*Wheel] using the given [Precision].
//
// The cfg argument contains the common configuration; pass [NewConfig]'s
// result to get sensible defaults.
func New(cfg *Config, precision Precision) *Wheel {
	runtimex.Assert(cfg != nil)
	return &Wheel{
		entries: entryHeap{},
		prec:    precision,
		timeNow: cfg.TimeNow,
		logger:  cfg.Logger,
	}
}

// Task is a handle to a posted entry, returned by [*Wheel.PostAt] so the
// caller can cancel it (the "handle-returning" flavor from spec §4.1).
// Entries posted via [*Wheel.Post] have no [Task] and a one-shot entry is
// freed automatically after firing once.
type Task struct {
	w      *Wheel
	entry  *entry
}

// entry is one heap element.
type entry struct {
	when    time.Time
	period  time.Duration
	repeat  bool
	fn      Func
	priv    any
	killed  bool
	seq     uint64 // insertion order, used to break when-ties
	index   int    // heap index, maintained by container/heap
	removed bool
}

// Tick refreshes the [Coarse] clock. Callers using [Coarse] precision must
// call this once per event-loop iteration; it is a no-op under [High].
func (w *Wheel) Tick(now time.Time) {
	if w.prec != Coarse {
		return
	}
	w.mu.Lock()
	w.coarse = now
	w.mu.Unlock()
}

func (w *Wheel) now() time.Time {
	if w.prec == Coarse {
		w.mu.Lock()
		t := w.coarse
		w.mu.Unlock()
		if t.IsZero() {
			return w.timeNow()
		}
		return t
	}
	return w.timeNow()
}

// Post schedules fn to fire after delay, optionally repeating every delay
// thereafter. The entry is posted-and-forgotten: Post returns no handle,
// so the entry cannot be cancelled, and a one-shot entry (repeat=false)
// is freed automatically after firing once. Use [*Wheel.PostAt] when you
// need a [*Task] handle.
func (w *Wheel) Post(delay time.Duration, repeat bool, fn Func, priv any) {
	w.PostAt(w.now().Add(delay), delay, repeat, fn, priv)
}

// PostAt schedules fn to fire at the absolute time when, repeating every
// period thereafter if repeat is true. It returns a [*Task] handle that
// the caller may [*Task.Kill] or [*Task.Exit].
func (w *Wheel) PostAt(when time.Time, period time.Duration, repeat bool, fn Func, priv any) *Task {
	runtimex.Assert(fn != nil)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextSeq++
	e := &entry{
		when:   when,
		period: period,
		repeat: repeat,
		fn:     fn,
		priv:   priv,
		seq:    w.nextSeq,
	}
	heap.Push(&w.entries, e)
	w.logger.Debug("timerPost", "when", when, "repeat", repeat)
	return &Task{w: w, entry: e}
}

// Delay returns the duration until the next-due entry, and true. If the
// wheel is empty it returns (0, false) -- the sentinel the caller (usually
// the aicp's worker loop) should treat as "block indefinitely, or until
// woken by a new post".
func (w *Wheel) Delay() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.entries) == 0 {
		return 0, false
	}
	top := w.entries[0]
	d := top.when.Sub(w.now())
	if d < 0 {
		d = 0
	}
	return d, true
}

// Spak fires all entries whose due time is <= now, in due-time order with
// ties broken by insertion order, and returns how many fired. Repeating
// entries are re-enqueued with when += period immediately after firing,
// before Spak returns.
func (w *Wheel) Spak(now time.Time) int {
	var fired int
	for {
		w.mu.Lock()
		if len(w.entries) == 0 {
			w.mu.Unlock()
			break
		}
		top := w.entries[0]
		if top.when.After(now) {
			w.mu.Unlock()
			break
		}
		heap.Pop(&w.entries)
		removed, killed, fn, priv := top.removed, top.killed, top.fn, top.priv
		if top.repeat && !top.removed && !top.killed {
			top.when = top.when.Add(top.period)
			top.seq = w.nextSeqLocked()
			heap.Push(&w.entries, top)
		} else {
			top.removed = true
		}
		w.mu.Unlock()

		if removed {
			continue
		}
		fired++
		w.logger.Debug("timerSpak", "killed", killed)
		fn(priv, killed)
	}
	return fired
}

func (w *Wheel) nextSeqLocked() uint64 {
	w.nextSeq++
	return w.nextSeq
}

// Kill marks the task's entry killed and invokes its callback exactly once
// with killed=true, then removes it from the heap. If the entry already
// fired (one-shot, non-repeating) this is a safe no-op.
func (t *Task) Kill() {
	t.w.mu.Lock()
	if t.entry.removed {
		t.w.mu.Unlock()
		return
	}
	t.entry.removed = true
	t.entry.killed = true
	fn, priv := t.entry.fn, t.entry.priv
	t.w.entries.remove(t.entry)
	t.w.mu.Unlock()
	fn(priv, true)
}

// Exit removes the task's entry without invoking its callback. Safe to
// call more than once or after the entry already fired.
func (t *Task) Exit() {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	if t.entry.removed {
		return
	}
	t.entry.removed = true
	t.w.entries.remove(t.entry)
}

// entryHeap implements container/heap.Interface. There is no suitable
// third-party min-heap in the example corpus for this narrow, private
// use case, so this uses the standard library's container/heap -- glue
// code, not a reimplementation of the generic container library that
// spec §1 explicitly keeps out of scope.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func (h *entryHeap) remove(e *entry) {
	if e.index < 0 || e.index >= len(*h) {
		return
	}
	heap.Remove(h, e.index)
}
