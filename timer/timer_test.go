// SPDX-License-Identifier: GPL-3.0-or-later

package timer_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aicp-go/aicp/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostAndSpakFiresInOrder(t *testing.T) {
	w := timer.New(timer.NewConfig(), timer.High)
	base := time.Now()

	var mu sync.Mutex
	var order []int
	fire := func(n int) timer.Func {
		return func(priv any, killed bool) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, n)
		}
	}

	// Three entries due at the same tick: insertion order must be preserved.
	w.PostAt(base, 0, false, fire(1), nil)
	w.PostAt(base, 0, false, fire(2), nil)
	w.PostAt(base, 0, false, fire(3), nil)

	fired := w.Spak(base)
	require.Equal(t, 3, fired)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestSpakOnlyFiresDueEntries(t *testing.T) {
	w := timer.New(timer.NewConfig(), timer.High)
	now := time.Now()

	var early, late atomic.Bool
	w.PostAt(now.Add(-time.Second), 0, false, func(priv any, killed bool) { early.Store(true) }, nil)
	w.PostAt(now.Add(time.Hour), 0, false, func(priv any, killed bool) { late.Store(true) }, nil)

	fired := w.Spak(now)
	assert.Equal(t, 1, fired)
	assert.True(t, early.Load())
	assert.False(t, late.Load())
}

func TestRepeatingEntryReenqueues(t *testing.T) {
	w := timer.New(timer.NewConfig(), timer.High)
	now := time.Now()

	var count atomic.Int32
	w.PostAt(now, 10*time.Millisecond, true, func(priv any, killed bool) {
		count.Add(1)
	}, nil)

	w.Spak(now)
	assert.Equal(t, int32(1), count.Load())

	d, ok := w.Delay()
	require.True(t, ok)
	assert.InDelta(t, 10*time.Millisecond, d, float64(2*time.Millisecond))

	w.Spak(now.Add(10 * time.Millisecond))
	assert.Equal(t, int32(2), count.Load())
}

func TestTaskKillFiresCallbackOnceWithKilled(t *testing.T) {
	w := timer.New(timer.NewConfig(), timer.High)
	now := time.Now()

	var calls atomic.Int32
	var sawKilled atomic.Bool
	task := w.PostAt(now.Add(time.Hour), 0, false, func(priv any, killed bool) {
		calls.Add(1)
		sawKilled.Store(killed)
	}, nil)

	task.Kill()
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, sawKilled.Load())

	// Killing again (or the wheel later spaking) must not refire it.
	task.Kill()
	assert.Equal(t, int32(1), calls.Load())

	fired := w.Spak(now.Add(2 * time.Hour))
	assert.Equal(t, 0, fired)
}

func TestTaskExitDoesNotInvokeCallback(t *testing.T) {
	w := timer.New(timer.NewConfig(), timer.High)
	now := time.Now()

	var calls atomic.Int32
	task := w.PostAt(now.Add(time.Hour), 0, false, func(priv any, killed bool) {
		calls.Add(1)
	}, nil)

	task.Exit()
	fired := w.Spak(now.Add(2 * time.Hour))
	assert.Equal(t, 0, fired)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDelayReportsSentinelWhenEmpty(t *testing.T) {
	w := timer.New(timer.NewConfig(), timer.High)
	_, ok := w.Delay()
	assert.False(t, ok)
}
