package main

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

const defaultTimeLimit = 120

// timerSync is the authoritative countdown for the current round. Truth
// is the absolute deadline (endAt, ms since epoch); remaining time is
// recomputed from it on demand, so every client derives an identical
// countdown no matter when it connected or how many ticks it missed.
// The ticker exists only to drive outbound broadcasts.
//
// All methods are called from the hub goroutine; nothing here locks.
type timerSync struct {
	clock clockwork.Clock

	start           int64 // ms epoch, 0 when no window is active
	endAt           int64
	timeLimit       int // seconds
	paused          bool
	pausedRemaining *int

	ticker clockwork.Ticker

	// pending pre-round countdown, distinct from the timer itself
	countdown          clockwork.Timer
	countdownEndAt     int64
	countdownTimeLimit int
	countdownSeconds   int
}

func newTimerSync(clock clockwork.Clock) *timerSync {
	return &timerSync{
		clock:     clock,
		timeLimit: defaultTimeLimit,
	}
}

func (t *timerSync) nowMs() int64 {
	return t.clock.Now().UnixMilli()
}

// begin opens a new window and starts the 1-second tick cadence. Any
// previous ticker is stopped first, so at most one tick stream exists.
func (t *timerSync) begin(startMs int64, limitSec int) {
	if limitSec < 1 {
		limitSec = defaultTimeLimit
	}
	if startMs == 0 {
		startMs = t.nowMs()
	}

	t.start = startMs
	t.timeLimit = limitSec
	t.endAt = startMs + int64(limitSec)*1000
	t.paused = false
	t.pausedRemaining = nil

	t.stopTicker()
	t.ticker = t.clock.NewTicker(time.Second)
}

// pause captures the remaining time and stops ticking. No-op when no
// window is active.
func (t *timerSync) pause() {
	if t.start == 0 {
		return
	}
	t.pausedRemaining = t.remaining()
	t.paused = true
	t.stopTicker()
}

// remaining reports whole seconds left, or nil when no window is active.
// While paused it returns the value captured at pause time. Never
// negative.
func (t *timerSync) remaining() *int {
	if t.paused && t.pausedRemaining != nil {
		r := max(0, *t.pausedRemaining)
		return &r
	}
	if t.endAt == 0 {
		return nil
	}
	r := int(math.Ceil(float64(t.endAt-t.nowMs()) / 1000))
	r = max(0, r)
	return &r
}

// clearWindow tears down the active window and its ticker. The next
// terminal signal can only come from a fresh begin().
func (t *timerSync) clearWindow() {
	t.stopTicker()
	t.start = 0
	t.endAt = 0
	t.paused = false
	t.pausedRemaining = nil
}

func (t *timerSync) stopTicker() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
}

func (t *timerSync) running() bool {
	return t.start != 0
}

// tickChan is nil when no ticker is active, which parks the hub's
// select case.
func (t *timerSync) tickChan() <-chan time.Time {
	if t.ticker == nil {
		return nil
	}
	return t.ticker.Chan()
}

// startPtr is the wire representation of the window start: the ms epoch
// when running, null otherwise.
func (t *timerSync) startPtr() *int64 {
	if t.start == 0 {
		return nil
	}
	s := t.start
	return &s
}

// ---- pre-round countdown ----

func (t *timerSync) beginCountdown(seconds, limitSec int) int64 {
	t.cancelCountdown()
	t.countdownEndAt = t.nowMs() + int64(seconds)*1000
	t.countdownTimeLimit = limitSec
	t.countdownSeconds = seconds
	t.countdown = t.clock.NewTimer(time.Duration(seconds) * time.Second)
	return t.countdownEndAt
}

// cancelCountdown clears any pending countdown and reports whether one
// was actually pending, so the caller knows whether to notify clients.
func (t *timerSync) cancelCountdown() bool {
	pending := t.countdown != nil
	if t.countdown != nil {
		t.countdown.Stop()
		t.countdown = nil
	}
	t.countdownEndAt = 0
	t.countdownTimeLimit = 0
	t.countdownSeconds = 0
	return pending
}

func (t *timerSync) countdownChan() <-chan time.Time {
	if t.countdown == nil {
		return nil
	}
	return t.countdown.Chan()
}

// countdownRemainingSeconds is used during replay so a reconnecting
// client picks up the countdown mid-flight.
func (t *timerSync) countdownRemainingSeconds() int {
	if t.countdownEndAt == 0 {
		return 0
	}
	r := int(math.Ceil(float64(t.countdownEndAt-t.nowMs()) / 1000))
	return max(1, r)
}

func (t *timerSync) countdownPending() bool {
	return t.countdownEndAt > t.nowMs()
}
