// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package simhw provides host-only fake implementations of hw.Radio and
// hw.Timer so the Link Layer, radio and timer packages can be exercised
// without attached BLE silicon — the same role the teacher's non-hardware
// shim.go code paths play for devices.SPI/devices.GPIO.
package simhw

import (
	"sync"
	"time"

	"github.com/tve/blell/hw"
)

const counterMask = 1<<24 - 1

// Timer is a host-clock-driven stand-in for a free-running 24-bit, 1MHz
// hardware counter with a fixed number of compare channels.
type Timer struct {
	start time.Time

	mu      sync.Mutex
	cb      []func(now uint32)
	pending []*time.Timer
}

// NewTimer creates a simulated hardware timer with n compare channels.
func NewTimer(n int) *Timer {
	return &Timer{
		start:   time.Now(),
		cb:      make([]func(now uint32), n),
		pending: make([]*time.Timer, n),
	}
}

// Channels implements hw.Timer.
func (t *Timer) Channels() int { return len(t.cb) }

// Now implements hw.Timer.
func (t *Timer) Now() uint32 {
	return uint32(time.Since(t.start).Microseconds()) & counterMask
}

// OnCompare implements hw.Timer.
func (t *Timer) OnCompare(ch int, cb hw.TimerCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cb[ch] = cb
}

// Arm implements hw.Timer. deadline is a 24-bit counter value; the delay is
// the forward distance from the current counter value to deadline, modulo
// 2^24. A deadline that has already passed is therefore reached only after
// the counter wraps back around to it (up to ~16.7s later).
func (t *Timer) Arm(ch int, deadline uint32) {
	t.mu.Lock()
	if p := t.pending[ch]; p != nil {
		p.Stop()
	}
	t.mu.Unlock()

	now := t.Now()
	delta := (deadline - now) & counterMask
	dur := time.Duration(delta) * time.Microsecond

	timer := time.AfterFunc(dur, func() {
		t.mu.Lock()
		cb := t.cb[ch]
		t.mu.Unlock()
		if cb != nil {
			cb(t.Now())
		}
	})

	t.mu.Lock()
	t.pending[ch] = timer
	t.mu.Unlock()
}

// Disarm implements hw.Timer.
func (t *Timer) Disarm(ch int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p := t.pending[ch]; p != nil {
		p.Stop()
		t.pending[ch] = nil
	}
}
