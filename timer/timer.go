// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package timer multiplexes one free-running 24-bit, 1MHz hw.Timer into
// several independent microsecond-resolution logical timers (Design Note
// "Timer drift compensation"; spec.md §4.1). The compare-match callback
// chain follows sx1231.Radio.worker()'s shape: callbacks run directly off
// the hardware notification, with the reprogram/disarm step always
// happening before the logical callback fires.
package timer

import (
	"errors"
	"sync"

	"github.com/tve/blell/hw"
)

// Type is whether a logical timer fires once or repeats.
type Type int

const (
	// SingleShot fires once and then deactivates.
	SingleShot Type = iota
	// Repeated reprograms itself for another period after every fire,
	// compensating for interrupt-entry latency with DriftFix.
	Repeated
)

// counterMask is the wrap mask of the underlying 24-bit hardware counter.
const counterMask = 1<<24 - 1

var (
	// ErrOutOfMemory is returned by Create when no logical timer slot is free.
	ErrOutOfMemory = errors.New("timer: out of memory")
	// ErrInvalid is returned by Start when the id is unknown or the
	// requested duration doesn't fit in the 24-bit counter.
	ErrInvalid = errors.New("timer: invalid")
	// ErrAlreadyActive is returned by Start on an already-armed timer.
	ErrAlreadyActive = errors.New("timer: already active")
)

// LogPrintf is a function used by the service to print logging info.
type LogPrintf func(format string, v ...interface{})

type slot struct {
	reserved bool
	active   bool
	typ      Type
	periodUs uint32
	deadline uint32
	cb       func()
}

// Service owns a hw.Timer and multiplexes it into logical timers.
type Service struct {
	hwt hw.Timer
	// DriftFix is the number of ticks subtracted from a repeated timer's
	// next deadline to compensate for measured interrupt-entry latency.
	// It must be re-measured for the target CPU; the host simulation uses 0.
	DriftFix uint32

	mu    sync.Mutex
	slots []slot
	log   LogPrintf
}

// New creates a timer Service multiplexing hwt, which must expose at least
// four compare channels.
func New(hwt hw.Timer, log LogPrintf) *Service {
	if log == nil {
		log = func(string, ...interface{}) {}
	}
	s := &Service{
		hwt:   hwt,
		slots: make([]slot, hwt.Channels()),
		log:   log,
	}
	for ch := 0; ch < hwt.Channels(); ch++ {
		ch := ch
		hwt.OnCompare(ch, func(now uint32) { s.fire(ch, now) })
	}
	return s
}

// Create reserves a logical timer slot of the given type, without arming it.
func (s *Service) Create(typ Type) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.slots {
		if !s.slots[id].reserved {
			s.slots[id] = slot{reserved: true, typ: typ}
			return id, nil
		}
	}
	return -1, ErrOutOfMemory
}

// Start arms timer id to fire cb after microseconds, repeating if the timer
// was created as Repeated. It fails with ErrAlreadyActive if the timer is
// already armed and ErrInvalid if the id is unknown or the duration
// overflows the 24-bit counter.
func (s *Service) Start(id int, microseconds uint32, cb func()) error {
	s.mu.Lock()
	if id < 0 || id >= len(s.slots) || !s.slots[id].reserved {
		s.mu.Unlock()
		return ErrInvalid
	}
	if s.slots[id].active {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	if microseconds >= 1<<24 {
		s.mu.Unlock()
		return ErrInvalid
	}
	deadline := (s.hwt.Now() + microseconds) & counterMask
	s.slots[id].active = true
	s.slots[id].periodUs = microseconds
	s.slots[id].deadline = deadline
	s.slots[id].cb = cb
	s.mu.Unlock()

	s.hwt.Arm(id, deadline)
	return nil
}

// Stop disarms timer id. It is a no-op if the timer wasn't active.
func (s *Service) Stop(id int) {
	s.mu.Lock()
	if id < 0 || id >= len(s.slots) || !s.slots[id].active {
		s.mu.Unlock()
		return
	}
	s.slots[id].active = false
	s.mu.Unlock()
	s.hwt.Disarm(id)
}

// Remaining returns the microseconds left until timer id fires, handling
// 24-bit counter wrap. It returns 0 for an inactive timer.
func (s *Service) Remaining(id int) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.slots) || !s.slots[id].active {
		return 0
	}
	return (s.slots[id].deadline - s.hwt.Now()) & counterMask
}

// fire is invoked (by hw.Timer, from what stands in for interrupt context)
// when compare channel ch matches. Per §4.1's invariant, for a Repeated
// timer the compare register is reprogrammed before the callback runs; for
// a SingleShot timer the slot is deactivated before the callback runs. This
// ordering guarantees a callback never observes its own timer as still
// armed with the stale deadline.
func (s *Service) fire(ch int, now uint32) {
	s.mu.Lock()
	sl := s.slots[ch]
	if !sl.reserved || !sl.active {
		s.mu.Unlock()
		return
	}
	if sl.typ == Repeated {
		next := (now + sl.periodUs - s.DriftFix) & counterMask
		s.slots[ch].deadline = next
		s.mu.Unlock()
		s.hwt.Arm(ch, next)
	} else {
		s.slots[ch].active = false
		s.mu.Unlock()
	}
	if sl.cb != nil {
		sl.cb()
	}
}
