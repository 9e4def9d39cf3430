// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package timer

import (
	"testing"
	"time"

	"github.com/tve/blell/hw/simhw"
)

// Test_Idempotence implements §8 property 5: Start on an already-active
// timer fails with ErrAlreadyActive; the timer, stopped before its original
// deadline, must then not fire.
func Test_Idempotence(t *testing.T) {
	hwt := simhw.NewTimer(4)
	s := New(hwt, nil)
	id, err := s.Create(SingleShot)
	if err != nil {
		t.Fatalf("Create: %s", err)
	}
	fired := make(chan struct{}, 1)
	if err := s.Start(id, 50*1000, func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("Start: %s", err)
	}
	if err := s.Start(id, 10, func() {}); err != ErrAlreadyActive {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	s.Stop(id)
	select {
	case <-fired:
		t.Fatalf("timer fired after being stopped before its original deadline")
	case <-time.After(20 * time.Millisecond):
	}
}

func Test_OutOfMemory(t *testing.T) {
	hwt := simhw.NewTimer(2)
	s := New(hwt, nil)
	if _, err := s.Create(SingleShot); err != nil {
		t.Fatalf("Create: %s", err)
	}
	if _, err := s.Create(SingleShot); err != nil {
		t.Fatalf("Create: %s", err)
	}
	if _, err := s.Create(SingleShot); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}
}

func Test_SingleShotFires(t *testing.T) {
	hwt := simhw.NewTimer(4)
	s := New(hwt, nil)
	id, _ := s.Create(SingleShot)
	done := make(chan struct{})
	if err := s.Start(id, 2000, func() { close(done) }); err != nil {
		t.Fatalf("Start: %s", err)
	}
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timer never fired")
	}
}

func Test_RepeatedFiresMultipleTimes(t *testing.T) {
	hwt := simhw.NewTimer(4)
	s := New(hwt, nil)
	id, _ := s.Create(Repeated)
	count := make(chan struct{}, 10)
	if err := s.Start(id, 2000, func() {
		select {
		case count <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %s", err)
	}
	for i := 0; i < 3; i++ {
		select {
		case <-count:
		case <-time.After(200 * time.Millisecond):
			t.Fatalf("repeated timer fired only %d times", i)
		}
	}
	s.Stop(id)
}

func Test_StartInvalidDuration(t *testing.T) {
	hwt := simhw.NewTimer(4)
	s := New(hwt, nil)
	id, _ := s.Create(SingleShot)
	if err := s.Start(id, 1<<24, func() {}); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
