// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

import (
	"testing"

	"github.com/tve/blell/hw"
	"github.com/tve/blell/hw/simhw"
)

func Test_FrequencyTable(t *testing.T) {
	cases := map[string]struct {
		channel uint8
		mhz     uint32
		wantErr bool
	}{
		"adv37":  {37, 2402, false},
		"adv38":  {38, 2426, false},
		"adv39":  {39, 2480, false},
		"data0":  {0, 2404, false},
		"data10": {10, 2424, false},
		"data11": {11, 2428, false},
		"data36": {36, 2478, false},
		"oob":    {40, 0, true},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Frequency(c.channel)
			if (err != nil) != c.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, c.wantErr)
			}
			if !c.wantErr && got != c.mhz {
				t.Fatalf("Frequency(%d) = %d, want %d", c.channel, got, c.mhz)
			}
		})
	}
}

func Test_PrepareRejectsBadChannel(t *testing.T) {
	d := New(simhw.NewRadio(), nil)
	if err := d.Prepare(40, 0x8E89BED6, 0x555555); err == nil {
		t.Fatalf("expected error for out-of-range channel")
	}
}

func Test_PrepareProgramsChannel(t *testing.T) {
	d := New(simhw.NewRadio(), nil)
	if err := d.Prepare(37, 0x8E89BED6, 0x555555); err != nil {
		t.Fatalf("Prepare: %s", err)
	}
	if d.Channel() != 37 {
		t.Fatalf("Channel() = %d, want 37", d.Channel())
	}
}

func Test_SendRejectsOversizeFrame(t *testing.T) {
	d := New(simhw.NewRadio(), nil)
	_ = d.Prepare(37, 0x8E89BED6, 0x555555)
	buf := make([]byte, 2+38)
	if err := d.Send(buf, 0); err != ErrTooLong {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

func Test_SetTxPowerValidatesRange(t *testing.T) {
	d := New(simhw.NewRadio(), nil)
	if err := d.SetTxPower(8); err == nil {
		t.Fatalf("expected error for power level 8")
	}
	if err := d.SetTxPower(7); err != nil {
		t.Fatalf("SetTxPower(7): %s", err)
	}
}

func Test_RecvDeliversViaCallback(t *testing.T) {
	sim := simhw.NewRadio()
	d := New(sim, nil)
	_ = d.Prepare(37, 0x8E89BED6, 0x555555)
	done := make(chan []byte, 1)
	d.SetCallbacks(func(buf []byte, crcOK bool, active bool) {
		done <- buf
	}, nil)
	if err := d.Recv(hw.RadioFlags(0)); err != nil {
		t.Fatalf("Recv: %s", err)
	}
	sim.InjectRecv([]byte{0x01, 0x02, 0x03}, true)
	select {
	case buf := <-done:
		if len(buf) != 3 {
			t.Fatalf("got %d bytes, want 3", len(buf))
		}
	default:
		t.Fatalf("callback not invoked")
	}
}
