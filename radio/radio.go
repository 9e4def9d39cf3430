// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package radio implements the Link Layer's single-packet BLE PHY driver
// (spec.md §4.2), in the shape of the teacher's sx1231.Radio: a thin layer
// over a hardware shim (here hw.Radio) that validates and programs the
// channel, leaves framing (whitening, access address, CRC) to the
// hardware/simulation layer, and exposes the same
// New/SetLogger/mutex-guarded-state idiom.
package radio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tve/blell/hw"
)

// CRCPolynomial is the 24-bit BLE CRC polynomial (x24+x10+x9+x6+x4+x3+x+1).
const CRCPolynomial = 0x65B

// Errors returned by Driver methods.
var (
	ErrBadChannel = errors.New("radio: invalid channel")
	ErrTooLong    = errors.New("radio: payload exceeds 37 octets")
	ErrBusy       = errors.New("radio: busy")
)

// LogPrintf is a function used by the driver to print logging info.
type LogPrintf func(format string, v ...interface{})

// Driver is the single-packet BLE PHY transceiver driver.
type Driver struct {
	hw hw.Radio

	mu      sync.Mutex
	channel uint8
	aa      uint32
	crcInit uint32
	power   uint8
	log     LogPrintf
}

// New wraps hwRadio (hw.Radio) with the Link Layer's channel/framing
// discipline.
func New(hwRadio hw.Radio, log LogPrintf) *Driver {
	if log == nil {
		log = func(string, ...interface{}) {}
	}
	return &Driver{hw: hwRadio, log: log}
}

// Frequency returns the BLE channel->frequency mapping of spec.md §4.2:
// advertising channels 37/38/39 map to 2402/2426/2480MHz, data channels
// 0..10 and 11..36 map linearly with a 2MHz step.
func Frequency(channel uint8) (mhz uint32, err error) {
	switch {
	case channel == 37:
		return 2402, nil
	case channel == 38:
		return 2426, nil
	case channel == 39:
		return 2480, nil
	case channel <= 10:
		return 2404 + 2*uint32(channel), nil
	case channel <= 36:
		return 2428 + 2*uint32(channel-11), nil
	default:
		return 0, ErrBadChannel
	}
}

// Prepare validates channel and programs the PHY for it, along with the
// access address and CRC init. The whitening seed is the channel index
// itself, per §4.2.
func (d *Driver) Prepare(channel uint8, accessAddress, crcInit uint32) error {
	if _, err := Frequency(channel); err != nil {
		return err
	}
	d.mu.Lock()
	d.channel, d.aa, d.crcInit = channel, accessAddress, crcInit
	d.mu.Unlock()
	if err := d.hw.Prepare(channel, accessAddress, crcInit); err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	return nil
}

// Recv arms the receiver.
func (d *Driver) Recv(flags hw.RadioFlags) error {
	if err := d.hw.Recv(flags); err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	return nil
}

// Send transmits buf, which must be at most 37 octets of payload (the
// caller is responsible for having already written the 2-octet header).
func (d *Driver) Send(buf []byte, flags hw.RadioFlags) error {
	if len(buf) > 2+37 {
		return ErrTooLong
	}
	if err := d.hw.Send(buf, flags); err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	return nil
}

// Stop aborts the current activity synchronously.
func (d *Driver) Stop() { d.hw.Stop() }

// SetCallbacks installs the end-of-packet callbacks.
func (d *Driver) SetCallbacks(onRecv hw.RecvCallback, onSend hw.SendCallback) {
	d.hw.SetCallbacks(onRecv, onSend)
}

// SetOutBuffer registers the buffer used for a TX_NEXT/RX_NEXT turnaround.
func (d *Driver) SetOutBuffer(buf []byte) { d.hw.SetOutBuffer(buf) }

// SetTxPower selects one of the eight discrete power levels (0 = +4dBm
// down to 7 = -30dBm, per spec.md §4.2).
func (d *Driver) SetTxPower(level uint8) error {
	if level > 7 {
		return fmt.Errorf("radio: invalid power level %d", level)
	}
	d.mu.Lock()
	d.power = level
	d.mu.Unlock()
	return d.hw.SetTxPower(level)
}

// Channel returns the channel last programmed via Prepare.
func (d *Driver) Channel() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channel
}

// SetLogger sets a logging function, nil may be used to disable logging.
func (d *Driver) SetLogger(l LogPrintf) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l != nil {
		d.log = l
	} else {
		d.log = func(string, ...interface{}) {}
	}
}
