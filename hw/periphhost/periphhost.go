// Copyright 2016 by Thorsten von Eicken, see LICENSE file

//go:build periph

// Package periphhost holds real-hardware radio plumbing for a
// microcontroller target, built over periph.io/x/conn/v3 the way the
// teacher's sx1276/spimux packages talk to periph.io/x/periph directly
// (the dense register writes there are the model for ProgramChannel
// below). It is gated behind the "periph" build tag and, like the
// teacher's own periph backend, has no test coverage since no BLE PHY
// hardware is present in CI — only host-based hw/simhw is exercised by
// tests. It provides no hw.Timer backend.
package periphhost

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// Radio is a stub for an SPI/GPIO-attached BLE PHY
// front-end (e.g. a discrete 2.4GHz transceiver wired the way the
// teacher's sx1231 talks to an RFM69 module). The register map for a
// specific chip is intentionally not baked in here: SPEC_FULL.md scopes
// the core to the Link Layer/timer/radio-driver contract, not a specific
// piece of silicon, so this backend only wires up the bus plumbing that a
// concrete chip driver would need. It does not implement hw.Radio: only
// ProgramChannel is provided.
type Radio struct {
	conn    spi.Conn
	irq     gpio.PinIn
	channel uint8
}

// NewRadio opens the SPI connection and interrupt pin for a BLE PHY
// front-end.
func NewRadio(port spi.Port, irq gpio.PinIn) (*Radio, error) {
	conn, err := port.Connect(8*1000*1000, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("periphhost: spi connect: %w", err)
	}
	if err := irq.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("periphhost: irq pin: %w", err)
	}
	return &Radio{conn: conn, irq: irq}, nil
}

// ProgramChannel writes the channel's frequency word to the front-end,
// following the channel->frequency table of spec.md §4.2.
func (r *Radio) ProgramChannel(channel uint8) error {
	var mhz uint32
	switch {
	case channel == 37:
		mhz = 2402
	case channel == 38:
		mhz = 2426
	case channel == 39:
		mhz = 2480
	case channel <= 10:
		mhz = 2404 + 2*uint32(channel)
	case channel <= 36:
		mhz = 2428 + 2*uint32(channel-11)
	default:
		return fmt.Errorf("periphhost: invalid channel %d", channel)
	}
	r.channel = channel
	w := []byte{byte(mhz), byte(mhz >> 8)}
	return r.conn.Tx(w, make([]byte, len(w)))
}
