// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package hw defines the two hardware-abstraction interfaces the Link Layer
// core is built on: a single-packet BLE PHY (Radio) and a free-running
// microsecond counter with several compare channels (Timer). This mirrors
// the devices.SPI/devices.GPIO shim the teacher uses to decouple its radio
// drivers from a specific board. hw/simhw implements both interfaces for
// tests and dev-machine runs; hw/periphhost holds SPI/GPIO plumbing and
// channel programming for real silicon and implements neither interface.
package hw

// RadioFlags is a bit set passed to Recv/Send.
type RadioFlags uint8

const (
	// TxNext causes an automatic turnaround to transmit immediately after
	// a receive ends (used by the slave connection event for its reply).
	TxNext RadioFlags = 1 << iota
	// RxNext does the opposite: automatic turnaround to receive after a
	// transmit ends (used after every advertising/connection-event PDU).
	RxNext
)

// RecvCallback is invoked from interrupt context at the end of a receive.
// active is true when a TX_NEXT/RX_NEXT shortcut is about to fire, meaning
// the driver is still engaged and no further Prepare/Recv/Send is needed.
type RecvCallback func(buf []byte, crcOK bool, active bool)

// SendCallback is invoked from interrupt context at the end of a transmit.
type SendCallback func(active bool)

// Radio is the single-packet BLE PHY transceiver contract of spec.md §4.2.
// Exactly one operation is outstanding at any time.
type Radio interface {
	// Prepare programs the PHY for channel (0-39 as mapped by the BLE
	// channel table) with the given access address and CRC init. It
	// rejects the request if an operation is currently in flight.
	Prepare(channel uint8, accessAddress, crcInit uint32) error
	// Recv arms the receiver.
	Recv(flags RadioFlags) error
	// Send starts transmitting buf.
	Send(buf []byte, flags RadioFlags) error
	// Stop aborts the current activity synchronously.
	Stop()
	// SetCallbacks installs the end-of-packet callbacks. The pair is
	// stable for the duration of one Link Layer state.
	SetCallbacks(onRecv RecvCallback, onSend SendCallback)
	// SetOutBuffer registers the buffer used for a TxNext turnaround.
	SetOutBuffer(buf []byte)
	// SetTxPower selects one of eight discrete power levels, index 0 being
	// the highest (+4dBm) and 7 the lowest (-30dBm).
	SetTxPower(level uint8) error
}

// TimerCallback is invoked from interrupt context when a compare channel
// matches the counter.
type TimerCallback func(now uint32)

// Timer is a free-running 24-bit, 1MHz hardware counter with at least four
// independent compare channels, the collaborator behind package timer's
// logical timer multiplexing (spec.md §4.1).
type Timer interface {
	// Channels returns the number of independent compare channels
	// available (>= 4).
	Channels() int
	// Now returns the current 24-bit counter value.
	Now() uint32
	// Arm programs channel ch to fire when the counter reaches deadline
	// (a 24-bit value, wrapping is the caller's responsibility to compute).
	Arm(ch int, deadline uint32)
	// Disarm cancels channel ch; if it was the last active channel the
	// underlying counter may be stopped and cleared.
	Disarm(ch int)
	// OnCompare installs the callback fired when channel ch matches.
	// Callbacks for multiple channels matching in the same interrupt are
	// delivered in ascending channel index order.
	OnCompare(ch int, cb TimerCallback)
}
