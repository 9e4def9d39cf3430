// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package addr implements the BLE device address used throughout the Link
// Layer: six octets plus a public/random type bit (Link Layer specification
// section 1.2, Core 4.1).
package addr

import "fmt"

// Type distinguishes a public from a random device address.
type Type uint8

const (
	// Public is a registered IEEE address.
	Public Type = 0
	// Random is a locally generated address (static or resolvable/non-resolvable).
	Random Type = 1
)

// Addr is a 48-bit BLE device address with its public/random type tag.
type Addr struct {
	Bytes [6]byte // little-endian on air, i.e. Bytes[0] is sent first
	Type  Type
}

// AdvAccessAddress is the fixed access address used on the three advertising
// channels.
const AdvAccessAddress uint32 = 0x8E89BED6

// AdvCRCInit is the fixed CRC initialization value used on the three
// advertising channels.
const AdvCRCInit uint32 = 0x555555

// Equal reports whether two addresses have the same bytes and type.
func (a Addr) Equal(b Addr) bool {
	return a.Type == b.Type && a.Bytes == b.Bytes
}

// String renders the address big-endian colon-hex, e.g. "EE:FF:00:11:22:33",
// the conventional log representation (the wire representation is the
// reverse, little-endian-first, see §8 scenario S2).
func (a Addr) String() string {
	b := a.Bytes
	s := fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[5], b[4], b[3], b[2], b[1], b[0])
	if a.Type == Random {
		return s + " (random)"
	}
	return s
}

// New builds an Addr from a big-endian-ordered byte slice (as typically
// typed/printed by a human) and a type tag.
func New(bigEndian [6]byte, t Type) Addr {
	var a Addr
	for i := 0; i < 6; i++ {
		a.Bytes[i] = bigEndian[5-i]
	}
	a.Type = t
	return a
}

// InList reports whether a is present in a caller-supplied accept list,
// matching both bytes and type as required when filtering CONNECT_REQ
// candidates (§4.3.4).
func InList(a Addr, list []Addr) bool {
	for _, c := range list {
		if a.Equal(c) {
			return true
		}
	}
	return false
}
