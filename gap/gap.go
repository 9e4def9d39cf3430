// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package gap implements the Generic Access Profile AD Structure (TLV)
// helpers used by the example gateways to build advertising/scan-response
// payloads, adapted from the original stack's bci_ad_put/bci_ad_get (now
// PutAD/GetAD). Kept outside the linklayer core since the BCI façade that
// used them is itself out of scope (spec.md §1).
package gap

import "errors"

// AD types from the Bluetooth SIG GAP assigned numbers, the subset the
// original bci.c's bci_ad_t enumerates.
type ADType uint8

const (
	ADFlags        ADType = 0x01
	ADNameShort    ADType = 0x08
	ADNameComplete ADType = 0x09
	ADTxPower      ADType = 0x0A
	ADAppearance   ADType = 0x19
	ADMftData      ADType = 0xFF
)

var (
	// ErrBufferFull is returned by PutAD when buf has no room for the AD
	// structure.
	ErrBufferFull = errors.New("gap: buffer full")
	// ErrNotFound is returned by GetAD when the requested AD type is absent.
	ErrNotFound = errors.New("gap: AD type not found")
)

// maxADLen is the advertising/scan-response payload budget (spec.md §3).
const maxADLen = 31

// PutAD appends one AD structure (1-octet group length, 1-octet type, data)
// to buf and returns the extended slice, or ErrBufferFull if doing so would
// exceed the 31-octet AD payload budget. Mirrors bci_ad_put's single-type
// behavior; the original's variadic multi-type call is expressed here as
// repeated calls, one per AD structure.
func PutAD(buf []byte, typ ADType, data []byte) ([]byte, error) {
	if len(buf)+2+len(data) > maxADLen {
		return buf, ErrBufferFull
	}
	buf = append(buf, byte(1+len(data)), byte(typ))
	buf = append(buf, data...)
	return buf, nil
}

// GetAD scans an AD structure stream for the first entry of type typ and
// returns its data. Fixes the original's shift-by-1 typo (it shifted a
// 16-bit appearance value's high byte by 1 bit instead of 8) by not
// special-casing fixed-width fields at all: GetAD always returns the raw
// data slice and leaves interpretation (e.g. a 2-octet little-endian
// appearance value) to the caller.
func GetAD(buf []byte, typ ADType) ([]byte, error) {
	i := 0
	for i < len(buf) {
		groupLen := int(buf[i])
		if groupLen == 0 || i+1+groupLen > len(buf) {
			break
		}
		entryType := ADType(buf[i+1])
		data := buf[i+2 : i+1+groupLen]
		if entryType == typ {
			return data, nil
		}
		i += 1 + groupLen
	}
	return nil, ErrNotFound
}
