// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package chanmap implements the Link Layer's data channel map and the
// data-channel-selection algorithm (Link Layer specification section 4.5.8,
// Core 4.1; spec.md §3 "Data channel map", §4.3.3).
package chanmap

import "errors"

// NumDataChannels is the number of BLE data channels (0..36).
const NumDataChannels = 37

// ErrTooFewChannels is returned by SetMask when fewer than two channels
// would be enabled, violating the "at least two channels enabled" invariant.
var ErrTooFewChannels = errors.New("chanmap: fewer than two channels enabled")

// Map is a data channel map: a 37-bit mask of usable data channels plus a
// cached dense remap table used by Next when a channel is unmapped.
type Map struct {
	mask  uint64   // bit i set => data channel i is usable
	used  []uint8  // dense, ascending list of enabled channel indices
	count uint8    // len(used), cached
}

// SetMask rebuilds the map from a 37-bit mask (bits 37..63 ignored). It
// fails with ErrTooFewChannels if fewer than two channels would be enabled,
// leaving the map unchanged.
func (m *Map) SetMask(mask uint64) error {
	mask &= (uint64(1) << NumDataChannels) - 1
	used := make([]uint8, 0, NumDataChannels)
	for i := uint8(0); i < NumDataChannels; i++ {
		if mask&(1<<i) != 0 {
			used = append(used, i)
		}
	}
	if len(used) < 2 {
		return ErrTooFewChannels
	}
	m.mask = mask
	m.used = used
	m.count = uint8(len(used))
	return nil
}

// Mask returns the current 37-bit mask.
func (m *Map) Mask() uint64 { return m.mask }

// Count returns the number of enabled channels.
func (m *Map) Count() uint8 { return m.count }

// Enabled reports whether data channel ch is usable.
func (m *Map) Enabled(ch uint8) bool {
	return ch < NumDataChannels && m.mask&(1<<ch) != 0
}

// Next implements the data channel selection algorithm of §4.3.3: given the
// last unmapped channel and the connection's hop increment, it returns the
// new unmapped channel and the channel to actually use for the next
// connection event (remapped through the dense table if the unmapped
// channel itself isn't enabled).
func (m *Map) Next(lastUnmapped, hop uint8) (used, unmapped uint8) {
	unmapped = (lastUnmapped + hop) % NumDataChannels
	if m.Enabled(unmapped) {
		return unmapped, unmapped
	}
	return m.used[uint32(unmapped)%uint32(m.count)], unmapped
}

// AllChannels returns a mask with all 37 data channels enabled, the default
// used until the host configures a narrower map.
func AllChannels() uint64 {
	return (uint64(1) << NumDataChannels) - 1
}
