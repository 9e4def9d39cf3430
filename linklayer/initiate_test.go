// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package linklayer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tve/blell/addr"
	"github.com/tve/blell/hw/simhw"
	"github.com/tve/blell/pdu"
	"github.com/tve/blell/radio"
	"github.com/tve/blell/timer"
)

// Test_S4ConnectReqPatching implements spec.md §8 scenario S4: on seeing an
// accepted peer's ADV_IND, the pending CONNECT_REQ is patched with the
// peer's address and transmitted with a fresh access address, a hop in
// [5,16], and window/interval fields derived from connParams.
func Test_S4ConnectReqPatching(t *testing.T) {
	var self addr.Addr
	self.Type = addr.Random
	self.Bytes = [6]byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}

	var peer addr.Addr
	peer.Type = addr.Public
	peer.Bytes = [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}

	spy := newSpyRadio()
	rdrv := radio.New(spy, nil)
	tsvc := timer.New(simhw.NewTimer(8), nil)
	ll := New(self, rdrv, tsvc, nil)
	require.NoError(t, ll.Init())
	defer ll.Close()

	require.NoError(t, ll.SetConnParams(ConnParams{IntervalMin: 24, IntervalMax: 24, Latency: 0, Timeout: 200}))
	require.NoError(t, ll.ConnCreate(500_000, 200_000, []addr.Addr{peer}, make([]byte, 27)))

	advInd := advPDU(pdu.AdvInd, peer.Type == addr.Random, peer.Bytes, nil)
	ll.initOnRecv(advInd, true, false)

	sends := spy.snapshot()
	require.Len(t, sends, 1)

	var h pdu.AdvHeader
	require.NoError(t, h.Unmarshal(sends[0].buf))
	assert.Equal(t, uint8(pdu.ConnectReq), h.Type)

	var req pdu.ConnectReqPayload
	require.NoError(t, req.Unmarshal(sends[0].buf[2:]))
	assert.Equal(t, peer.Bytes, req.AdvA, "AdvA must be patched to the accepted peer")
	assert.Equal(t, self.Bytes, req.InitA)
	assert.NotEqual(t, addr.AdvAccessAddress, req.AA, "access address must never reuse the advertising AA")
	assert.GreaterOrEqual(t, req.Hop, uint8(5))
	assert.LessOrEqual(t, req.Hop, uint8(16))
	assert.Equal(t, uint16(24), req.Interval)
	assert.Equal(t, uint16(24-3), req.WinOffset)
	assert.Equal(t, uint8(8), req.WinSize, "winSize must be clamped to min(8, IntervalMin-1)")

	assert.Equal(t, ConnMaster, ll.State())
}

// Test_InitOnRecvIgnoresUnlistedPeer covers the filter half of §4.3.4: an
// ADV_IND from a peer not in the accept list must never trigger a send.
func Test_InitOnRecvIgnoresUnlistedPeer(t *testing.T) {
	var self addr.Addr
	self.Type = addr.Random
	self.Bytes = [6]byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}
	var peer addr.Addr
	peer.Bytes = [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	stranger := [6]byte{1, 2, 3, 4, 5, 6}

	spy := newSpyRadio()
	rdrv := radio.New(spy, nil)
	tsvc := timer.New(simhw.NewTimer(8), nil)
	ll := New(self, rdrv, tsvc, nil)
	require.NoError(t, ll.Init())
	defer ll.Close()

	require.NoError(t, ll.SetConnParams(ConnParams{IntervalMin: 24, IntervalMax: 24, Timeout: 200}))
	require.NoError(t, ll.ConnCreate(500_000, 200_000, []addr.Addr{peer}, make([]byte, 27)))

	ll.initOnRecv(advPDU(pdu.AdvInd, false, stranger, nil), true, false)
	assert.Empty(t, spy.snapshot())
	assert.Equal(t, Initiating, ll.State())
}
