// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package linklayer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tve/blell/pdu"
)

func advPDU(advType uint8, txAdd bool, advA [6]byte, data []byte) []byte {
	hdr := pdu.AdvHeader{Type: advType, TxAdd: txAdd, Length: uint8(6 + len(data))}
	buf := make([]byte, 2+6+len(data))
	hdr.Marshal(buf)
	copy(buf[2:8], advA[:])
	copy(buf[8:], data)
	return buf
}

// Test_S2PassiveObserver implements spec.md §8 scenario S2: every
// valid-CRC advertising PDU observed while SCANNING produces exactly one
// AdvReport, delivered through the deferred-dispatch handler.
func Test_S2PassiveObserver(t *testing.T) {
	ll := newTestLL(t)
	require.NoError(t, ll.ScanStart(500_000, 200_000))

	reports := make(chan AdvReport, 8)
	ll.SetHandler(func(ev Event) {
		if ev.Kind == EvAdvReport {
			reports <- ev.Report
		}
	})

	peers := [][6]byte{
		{1, 1, 1, 1, 1, 1},
		{2, 2, 2, 2, 2, 2},
		{3, 3, 3, 3, 3, 3},
	}
	for _, p := range peers {
		ll.scanOnRecv(advPDU(pdu.AdvInd, true, p, []byte("hi")), true, false)
	}

	for i, p := range peers {
		select {
		case r := <-reports:
			assert.Equal(t, p, r.PeerAddr.Bytes, "report %d peer address", i)
			assert.Equal(t, []byte("hi"), r.Data)
		case <-time.After(2 * time.Second):
			t.Fatalf("report %d was never delivered", i)
		}
	}
}

// Test_ScanOnRecvIgnoresBadCRC covers the drop case: a PDU with a bad CRC
// must never reach the handler.
func Test_ScanOnRecvIgnoresBadCRC(t *testing.T) {
	ll := newTestLL(t)
	require.NoError(t, ll.ScanStart(500_000, 200_000))

	got := false
	ll.SetHandler(func(ev Event) { got = true })
	ll.scanOnRecv(advPDU(pdu.AdvInd, true, [6]byte{9, 9, 9, 9, 9, 9}, nil), false, false)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, got, "bad CRC PDU must not produce an AdvReport")
}

func Test_ScanStopStartRoundTrip(t *testing.T) {
	ll := newTestLL(t)
	require.NoError(t, ll.ScanStart(500_000, 200_000))
	assert.Equal(t, Scanning, ll.State())
	assert.Equal(t, NotReady, ll.ScanStart(500_000, 200_000))
	require.NoError(t, ll.ScanStop())
	assert.Equal(t, Standby, ll.State())
	assert.Equal(t, NotReady, ll.ScanStop())
}

func Test_ScanStartValidatesWindow(t *testing.T) {
	ll := newTestLL(t)
	assert.Equal(t, Invalid, ll.ScanStart(100_000, 200_000), "window must not exceed interval")
	assert.Equal(t, Invalid, ll.ScanStart(100_000, 0), "window must be nonzero")
}
