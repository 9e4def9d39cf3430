// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package linklayer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tve/blell/addr"
	"github.com/tve/blell/hw/simhw"
	"github.com/tve/blell/pdu"
	"github.com/tve/blell/radio"
	"github.com/tve/blell/timer"
)

func newConnTestLL(t *testing.T, rxBuf []byte) (*LL, *connContext) {
	t.Helper()
	var a addr.Addr
	a.Type = addr.Random
	a.Bytes = [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	tsvc := timer.New(simhw.NewTimer(8), nil)
	rdrv := radio.New(simhw.NewRadio(), nil)
	ll := New(a, rdrv, tsvc, nil)
	require.NoError(t, ll.Init())
	t.Cleanup(ll.Close)

	conn := &connContext{master: true, rxBuf: rxBuf}
	ll.mu.Lock()
	ll.conn = conn
	ll.state = ConnMaster
	ll.connParams = ConnParams{IntervalMin: 16, IntervalMax: 16, Latency: 0, Timeout: 100}
	ll.mu.Unlock()
	return ll, conn
}

// Test_S6AckNack implements spec.md §8 scenario S6 / property 4: receiving
// SN=local.NESN, NESN=local.SN advances NESN, delivers the payload, and
// leaves the retransmit flag set because the peer hasn't acked our last PDU.
func Test_S6AckNack(t *testing.T) {
	ll, conn := newConnTestLL(t, make([]byte, 8))

	ll.mu.Lock()
	frame := ll.prepareNextDataPDU(conn) // initial empty PDU, SN=0 NESN=0
	ll.mu.Unlock()
	assert.Equal(t, uint8(pdu.LLIDDataFragEmpty), frame[0]&0x3)

	hdr := pdu.DataHeader{LLID: pdu.LLIDDataStartCmpl, SN: 0, NESN: 0, Length: 3}
	buf := make([]byte, 2+3)
	hdr.Marshal(buf)
	copy(buf[2:], []byte{0xAA, 0xBB, 0xCC})

	ll.connOnRecv(buf, true, false)

	ll.mu.Lock()
	defer ll.mu.Unlock()
	assert.Equal(t, uint8(1), conn.nesn, "SN==NESN must advance local NESN")
	assert.Equal(t, uint8(0), conn.sn, "NESN==SN must not advance local SN")
	assert.True(t, conn.needResend, "peer NESN==local SN means unacked, must resend")
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, conn.rxBuf[:3])
}

// Test_AckAdvancesSN covers the complementary half of property 4: when the
// peer's NESN differs from our SN, it has acked our last PDU and SN advances.
func Test_AckAdvancesSN(t *testing.T) {
	ll, conn := newConnTestLL(t, make([]byte, 8))
	ll.mu.Lock()
	ll.prepareNextDataPDU(conn)
	ll.mu.Unlock()

	hdr := pdu.DataHeader{LLID: pdu.LLIDDataFragEmpty, SN: 1, NESN: 1, Length: 0}
	buf := make([]byte, 2)
	hdr.Marshal(buf)

	ll.connOnRecv(buf, true, false)

	ll.mu.Lock()
	defer ll.mu.Unlock()
	assert.Equal(t, uint8(1), conn.sn, "peer NESN != local SN means acked, SN must advance")
	assert.False(t, conn.needResend)
}

// Test_BadCRCRetainsResendState implements the §4.3.7 "bad CRC" row: ignored
// entirely, leaving ack state (and thus retransmit behavior) untouched.
func Test_BadCRCRetainsResendState(t *testing.T) {
	ll, conn := newConnTestLL(t, make([]byte, 8))
	conn.needResend = true
	ll.connOnRecv([]byte{0, 0}, false, false)
	assert.True(t, conn.needResend)
	assert.Equal(t, uint32(0), conn.supervTimer)
}

// Test_SupervisionTimeout implements §8 scenario S5: with no valid replies,
// the event counter reaches the not-yet-established 6-event ceiling and the
// connection terminates with ReasonConnectionTimeout.
func Test_SupervisionTimeout(t *testing.T) {
	ll, conn := newConnTestLL(t, make([]byte, 8))
	var gotReason DisconnectReason
	disconnected := make(chan struct{})
	ll.SetHandler(func(ev Event) {
		if ev.Kind == EvDisconnectComplete {
			gotReason = ev.Reason
			close(disconnected)
		}
	})

	for i := 0; i < 6; i++ {
		ll.mu.Lock()
		expired := ll.checkSupervision(conn)
		ll.mu.Unlock()
		if expired {
			ll.terminateConnection(ReasonConnectionTimeout)
			break
		}
	}
	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("DISCONNECT_COMPLETE was never delivered through the dispatch goroutine")
	}
	assert.Equal(t, ReasonConnectionTimeout, gotReason)
	assert.Equal(t, Standby, ll.State())
}
