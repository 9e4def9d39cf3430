// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package linklayer

import (
	"github.com/tve/blell/hw"
	"github.com/tve/blell/pdu"
)

// startMasterEvents arms the repeating connection-interval timer so the
// first tick lands intervalUnits*1.25ms after CONNECT_REQ transmission,
// keeping the slave's receive window centred per spec.md §4.3.4.
func (ll *LL) startMasterEvents(intervalUnits, _winOffsetUnits uint16) {
	periodUs := uint32(intervalUnits) * 1250
	if err := ll.tmr.Start(ll.intervalID, periodUs, ll.masterEventTick); err != nil {
		ll.log("linklayer: master event arm failed: %s", err)
	}
}

// masterEventTick runs the master side of one connection event (spec.md
// §4.3.5): increment and check supervision, select the next data channel,
// prepare the next PDU, and transmit with RX_NEXT armed.
func (ll *LL) masterEventTick() {
	ll.mu.Lock()
	if ll.state != ConnMaster || ll.conn == nil {
		ll.mu.Unlock()
		return
	}
	conn := ll.conn

	if expired := ll.checkSupervision(conn); expired {
		ll.mu.Unlock()
		ll.terminateConnection(ReasonConnectionTimeout)
		return
	}

	usedCh, unmapped := ll.chMap.Next(conn.lastUnmappedCh, conn.hop)
	conn.lastUnmappedCh = unmapped

	frame := ll.prepareNextDataPDU(conn)
	aa, crcInit := conn.aa, conn.crcInit
	ll.mu.Unlock()

	if err := ll.radio.Prepare(usedCh, aa, crcInit); err != nil {
		ll.log("linklayer: conn event prepare: %s", err)
		return
	}
	ll.radio.SetCallbacks(ll.connOnRecv, nil)
	if err := ll.radio.Send(frame, hw.RxNext); err != nil {
		ll.log("linklayer: conn event send: %s", err)
		return
	}
	_ = ll.tmr.Start(ll.ifsID, connIfsTimeout, ll.connIfsExpired)
}

// checkSupervision implements spec.md §4.3.5 step 1, shared by both roles.
// Must be called with ll.mu held.
func (ll *LL) checkSupervision(conn *connContext) (expired bool) {
	conn.supervTimer++
	if !conn.established {
		return conn.supervTimer >= 6
	}
	eventsPerTimeout := (uint32(ll.connParams.Timeout) * 10000) / (uint32(ll.connParams.IntervalMin) * 1250)
	if eventsPerTimeout == 0 {
		eventsPerTimeout = 1
	}
	return conn.supervTimer >= eventsPerTimeout
}

// prepareNextDataPDU implements spec.md §4.3.5 step 3, shared by both the
// master (connmaster.go) and slave (connslave.go) event ticks. Must be
// called with ll.mu held; it mutates conn and returns the framed data PDU
// to transmit.
func (ll *LL) prepareNextDataPDU(conn *connContext) []byte {
	var llid uint8
	var payload []byte
	sawSent := false

	switch {
	case conn.termLocal:
		llid = pdu.LLIDControl
		payload = []byte{llTerminateInd, byte(conn.termReason)}
	case conn.needResend:
		return conn.lastTx
	case len(conn.pendingReply) > 0:
		llid = pdu.LLIDControl
		payload = conn.pendingReply
		conn.pendingReply = nil
	case len(conn.txBuf) > 0:
		llid = pdu.LLIDDataStartCmpl
		payload = conn.txBuf
		conn.txBuf = nil
		sawSent = true
	default:
		llid = pdu.LLIDDataFragEmpty
		payload = nil
	}

	hdr := pdu.DataHeader{LLID: llid, NESN: conn.nesn, SN: conn.sn, MD: false, Length: uint8(len(payload))}
	buf := make([]byte, 2+len(payload))
	hdr.Marshal(buf)
	copy(buf[2:], payload)
	conn.lastTx = buf
	conn.needResend = false

	if sawSent {
		ll.emit(Event{Kind: EvPacketsSent, Index: 0})
	}
	return buf
}

// connOnRecv processes the peer's reply, shared by master and slave roles
// (spec.md §4.3.5, "On receive (master)"; §4.3.6 notes the slave side is
// symmetric).
func (ll *LL) connOnRecv(buf []byte, crcOK bool, active bool) {
	ll.tmr.Stop(ll.ifsID)

	ll.mu.Lock()
	if (ll.state != ConnMaster && ll.state != ConnSlave) || ll.conn == nil {
		ll.mu.Unlock()
		return
	}
	conn := ll.conn
	if !crcOK {
		// Treated as a NACK: leave needResend as-is so the next event
		// retransmits the unacknowledged PDU unchanged.
		ll.mu.Unlock()
		return
	}
	conn.supervTimer = 0
	conn.established = true

	var h pdu.DataHeader
	if err := h.Unmarshal(buf); err != nil {
		ll.mu.Unlock()
		return
	}
	payload := buf[2:]
	if int(h.Length) <= len(payload) {
		payload = payload[:h.Length]
	}

	if h.SN == conn.nesn {
		conn.nesn ^= 1
		if h.LLID != pdu.LLIDControl && h.Length > 0 {
			n := copy(conn.rxBuf, payload)
			ll.emit(Event{Kind: EvPacketsReceived, Index: 0, Length: n})
		} else if h.LLID == pdu.LLIDControl && h.Length > 0 {
			ll.handleControlPDU(conn, payload)
		}
	}
	acked := h.NESN != conn.sn
	lastWasTerm := len(conn.lastTx) > 2 && conn.lastTx[0]&0x3 == pdu.LLIDControl && conn.lastTx[2] == llTerminateInd
	if !acked {
		conn.needResend = true
	} else {
		conn.sn ^= 1
		conn.needResend = false
	}

	termPeer := conn.termPeer
	termLocalAcked := conn.termLocal && acked && lastWasTerm
	ll.mu.Unlock()

	if termPeer {
		ll.terminateConnection(ReasonRemoteUserTerminated)
		return
	}
	if termLocalAcked {
		ll.terminateConnection(ReasonLocalHostTerminated)
	}
}
