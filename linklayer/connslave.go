// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package linklayer

import (
	"github.com/tve/blell/addr"
	"github.com/tve/blell/hw"
	"github.com/tve/blell/pdu"
)

// acceptConnectReq is invoked from advOnRecv when a CONNECT_REQ addressed to
// us arrives while advertising a connectable PDU type. It builds the slave
// connection context and schedules the first receive window (spec.md
// §4.3.6): after 1250+winOffset·1250−150 µs it starts the slave event
// cadence. Each slave event's receive, the first included, is closed by the
// connIfsTimeout (500 µs) ifs timer; the winSize·1250 µs transmit window
// length is not used.
func (ll *LL) acceptConnectReq(req pdu.ConnectReqPayload, initiator addr.Addr) {
	ll.mu.Lock()
	if ll.state != Advertising {
		ll.mu.Unlock()
		return
	}
	conn := &connContext{
		master:         false,
		aa:             req.AA,
		crcInit:        req.CRCInit,
		hop:            req.Hop,
		lastUnmappedCh: 0,
		evtCounter:     0xFFFF,
	}
	ll.conn = conn
	ll.connReq = req
	ll.transition(ConnSlave)
	ll.radio.SetCallbacks(ll.connOnRecv, nil)
	ll.mu.Unlock()

	ll.tmr.Stop(ll.intervalID)
	ll.tmr.Stop(ll.singleShotID)
	ll.radio.Stop()

	delayUs := uint32(1250) + uint32(req.WinOffset)*1250
	if delayUs > 150 {
		delayUs -= 150
	}
	periodUs := uint32(req.Interval) * 1250
	_ = ll.tmr.Start(ll.singleShotID, delayUs, func() { ll.startSlaveEvents(periodUs) })

	ll.emit(Event{Kind: EvConnectionComplete, Index: 0, PeerAddr: initiator})
}

// startSlaveEvents arms the repeating connection-interval timer once the
// first receive window has opened, mirroring startMasterEvents so the timer
// service's own reprogram-with-DriftFix logic (timer.go) keeps the slave's
// event cadence going rather than this code re-Start-ing it every event.
func (ll *LL) startSlaveEvents(periodUs uint32) {
	if err := ll.tmr.Start(ll.intervalID, periodUs, ll.slaveEventTick); err != nil {
		ll.log("linklayer: slave event arm failed: %s", err)
	}
	ll.slaveEventTick()
}

// slaveEventTick runs the slave side of one connection event, symmetric to
// masterEventTick but with transmit and receive swapped: the slave listens
// first (arming the reply via SetOutBuffer/TX_NEXT) and the master's packet
// carries the turnaround that delivers the slave's reply (spec.md §4.3.6).
func (ll *LL) slaveEventTick() {
	ll.mu.Lock()
	if ll.state != ConnSlave || ll.conn == nil {
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
		ll.log("linklayer: slave event prepare: %s", err)
		return
	}
	ll.radio.SetOutBuffer(frame)
	if err := ll.radio.Recv(hw.TxNext); err != nil {
		ll.log("linklayer: slave event recv: %s", err)
		return
	}
	_ = ll.tmr.Start(ll.ifsID, connIfsTimeout, ll.connIfsExpired)
}
