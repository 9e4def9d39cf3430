// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package linklayer

import (
	"math/rand"

	"github.com/tve/blell/addr"
	"github.com/tve/blell/hw"
	"github.com/tve/blell/pdu"
)

// ConnCreate builds a CONNECT_REQ from the current connection parameters and
// data channel map, then scans {37,38,39} (as in ScanStart) until an
// accepted peer's ADV_IND/ADV_DIRECT_IND is seen, at which point the
// CONNECT_REQ is patched and sent (spec.md §4.3.4). rxBuf is aliased by the
// connection for the lifetime of the connection; connection events are
// delivered as Events to the handler installed with SetHandler.
func (ll *LL) ConnCreate(intervalUs, windowUs uint32, peers []addr.Addr, rxBuf []byte) error {
	if windowUs == 0 || windowUs > intervalUs {
		return Invalid
	}
	ll.mu.Lock()
	if ll.state != Standby {
		ll.mu.Unlock()
		return NotReady
	}
	p := ll.connParams
	if p.IntervalMin == 0 {
		ll.mu.Unlock()
		return Invalid
	}
	ll.connReq = ll.buildConnectReq(p)
	ll.peers = append([]addr.Addr(nil), peers...)
	ll.scanIntervalUs = intervalUs
	ll.scanWindowUs = windowUs
	ll.conn = &connContext{master: true, rxBuf: rxBuf}
	ll.transition(Initiating)
	ll.radio.SetCallbacks(ll.initOnRecv, nil)
	ll.mu.Unlock()

	if err := ll.tmr.Start(ll.intervalID, intervalUs, ll.scanTick); err != nil {
		ll.log("linklayer: initiate interval arm failed: %s", err)
	}
	ll.scanTick()
	return nil
}

// buildConnectReq assembles a fresh CONNECT_REQ payload per spec.md §4.3.4.
// Must be called with ll.mu held.
func (ll *LL) buildConnectReq(p ConnParams) pdu.ConnectReqPayload {
	var aa uint32
	for {
		aa = rand.Uint32()
		if aa != addr.AdvAccessAddress {
			break
		}
	}
	crcInit := rand.Uint32() & 0xFFFFFF
	winSize := p.IntervalMin - 1
	if winSize > 8 {
		winSize = 8
	}
	req := pdu.ConnectReqPayload{
		InitA:     ll.addr.Bytes,
		AA:        aa,
		CRCInit:   crcInit,
		WinSize:   uint8(winSize),
		WinOffset: p.IntervalMin - 3,
		Interval:  p.IntervalMin,
		Latency:   p.Latency,
		Timeout:   p.Timeout,
		Hop:       uint8(rand.Intn(12)) + 5,
		SCA:       0,
	}
	mask := ll.chMap.Mask()
	for i := 0; i < 5; i++ {
		req.ChM[i] = byte(mask >> (8 * uint(i)))
	}
	return req
}

// ConnCancel aborts an in-progress ConnCreate, returning INITIATING ->
// STANDBY.
func (ll *LL) ConnCancel() error {
	ll.mu.Lock()
	if ll.state != Initiating {
		ll.mu.Unlock()
		return NotReady
	}
	ll.conn = nil
	ll.transition(Standby)
	ll.mu.Unlock()

	ll.tmr.Stop(ll.intervalID)
	ll.tmr.Stop(ll.singleShotID)
	ll.radio.Stop()
	return nil
}

// initOnRecv watches for an accepted peer's ADV_IND/ADV_DIRECT_IND while
// initiating and, on a match, patches and transmits the CONNECT_REQ.
func (ll *LL) initOnRecv(buf []byte, crcOK bool, active bool) {
	if !crcOK || len(buf) < 8 {
		return
	}
	var h pdu.AdvHeader
	if err := h.Unmarshal(buf); err != nil {
		return
	}
	if h.Type != pdu.AdvInd && h.Type != pdu.AdvDirectInd {
		return
	}
	var peer addr.Addr
	copy(peer.Bytes[:], buf[2:8])
	if h.TxAdd {
		peer.Type = addr.Random
	}

	ll.mu.Lock()
	if ll.state != Initiating || !addr.InList(peer, ll.peers) {
		ll.mu.Unlock()
		return
	}
	if h.Type == pdu.AdvDirectInd {
		if len(buf) < 14 {
			ll.mu.Unlock()
			return
		}
		var target addr.Addr
		copy(target.Bytes[:], buf[8:14])
		if h.RxAdd {
			target.Type = addr.Random
		}
		if !target.Equal(ll.addr) {
			ll.mu.Unlock()
			return
		}
	}
	ll.connReq.AdvA = peer.Bytes
	req := ll.connReq
	conn := ll.conn
	ll.mu.Unlock()

	buf := make([]byte, 2+pdu.ConnectReqPayloadLen)
	hdr := pdu.AdvHeader{
		Type:   pdu.ConnectReq,
		TxAdd:  ll.addr.Type == addr.Random,
		RxAdd:  peer.Type == addr.Random,
		Length: pdu.ConnectReqPayloadLen,
	}
	hdr.Marshal(buf)
	req.Marshal(buf[2:])

	if err := ll.radio.Send(buf, hw.RadioFlags(0)); err != nil {
		ll.log("linklayer: connect_req send: %s", err)
		return
	}

	ll.tmr.Stop(ll.intervalID)
	ll.tmr.Stop(ll.singleShotID)

	ll.mu.Lock()
	conn.aa = req.AA
	conn.crcInit = req.CRCInit
	conn.hop = req.Hop
	conn.lastUnmappedCh = 0
	conn.evtCounter = 0xFFFF
	ll.transition(ConnMaster)
	ll.mu.Unlock()

	ll.emit(Event{Kind: EvConnectionComplete, Index: 0, PeerAddr: peer})
	ll.startMasterEvents(req.Interval, req.WinOffset)
}
