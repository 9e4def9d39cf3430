// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package linklayer

import (
	"github.com/tve/blell/addr"
	"github.com/tve/blell/hw"
	"github.com/tve/blell/pdu"
)

// advPduInterval is the fixed spacing between the advertising channels of
// one advertising event (spec.md §4.3.1).
const advPduInterval = 10_000 // microseconds

// advIfsTimeout is the §4.3.1 "safety net" disarming the radio when no
// SCAN_REQ/CONNECT_REQ reply arrives.
const advIfsTimeout = 500 // microseconds

const (
	chan37 uint8 = 1 << iota
	chan38
	chan39
)

var advChannels = [3]uint8{37, 38, 39}

func firstAdvCh(mask uint8) (ch uint8, ok bool) {
	for i, bit := range [3]uint8{chan37, chan38, chan39} {
		if mask&bit != 0 {
			return advChannels[i], true
		}
	}
	return 0, false
}

// incAdvCh returns the next enabled channel after ch, and false at the end
// of the event.
func incAdvCh(mask, ch uint8) (next uint8, ok bool) {
	seen := false
	for i, bit := range [3]uint8{chan37, chan38, chan39} {
		c := advChannels[i]
		if seen && mask&bit != 0 {
			return c, true
		}
		if c == ch {
			seen = true
		}
	}
	return 0, false
}

func isConnectable(advType uint8) bool {
	return advType == pdu.AdvInd || advType == pdu.AdvDirectInd
}

func isScannable(advType uint8) bool {
	return advType == pdu.AdvInd || advType == pdu.AdvScanInd
}

// AdvertiseStart transitions STANDBY -> ADVERTISING and begins transmitting
// advertising events of advType every intervalUs on the channels enabled in
// chanMask (spec.md §4.3.1, §6).
func (ll *LL) AdvertiseStart(advType uint8, intervalUs uint32, chanMask uint8) error {
	if chanMask == 0 || chanMask > 0x7 {
		return Invalid
	}
	if intervalUs%625 != 0 {
		return Invalid
	}
	min := uint32(100_000)
	if isConnectable(advType) {
		min = 20_000
	}
	if intervalUs < min || intervalUs > 10_240_000 {
		return Invalid
	}

	ll.mu.Lock()
	if ll.state != Standby {
		ll.mu.Unlock()
		return NotReady
	}
	ll.advType = advType
	ll.advIntervalUs = intervalUs
	ll.advChanMask = chanMask
	ll.transition(Advertising)
	ll.radio.SetCallbacks(ll.advOnRecv, ll.advOnSend)
	ll.mu.Unlock()

	if err := ll.tmr.Start(ll.intervalID, intervalUs, ll.advEventStart); err != nil {
		ll.log("linklayer: advertise interval arm failed: %s", err)
	}
	ll.advEventStart()
	return nil
}

// AdvertiseStop transitions ADVERTISING -> STANDBY, disarming all timers and
// stopping the radio (spec.md §5 "Cancellation").
func (ll *LL) AdvertiseStop() error {
	ll.mu.Lock()
	if ll.state != Advertising {
		ll.mu.Unlock()
		return NotReady
	}
	ll.transition(Standby)
	ll.mu.Unlock()

	ll.tmr.Stop(ll.intervalID)
	ll.tmr.Stop(ll.singleShotID)
	ll.tmr.Stop(ll.ifsID)
	ll.radio.Stop()
	return nil
}

// advEventStart begins one advertising event on the first enabled channel.
func (ll *LL) advEventStart() {
	ll.mu.Lock()
	if ll.state != Advertising {
		ll.mu.Unlock()
		return
	}
	ch, ok := firstAdvCh(ll.advChanMask)
	if !ok {
		ll.mu.Unlock()
		return
	}
	ll.advCh = ch
	ll.mu.Unlock()
	ll.advSendOn(ch)
}

// advStep is scheduled advPduInterval after the event's first transmit, and
// fires again at 2*advPduInterval, sending on each subsequent enabled
// channel in turn.
func (ll *LL) advStep() {
	ll.mu.Lock()
	if ll.state != Advertising {
		ll.mu.Unlock()
		return
	}
	next, ok := incAdvCh(ll.advChanMask, ll.advCh)
	if !ok {
		ll.mu.Unlock()
		return
	}
	ll.advCh = next
	ll.mu.Unlock()
	ll.advSendOn(next)
}

func (ll *LL) advSendOn(ch uint8) {
	ll.mu.Lock()
	advType := ll.advType
	listens := isScannable(advType) || isConnectable(advType)
	frame := ll.buildAdvFrame(advType)
	ll.mu.Unlock()

	if err := ll.radio.Prepare(ch, addr.AdvAccessAddress, addr.AdvCRCInit); err != nil {
		ll.log("linklayer: advertise prepare: %s", err)
		return
	}
	flags := hw.RadioFlags(0)
	if listens {
		flags = hw.RxNext
	}
	if err := ll.radio.Send(frame, flags); err != nil {
		ll.log("linklayer: advertise send: %s", err)
	}
	if listens {
		// §4.3.1's safety net: if no SCAN_REQ/CONNECT_REQ arrives, disarm the
		// radio so the next channel's Prepare doesn't fail with busy.
		if err := ll.tmr.Start(ll.ifsID, advIfsTimeout, ll.advIfsExpired); err != nil {
			ll.tmr.Stop(ll.ifsID)
			_ = ll.tmr.Start(ll.ifsID, advIfsTimeout, ll.advIfsExpired)
		}
	}
	if err := ll.tmr.Start(ll.singleShotID, advPduInterval, ll.advStep); err != nil {
		// already active: a previous step's timer is still pending, which
		// is expected for the last channel of the event.
		ll.tmr.Stop(ll.singleShotID)
		_ = ll.tmr.Start(ll.singleShotID, advPduInterval, ll.advStep)
	}
}

// advIfsExpired implements the "no RX in ifs window" row of §4.3.1 for
// advertising events, mirroring connIfsExpired's role for connection events.
func (ll *LL) advIfsExpired() {
	ll.radio.Stop()
}

// buildAdvFrame assembles the on-air advertising PDU: header || AdvA ||
// AdvData. Must be called with ll.mu held.
func (ll *LL) buildAdvFrame(advType uint8) []byte {
	payload := make([]byte, 0, 6+len(ll.advData))
	payload = append(payload, ll.addr.Bytes[:]...)
	payload = append(payload, ll.advData...)
	hdr := pdu.AdvHeader{Type: advType, TxAdd: ll.addr.Type == addr.Random, Length: uint8(len(payload))}
	buf := make([]byte, 2+len(payload))
	hdr.Marshal(buf)
	copy(buf[2:], payload)
	return buf
}

// advOnRecv handles the two ADVERTISING-state receives: a CONNECT_REQ while
// advertising a connectable PDU type (handed to handleConnectReq), and a
// SCAN_REQ addressed to us while advertising a scannable PDU type.
func (ll *LL) advOnRecv(buf []byte, crcOK bool, active bool) {
	ll.tmr.Stop(ll.ifsID)
	if !crcOK || len(buf) < 2 {
		return
	}
	var h pdu.AdvHeader
	if err := h.Unmarshal(buf); err != nil {
		return
	}
	ll.mu.Lock()
	advType := ll.advType
	notAdvertising := ll.state != Advertising
	ll.mu.Unlock()
	if notAdvertising {
		return
	}

	if h.Type == pdu.ConnectReq && isConnectable(advType) {
		ll.handleConnectReq(buf, h)
		return
	}

	if !isScannable(advType) {
		return
	}
	if h.Type != pdu.ScanReq || h.Length != 12 || len(buf) < 2+12 {
		ll.radio.Stop()
		return
	}
	scanA := buf[2:8]
	advA := buf[8:14]
	ll.mu.Lock()
	match := h.RxAdd == (ll.addr.Type == addr.Random)
	for i := 0; i < 6; i++ {
		if advA[i] != ll.addr.Bytes[i] {
			match = false
		}
	}
	_ = scanA
	if !match {
		ll.mu.Unlock()
		ll.radio.Stop()
		return
	}
	rsp := ll.buildScanRspFrame()
	ll.mu.Unlock()

	if err := ll.radio.Send(rsp, 0); err != nil {
		ll.log("linklayer: scan response send: %s", err)
	}
}

// buildScanRspFrame assembles the SCAN_RSP PDU. Must be called with ll.mu held.
func (ll *LL) buildScanRspFrame() []byte {
	payload := make([]byte, 0, 6+len(ll.scanRspData))
	payload = append(payload, ll.addr.Bytes[:]...)
	payload = append(payload, ll.scanRspData...)
	hdr := pdu.AdvHeader{Type: pdu.ScanRsp, TxAdd: ll.addr.Type == addr.Random, Length: uint8(len(payload))}
	buf := make([]byte, 2+len(payload))
	hdr.Marshal(buf)
	copy(buf[2:], payload)
	return buf
}

func (ll *LL) advOnSend(active bool) {}

// handleConnectReq parses an incoming CONNECT_REQ addressed to us and, if
// it is, hands off to the slave connection setup (spec.md §4.3.6).
func (ll *LL) handleConnectReq(buf []byte, h pdu.AdvHeader) {
	if len(buf) < 2+pdu.ConnectReqPayloadLen {
		ll.radio.Stop()
		return
	}
	var req pdu.ConnectReqPayload
	if err := req.Unmarshal(buf[2:]); err != nil {
		ll.radio.Stop()
		return
	}
	ll.mu.Lock()
	match := req.AdvA == ll.addr.Bytes && h.RxAdd == (ll.addr.Type == addr.Random)
	ll.mu.Unlock()
	if !match {
		ll.radio.Stop()
		return
	}
	var initiator addr.Addr
	initiator.Bytes = req.InitA
	if h.TxAdd {
		initiator.Type = addr.Random
	}
	ll.acceptConnectReq(req, initiator)
}
