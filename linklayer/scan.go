// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package linklayer

import (
	"github.com/tve/blell/addr"
	"github.com/tve/blell/pdu"
)

// ScanStart transitions STANDBY -> SCANNING. Only passive scanning is
// supported (spec.md §4.3.2); scan_req is never transmitted. Every AdvReport
// produced while scanning is delivered as an EvAdvReport Event to the
// handler installed with SetHandler, through deferred dispatch.
func (ll *LL) ScanStart(intervalUs, windowUs uint32) error {
	if windowUs == 0 || windowUs > intervalUs || intervalUs > 10_240_000 {
		return Invalid
	}
	ll.mu.Lock()
	if ll.state != Standby {
		ll.mu.Unlock()
		return NotReady
	}
	ll.scanIntervalUs = intervalUs
	ll.scanWindowUs = windowUs
	ll.transition(Scanning)
	ll.radio.SetCallbacks(ll.scanOnRecv, nil)
	ll.mu.Unlock()

	if err := ll.tmr.Start(ll.intervalID, intervalUs, ll.scanTick); err != nil {
		ll.log("linklayer: scan interval arm failed: %s", err)
	}
	ll.scanTick()
	return nil
}

// ScanStop transitions SCANNING -> STANDBY.
func (ll *LL) ScanStop() error {
	ll.mu.Lock()
	if ll.state != Scanning {
		ll.mu.Unlock()
		return NotReady
	}
	ll.transition(Standby)
	ll.mu.Unlock()

	ll.tmr.Stop(ll.intervalID)
	ll.tmr.Stop(ll.singleShotID)
	ll.radio.Stop()
	return nil
}

// scanTick opens one scan window: program the next advertising channel and
// arm the receiver, then schedule its close windowUs later.
func (ll *LL) scanTick() {
	ll.mu.Lock()
	if ll.state != Scanning {
		ll.mu.Unlock()
		return
	}
	next, ok := incAdvCh(0x7, ll.scanCh)
	if !ok {
		next, _ = firstAdvCh(0x7)
	}
	ll.scanCh = next
	windowUs := ll.scanWindowUs
	ll.mu.Unlock()

	if err := ll.radio.Prepare(next, addr.AdvAccessAddress, addr.AdvCRCInit); err != nil {
		ll.log("linklayer: scan prepare: %s", err)
		return
	}
	if err := ll.radio.Recv(0); err != nil {
		ll.log("linklayer: scan recv: %s", err)
		return
	}
	if err := ll.tmr.Start(ll.singleShotID, windowUs, ll.scanWindowClose); err != nil {
		ll.tmr.Stop(ll.singleShotID)
		_ = ll.tmr.Start(ll.singleShotID, windowUs, ll.scanWindowClose)
	}
}

func (ll *LL) scanWindowClose() {
	ll.mu.Lock()
	active := ll.state == Scanning
	ll.mu.Unlock()
	if active {
		ll.radio.Stop()
	}
}

// scanOnRecv packages every valid-CRC, sufficiently long advertising PDU as
// an AdvReport and hands it to deferred dispatch (spec.md §4.3.2); no
// duplicate suppression is performed at this layer.
func (ll *LL) scanOnRecv(buf []byte, crcOK bool, active bool) {
	if !crcOK || len(buf) < 6 {
		return
	}
	var h pdu.AdvHeader
	if err := h.Unmarshal(buf); err != nil {
		return
	}
	if len(buf) < 2+6 {
		return
	}
	var peer addr.Addr
	copy(peer.Bytes[:], buf[2:8])
	if h.TxAdd {
		peer.Type = addr.Random
	}
	data := append([]byte(nil), buf[8:]...)

	ll.mu.Lock()
	scanning := ll.state == Scanning
	ll.mu.Unlock()
	if !scanning {
		return
	}
	ll.emit(Event{Kind: EvAdvReport, Report: AdvReport{Type: h.Type, PeerAddr: peer, Data: data}})
}
