// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package linklayer

// terminate.go holds the connection failure/termination handling shared by
// both connmaster.go and connslave.go (spec.md §4.3.7's table): supervision
// timeout, peer/local LL_TERMINATE_IND, and the small LL Control PDU
// opcodes this core answers.

// Link Layer control opcodes used by the small subset of control PDUs this
// core answers (spec.md §4.3.5 step 3).
const (
	llTerminateInd = 0x02
	llUnknownRsp   = 0x07
	llVersionInd   = 0x0C
)

const connIfsTimeout = 500 // microseconds

// connIfsExpired implements the "no RX in ifs window" row of §4.3.7: the
// event simply ends, the next interval tick starts the next one.
func (ll *LL) connIfsExpired() {
	ll.radio.Stop()
}

// handleControlPDU answers an incoming LL Control PDU per §4.3.5 step 3 and
// §4.3.7's "unknown opcode" row. Must be called with ll.mu held.
func (ll *LL) handleControlPDU(conn *connContext, payload []byte) {
	if len(payload) == 0 {
		return
	}
	switch payload[0] {
	case llTerminateInd:
		conn.termPeer = true
	case llVersionInd:
		conn.pendingReply = []byte{llVersionInd, 8, 0x00, 0x00, 0, 0}
	default:
		conn.pendingReply = []byte{llUnknownRsp, payload[0]}
	}
}

// ConnTerminate requests an orderly disconnect: CONNECTION_MASTER/SLAVE ->
// (LL_TERMINATE_IND sent and acked) -> STANDBY.
func (ll *LL) ConnTerminate() error {
	ll.mu.Lock()
	if (ll.state != ConnMaster && ll.state != ConnSlave) || ll.conn == nil {
		ll.mu.Unlock()
		return NotReady
	}
	ll.conn.termLocal = true
	ll.conn.termReason = ReasonLocalHostTerminated
	ll.mu.Unlock()
	return nil
}

// terminateConnection ends the connection and notifies the caller
// (spec.md §4.3.7): supervision timeout, a peer LL_TERMINATE_IND (as soon as
// it is received), or a local conn_terminate() whose LL_TERMINATE_IND was
// acked all funnel through here.
func (ll *LL) terminateConnection(reason DisconnectReason) {
	ll.mu.Lock()
	if ll.state != ConnMaster && ll.state != ConnSlave {
		ll.mu.Unlock()
		return
	}
	ll.conn = nil
	ll.transition(Standby)
	ll.mu.Unlock()

	ll.tmr.Stop(ll.intervalID)
	ll.tmr.Stop(ll.singleShotID)
	ll.tmr.Stop(ll.ifsID)
	ll.radio.Stop()

	ll.emit(Event{Kind: EvDisconnectComplete, Index: 0, Reason: reason})
}
