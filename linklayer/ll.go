// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package linklayer implements the BLE Link Layer state machine of spec.md
// §4.3: advertising, scanning, initiating and the master/slave connection
// data path over a radio.Driver and timer.Service. Design Note "Global
// module state → explicit context": there is no package-level mutable
// state, everything lives on the single LL context returned by New.
package linklayer

import (
	"context"
	"sync"

	"github.com/tve/blell/addr"
	"github.com/tve/blell/chanmap"
	"github.com/tve/blell/pdu"
	"github.com/tve/blell/radio"
	"github.com/tve/blell/timer"
	"golang.org/x/sync/errgroup"
)

// State is one of the Link Layer's six states (spec.md §4.3).
type State int

const (
	Standby State = iota
	Advertising
	Scanning
	Initiating
	ConnMaster
	ConnSlave
)

func (s State) String() string {
	switch s {
	case Standby:
		return "STANDBY"
	case Advertising:
		return "ADVERTISING"
	case Scanning:
		return "SCANNING"
	case Initiating:
		return "INITIATING"
	case ConnMaster:
		return "CONNECTION_MASTER"
	case ConnSlave:
		return "CONNECTION_SLAVE"
	default:
		return "UNKNOWN"
	}
}

// Transition records one state change, exposed via LastTransition so tests
// can observe the state machine without racing its internals (Design Note
// "Callback chains → state machine + typed events").
type Transition struct {
	From, To State
}

// LogPrintf is a function used by the Link Layer to print logging info.
type LogPrintf func(format string, v ...interface{})

// ConnParams holds the connection parameters validated by SetConnParams
// (spec.md §6).
type ConnParams struct {
	IntervalMin, IntervalMax uint16 // units of 1.25ms
	Latency                  uint16 // connection events
	Timeout                  uint16 // units of 10ms
}

// connContext is the per-connection state of spec.md §3's "Connection
// context" table.
type connContext struct {
	master bool

	aa      uint32
	crcInit uint32

	hop            uint8
	lastUnmappedCh uint8

	evtCounter uint16

	supervTimer uint32

	sn, nesn uint8

	txBuf      []byte // caller-queued outgoing payload, nil if none pending
	lastTx     []byte // last transmitted framed PDU, for NACK retransmit
	needResend bool
	pendingReply []byte // queued LL Control reply (LL_VERSION_IND/LL_UNKNOWN_RSP)

	rxBuf []byte // caller-supplied aliasing buffer

	established bool
	termLocal   bool
	termPeer    bool
	termReason  DisconnectReason
}

// LL is the Link Layer's single owned context.
type LL struct {
	addr  addr.Addr
	radio *radio.Driver
	tmr   *timer.Service
	log   LogPrintf

	mu             sync.Mutex
	state          State
	lastTransition Transition
	initialized    bool

	advData       []byte
	scanRspData   []byte
	advType       uint8
	advIntervalUs uint32
	advChanMask   uint8
	advCh         uint8 // channel currently active within the event

	scanIntervalUs, scanWindowUs uint32
	scanCh                       uint8

	connParams ConnParams
	chMap      chanmap.Map

	peers   []addr.Addr
	connReq pdu.ConnectReqPayload

	// Shared timer slots, per the common invariant that at most one
	// interval, one intra-event (singleShot) and one ifs timer are ever in
	// use regardless of which non-STANDBY state is active.
	intervalID   int
	singleShotID int
	ifsID        int

	conn *connContext

	handler Handler
	events  chan Event

	dispatchGroup *errgroup.Group
	dispatchCtx   context.Context
	cancelDispatch context.CancelFunc
}

// New constructs an LL bound to r and t, with address a. It does not start
// any radio activity; call Init before any other operation.
func New(a addr.Addr, r *radio.Driver, t *timer.Service, log LogPrintf) *LL {
	if log == nil {
		log = func(string, ...interface{}) {}
	}
	ll := &LL{
		addr:   a,
		radio:  r,
		tmr:    t,
		log:    log,
		events: make(chan Event, eventQueueDepth),
	}
	_ = ll.chMap.SetMask(chanmap.AllChannels())
	return ll
}

// Init prepares all subsystems (spec.md §6). Calling Init twice returns
// Already rather than re-running setup.
func (ll *LL) Init() error {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	if ll.initialized {
		return Already
	}
	intervalID, err := ll.tmr.Create(timer.Repeated)
	if err != nil {
		return OutOfMemory
	}
	singleShotID, err := ll.tmr.Create(timer.SingleShot)
	if err != nil {
		return OutOfMemory
	}
	ifsID, err := ll.tmr.Create(timer.SingleShot)
	if err != nil {
		return OutOfMemory
	}
	ll.intervalID = intervalID
	ll.singleShotID = singleShotID
	ll.ifsID = ifsID

	ctx, cancel := context.WithCancel(context.Background())
	ll.cancelDispatch = cancel
	ll.startDispatch(ctx)

	ll.initialized = true
	ll.state = Standby
	return nil
}

// SetHandler installs the event handler invoked by the deferred-dispatch
// goroutine for every emitted Event.
func (ll *LL) SetHandler(h Handler) {
	ll.mu.Lock()
	ll.handler = h
	ll.mu.Unlock()
}

// Close stops the dispatch goroutine. Not part of spec.md §6's contract
// table; provided so host processes can shut down cleanly.
func (ll *LL) Close() {
	ll.mu.Lock()
	cancel := ll.cancelDispatch
	g := ll.dispatchGroup
	ll.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if g != nil {
		_ = g.Wait()
	}
}

// State returns the current Link Layer state.
func (ll *LL) State() State {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	return ll.state
}

// LastTransition returns the most recent state change, for tests to observe
// the state machine's behavior without racing its internals.
func (ll *LL) LastTransition() Transition {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	return ll.lastTransition
}

// transition must be called with ll.mu held.
func (ll *LL) transition(to State) {
	ll.lastTransition = Transition{From: ll.state, To: to}
	ll.log("linklayer: %s -> %s", ll.state, to)
	ll.state = to
}

// SetAdvertisingData stores the advertising-data AD structure buffer. Must
// be called from STANDBY.
func (ll *LL) SetAdvertisingData(data []byte) error {
	if len(data) > 31 {
		return Invalid
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	if ll.state != Standby {
		return NotReady
	}
	ll.advData = append([]byte(nil), data...)
	return nil
}

// SetScanResponseData stores the scan-response AD structure buffer. Must be
// called from STANDBY.
func (ll *LL) SetScanResponseData(data []byte) error {
	if len(data) > 31 {
		return Invalid
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	if ll.state != Standby {
		return NotReady
	}
	ll.scanRspData = append([]byte(nil), data...)
	return nil
}

// SetConnParams validates and stores the connection parameters used by the
// next ConnCreate and, once connected, supervision-timeout accounting.
func (ll *LL) SetConnParams(p ConnParams) error {
	if p.IntervalMin < 6 || p.IntervalMin > p.IntervalMax {
		return Invalid
	}
	if p.Timeout == 0 {
		return Invalid
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.connParams = p
	return nil
}

// SetDataChannelMap rebuilds the data channel map from a 37-bit mask (spec.md
// §3); at least two bits must be set.
func (ll *LL) SetDataChannelMap(mask uint64) error {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	if err := ll.chMap.SetMask(mask); err != nil {
		return Invalid
	}
	return nil
}

// ConnSend queues buf (at most 27 octets) for transmission at the next
// connection event. It replaces any previously queued, not-yet-sent buffer.
func (ll *LL) ConnSend(buf []byte) error {
	if len(buf) > pdu.MaxDataPayload {
		return Invalid
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	if ll.conn == nil || (ll.state != ConnMaster && ll.state != ConnSlave) {
		return NotReady
	}
	ll.conn.txBuf = append([]byte(nil), buf...)
	return nil
}
