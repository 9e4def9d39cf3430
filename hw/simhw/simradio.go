// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package simhw

import (
	"errors"
	"sync"
	"time"

	"github.com/tve/blell/hw"
)

// airLatency is the simulated one-way propagation + framing delay used to
// schedule callbacks asynchronously, analogous to the real PHY's framing
// time. It has no bearing on correctness, only on test wall-clock time.
const airLatency = 50 * time.Microsecond

var errBusy = errors.New("simhw: radio busy")

// Radio is a host-only fake single-packet BLE PHY. Two Radios can be
// wired together with Pair to form a two-node integration test (advertiser
// + scanner, or master + slave); an unpaired Radio only delivers frames
// injected with InjectRecv, which is enough for unit tests of a single Link
// Layer instance.
type Radio struct {
	mu      sync.Mutex
	busy    bool
	channel uint8
	aa      uint32
	crcInit uint32
	power   uint8
	outBuf  []byte

	onRecv hw.RecvCallback
	onSend hw.SendCallback

	peer *Radio
}

// NewRadio creates an unpaired simulated radio.
func NewRadio() *Radio { return &Radio{} }

// Pair wires a and b together so that a frame sent by one is delivered to
// the other's armed receiver, provided both are prepared on the same
// channel and access address.
func Pair(a, b *Radio) {
	a.peer = b
	b.peer = a
}

// Prepare implements hw.Radio.
func (r *Radio) Prepare(channel uint8, accessAddress, crcInit uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return errBusy
	}
	r.channel = channel
	r.aa = accessAddress
	r.crcInit = crcInit
	return nil
}

// Recv implements hw.Radio. The simulated receiver stays armed until Stop,
// a frame is injected, or a paired peer transmits.
func (r *Radio) Recv(flags hw.RadioFlags) error {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return errBusy
	}
	r.busy = true
	r.mu.Unlock()
	return nil
}

// Send implements hw.Radio.
func (r *Radio) Send(buf []byte, flags hw.RadioFlags) error {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return errBusy
	}
	r.busy = true
	onSend := r.onSend
	peer := r.peer
	channel, aa := r.channel, r.aa
	active := flags&hw.RxNext != 0
	r.mu.Unlock()

	frame := append([]byte(nil), buf...)
	time.AfterFunc(airLatency, func() {
		r.mu.Lock()
		r.busy = active // RX_NEXT keeps the driver engaged
		r.mu.Unlock()
		if onSend != nil {
			onSend(active)
		}
		if peer != nil {
			peer.deliver(channel, aa, frame)
		}
	})
	return nil
}

// Stop implements hw.Radio.
func (r *Radio) Stop() {
	r.mu.Lock()
	r.busy = false
	r.mu.Unlock()
}

// SetCallbacks implements hw.Radio.
func (r *Radio) SetCallbacks(onRecv hw.RecvCallback, onSend hw.SendCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRecv = onRecv
	r.onSend = onSend
}

// SetOutBuffer implements hw.Radio.
func (r *Radio) SetOutBuffer(buf []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outBuf = buf
}

// SetTxPower implements hw.Radio.
func (r *Radio) SetTxPower(level uint8) error {
	if level > 7 {
		return errors.New("simhw: invalid power level")
	}
	r.mu.Lock()
	r.power = level
	r.mu.Unlock()
	return nil
}

// deliver is called (possibly from a peer's goroutine) when a frame arrives
// on the air. If this radio isn't listening on the matching channel/AA the
// frame is silently lost, as it would be on real hardware tuned elsewhere.
func (r *Radio) deliver(channel uint8, aa uint32, frame []byte) {
	r.mu.Lock()
	if !r.busy || r.channel != channel || r.aa != aa {
		r.mu.Unlock()
		return
	}
	onRecv := r.onRecv
	out := r.outBuf
	r.busy = false
	r.mu.Unlock()

	if onRecv != nil {
		active := out != nil
		onRecv(frame, true, active)
	}
}

// InjectRecv delivers a frame directly into this radio's armed receiver,
// bypassing any peer — used by unit tests that drive a single Link Layer
// instance without a second simulated node.
func (r *Radio) InjectRecv(buf []byte, crcOK bool) {
	r.mu.Lock()
	if !r.busy {
		r.mu.Unlock()
		return
	}
	onRecv := r.onRecv
	out := r.outBuf
	r.busy = false
	r.mu.Unlock()

	if onRecv != nil {
		onRecv(buf, crcOK, out != nil)
	}
}
