// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package linklayer

import (
	"context"

	"github.com/tve/blell/addr"
	"golang.org/x/sync/errgroup"
)

// EventKind distinguishes the host-facing notifications of spec.md §6.
type EventKind int

const (
	// EvAdvReport carries one received advertising PDU, produced while
	// scanning.
	EvAdvReport EventKind = iota
	// EvConnectionComplete reports a new connection, index is always 0
	// (single-connection core).
	EvConnectionComplete
	// EvDisconnectComplete reports connection teardown and its reason.
	EvDisconnectComplete
	// EvPacketsSent reports that the queued ConnSend payload has been framed
	// into the data PDU for the current connection event.
	EvPacketsSent
	// EvPacketsReceived reports inbound connection-event data, already
	// copied into the caller's rx buffer.
	EvPacketsReceived
)

// AdvReport is an observed advertising PDU (spec.md §4.3.2).
type AdvReport struct {
	Type     uint8
	PeerAddr addr.Addr
	Data     []byte
}

// Event is delivered through the deferred-dispatch channel, never called
// directly from a radio/timer callback (spec.md §5's ordering guarantee).
type Event struct {
	Kind     EventKind
	Index    int
	PeerAddr addr.Addr
	Reason   DisconnectReason
	Length   int
	Report   AdvReport
}

// Handler receives deferred events. It runs on the dispatch goroutine, never
// on the radio/timer simulation goroutines, so it may safely call back into
// LL's own operations (spec.md §5).
type Handler func(Event)

// eventQueueDepth bounds the deferred-dispatch channel; a radio/timer
// callback that cannot enqueue (queue full) drops the event rather than
// blocking the simulated ISR, which would violate §5's non-blocking rule.
const eventQueueDepth = 32

// startDispatch launches the low-priority goroutine that drains ll.events
// and invokes the registered handler, run under an errgroup whose context
// Close cancels (§5's low-priority deferred dispatch expressed as a
// goroutine). The group holds only this goroutine; the radio and timer
// callbacks run on the hw backends' own goroutines.
func (ll *LL) startDispatch(ctx context.Context) {
	ll.dispatchGroup, ll.dispatchCtx = errgroup.WithContext(ctx)
	ll.dispatchGroup.Go(func() error {
		for {
			select {
			case ev := <-ll.events:
				ll.mu.Lock()
				h := ll.handler
				ll.mu.Unlock()
				if h != nil {
					h(ev)
				}
			case <-ll.dispatchCtx.Done():
				return nil
			}
		}
	})
}

// emit enqueues ev for deferred dispatch, dropping it (and logging) if the
// queue is saturated rather than blocking the caller.
func (ll *LL) emit(ev Event) {
	select {
	case ll.events <- ev:
	default:
		ll.log("linklayer: event queue full, dropping %v", ev.Kind)
	}
}
