// Package transport provides the concrete UDP and TCP transports behind
// the call.Transport interface: socket ownership, a parse-and-dispatch
// receive loop, and per-Call-ID routing of inbound messages.
package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rkd91/quaff/call"
	"github.com/rkd91/quaff/message"
	"github.com/rkd91/quaff/util"
)

// queueDepth bounds how many undelivered messages a call can have pending
// before the dispatcher starts dropping.
const queueDepth = 16

// demux routes parsed inbound messages to per-call queues by Call-ID.
// Register/Deregister run on script goroutines while dispatch runs on the
// transport's receive loop, so the map is mutex-guarded.
type demux struct {
	mu     sync.Mutex
	queues map[string]chan *message.SIPMessage

	// pending holds messages for Call-IDs nobody registered yet, feeding
	// acceptPending so a server script can pick up incoming calls.
	pending chan *message.SIPMessage
}

func newDemux() *demux {
	return &demux{
		queues:  make(map[string]chan *message.SIPMessage),
		pending: make(chan *message.SIPMessage, queueDepth),
	}
}

func (d *demux) register(callID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.queues[callID]; !ok {
		d.queues[callID] = make(chan *message.SIPMessage, queueDepth)
	}
}

func (d *demux) deregister(callID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.queues, callID)
}

// dispatch hands a message to its call's queue. Messages for unknown
// Call-IDs go to the pending queue for acceptPending; messages for a call
// whose queue is full are dropped with a warning.
func (d *demux) dispatch(msg *message.SIPMessage) {
	callID := msg.Header("Call-ID")
	d.mu.Lock()
	queue, ok := d.queues[callID]
	d.mu.Unlock()
	if !ok {
		select {
		case d.pending <- msg:
		default:
			log.Warn().Str("call_id", callID).Msg("dropping message for unknown call")
		}
		return
	}
	select {
	case queue <- msg:
	default:
		log.Warn().Str("call_id", callID).Msg("dropping message, call queue full")
	}
}

// acceptPending waits for the first message addressed to an unregistered
// Call-ID, registers that call, and requeues the message so the next
// receive for it returns the message that opened the call.
func (d *demux) acceptPending(timeout time.Duration) (string, error) {
	timer := util.NewTimer()
	timer.Start(timeout)
	defer timer.Stop()

	select {
	case msg := <-d.pending:
		callID := msg.Header("Call-ID")
		d.register(callID)
		d.dispatch(msg)
		return callID, nil
	case <-timer.Chan():
		return "", fmt.Errorf("no incoming call: %w", call.ErrReceiveTimeout)
	}
}

func (d *demux) receive(callID string, timeout time.Duration) (*message.SIPMessage, error) {
	d.mu.Lock()
	queue, ok := d.queues[callID]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("call %s is not registered", callID)
	}

	timer := util.NewTimer()
	timer.Start(timeout)
	defer timer.Stop()

	select {
	case msg := <-queue:
		return msg, nil
	case <-timer.Chan():
		return nil, fmt.Errorf("call %s: %w", callID, call.ErrReceiveTimeout)
	}
}
