// Package call drives one scripted SIP call: it owns the dialog state,
// builds protocol-correct outbound messages, classifies inbound ones
// against expectations, and keeps unreliable transports honest with a
// timer-based retransmission loop.
package call

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rkd91/quaff/dialog"
	"github.com/rkd91/quaff/message"
)

const (
	stateInit        = "init"
	stateEstablished = "established"
	stateEnded       = "ended"
)

// Call is the orchestrator a test script talks to. Its operations execute
// on the script's goroutine and may block waiting for inbound messages;
// only the retransmission loop runs in the background, on an immutable
// snapshot of what was sent.
type Call struct {
	tp     Transport
	dialog *dialog.Dialog

	lifecycle *fsm.FSM

	// lastVia is the via context: the Via line(s) the next outbound
	// message carries. Replaced when a new transaction starts.
	lastVia []string

	// lastRecvReq backs the CSeq/Via echo when responding.
	lastRecvReq *message.SIPMessage

	// peerAddr tracks where the most recent inbound message came from.
	peerAddr net.Addr

	retrans *retransmission

	t1          time.Duration
	t2          time.Duration
	recvTimeout time.Duration
	onFatal     func(error)
	log         zerolog.Logger
}

// New creates a call and registers its Call-ID with the transport so
// inbound messages can be routed to it.
func New(tp Transport, localURI, targetURI string, opts ...Option) *Call {
	cfg := config{
		callID:      uuid.NewString(),
		localTag:    uuid.NewString()[:8],
		t1:          DefaultT1,
		t2:          DefaultT2,
		recvTimeout: DefaultRecvTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Call{
		tp:          tp,
		t1:          cfg.t1,
		t2:          cfg.t2,
		recvTimeout: cfg.recvTimeout,
		onFatal:     cfg.onFatal,
	}
	c.dialog = dialog.New(cfg.callID, localURI, targetURI)
	c.dialog.LocalTag = cfg.localTag

	parent := log.Logger
	if cfg.logger != nil {
		parent = *cfg.logger
	}
	c.log = parent.With().Str("call_id", cfg.callID).Logger()

	if c.onFatal == nil {
		c.onFatal = func(err error) {
			c.log.Fatal().Err(err).Msg("scenario aborted")
		}
	}

	c.lastVia = []string{c.newVia()}

	c.lifecycle = fsm.NewFSM(
		stateInit,
		fsm.Events{
			{Name: "establish", Src: []string{stateInit}, Dst: stateEstablished},
			{Name: "end", Src: []string{stateInit, stateEstablished}, Dst: stateEnded},
		},
		fsm.Callbacks{},
	)

	tp.Register(cfg.callID)
	activeCalls.Inc()
	c.log.Debug().Str("target", targetURI).Msg("call created")
	return c
}

func (c *Call) CallID() string {
	return c.dialog.CallID
}

// Dialog exposes the call's dialog state, mainly for assertions in test
// scripts. Scripts must not mutate it.
func (c *Call) Dialog() *dialog.Dialog {
	return c.dialog
}

func (c *Call) Ended() bool {
	return c.lifecycle.Current() == stateEnded
}

func (c *Call) newVia() string {
	return fmt.Sprintf("SIP/2.0/%s %s:%d;branch=%s",
		c.tp.Kind(), c.tp.LocalHostname(), c.tp.LocalPort(), newBranch())
}

func newBranch() string {
	return "z9hG4bK" + uuid.NewString()
}

// SendRequest builds and sends an in-dialog request. Unless the send
// reuses the prior transaction, a fresh branch is generated first.
// Retransmission defaults to on for every method except ACK, which has no
// response to cancel it.
func (c *Call) SendRequest(method string, opts ...SendOption) error {
	if c.Ended() {
		return ErrCallEnded
	}
	o := newSendOptions(opts)

	if !o.reuseTx {
		c.lastVia = []string{c.newVia()}
	}

	msg, err := c.buildRequest(method, o)
	if err != nil {
		return err
	}
	data := msg.Serialize()
	if err := c.tp.Send(data, c.peerAddr); err != nil {
		return fmt.Errorf("sending %s: %w", method, err)
	}
	messagesSent.WithLabelValues("request").Inc()
	c.log.Debug().Str("method", method).Str("cseq", msg.Header("CSeq")).Msg("sent request")

	enabled := method != "ACK"
	if o.retransmit != nil {
		enabled = *o.retransmit
	}
	c.scheduleRetransmission(data, c.peerAddr, enabled)
	return nil
}

// SendResponse builds and sends a response, echoing the Via set and CSeq
// of the linked request (RespondTo, defaulting to the last one received).
// Retransmission defaults to off.
func (c *Call) SendResponse(code int, reason string, opts ...SendOption) error {
	if c.Ended() {
		return ErrCallEnded
	}
	o := newSendOptions(opts)

	msg, err := c.buildResponse(code, reason, o)
	if err != nil {
		return err
	}
	data := msg.Serialize()
	if err := c.tp.Send(data, c.peerAddr); err != nil {
		return fmt.Errorf("sending %d response: %w", code, err)
	}
	messagesSent.WithLabelValues("response").Inc()
	c.log.Debug().Int("code", code).Msg("sent response")

	enabled := false
	if o.retransmit != nil {
		enabled = *o.retransmit
	}
	c.scheduleRetransmission(data, c.peerAddr, enabled)
	return nil
}

// recvNext pulls the next inbound message for this call. Any arrival
// cancels the current retransmission and becomes the new peer address.
func (c *Call) recvNext(timeout time.Duration) (*message.SIPMessage, error) {
	msg, err := c.tp.Receive(c.dialog.CallID, timeout)
	if err != nil {
		return nil, err
	}
	c.cancelRetransmission()
	if msg.Source != nil {
		c.peerAddr = msg.Source
	}
	kind := "response"
	if msg.IsRequest() {
		kind = "request"
	}
	messagesReceived.WithLabelValues(kind).Inc()
	return msg, nil
}

// noteRequest records a received request: the dialog's sequence counter is
// taken from its CSeq so responses echo correctly, and it becomes the
// default RespondTo linkage.
func (c *Call) noteRequest(msg *message.SIPMessage) error {
	counter, err := dialog.ParseCSeq(msg.Header("CSeq"))
	if err != nil {
		return err
	}
	c.dialog.Seq = counter
	c.lastRecvReq = msg
	return nil
}

// RecvRequest blocks for the next inbound message and requires it to be a
// request matching methodPattern. By default the request is treated as
// dialog-creating; pass DialogCreating(false) to leave dialog state alone.
func (c *Call) RecvRequest(methodPattern string, opts ...RecvOption) (*message.SIPMessage, error) {
	if c.Ended() {
		return nil, ErrCallEnded
	}
	o := newRecvOptions(opts, true)
	timeout := c.timeoutFor(o)

	msg, err := c.recvNext(timeout)
	if err != nil {
		if errors.Is(err, ErrReceiveTimeout) {
			receiveTimeoutsTotal.Inc()
			return nil, &TimeoutError{Expected: methodPattern, Timeout: timeout}
		}
		return nil, err
	}

	ok, err := matchRequest(msg, methodPattern)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &UnexpectedMessageError{Expected: methodPattern, Received: msg}
	}

	if err := c.noteRequest(msg); err != nil {
		return nil, err
	}
	if o.dialogCreating {
		c.dialog.ApplyDialogCreatingRequest(msg)
		c.establish()
	}
	return msg, nil
}

// RecvResponse blocks for a response matching codePattern. Responses whose
// code is on the ignored list are swallowed and the wait re-armed with the
// full timeout, so a steady stream of ignored responses can wait
// indefinitely. Dialog state is only touched with DialogCreating(true).
func (c *Call) RecvResponse(codePattern string, opts ...RecvOption) (*message.SIPMessage, error) {
	if c.Ended() {
		return nil, ErrCallEnded
	}
	o := newRecvOptions(opts, false)
	timeout := c.timeoutFor(o)

	for {
		msg, err := c.recvNext(timeout)
		if err != nil {
			if errors.Is(err, ErrReceiveTimeout) {
				receiveTimeoutsTotal.Inc()
				return nil, &TimeoutError{Expected: "status " + codePattern, Timeout: timeout}
			}
			return nil, err
		}

		match, retry, err := matchResponse(msg, codePattern, o.ignored)
		if err != nil {
			return nil, err
		}
		if retry {
			c.log.Debug().Int("code", msg.Response.StatusCode).Msg("ignored response, waiting again")
			continue
		}
		if !match {
			return nil, &UnexpectedMessageError{Expected: "status " + codePattern, Received: msg}
		}

		if o.dialogCreating {
			c.dialog.ApplyDialogCreatingResponse(msg)
			c.establish()
		}
		return msg, nil
	}
}

// RecvAnyOf blocks for the next inbound message and matches it against an
// ordered candidate list; the first structural match wins. It returns the
// message and the index of the candidate that fired. Whether dialog state
// is updated follows the matched candidate's dialog-creating flag.
func (c *Call) RecvAnyOf(candidates []Candidate, opts ...RecvOption) (*message.SIPMessage, int, error) {
	if c.Ended() {
		return nil, -1, ErrCallEnded
	}
	o := newRecvOptions(opts, false)
	timeout := c.timeoutFor(o)

	msg, err := c.recvNext(timeout)
	if err != nil {
		if errors.Is(err, ErrReceiveTimeout) {
			receiveTimeoutsTotal.Inc()
			return nil, -1, &TimeoutError{Expected: describeCandidates(candidates), Timeout: timeout}
		}
		return nil, -1, err
	}

	idx, err := matchAnyOf(msg, candidates)
	if err != nil {
		return nil, -1, err
	}
	if idx == -1 {
		return nil, -1, &UnexpectedMessageError{Expected: describeCandidates(candidates), Received: msg}
	}

	if msg.IsRequest() {
		if err := c.noteRequest(msg); err != nil {
			return nil, -1, err
		}
	}
	if candidates[idx].creating() {
		if msg.IsRequest() {
			c.dialog.ApplyDialogCreatingRequest(msg)
		} else {
			c.dialog.ApplyDialogCreatingResponse(msg)
		}
		c.establish()
	}
	return msg, idx, nil
}

// End deregisters the call from the transport and moves it to its terminal
// state. Further operations return ErrCallEnded.
func (c *Call) End() error {
	if c.Ended() {
		return nil
	}
	c.cancelRetransmission()
	c.tp.Deregister(c.dialog.CallID)
	if err := c.lifecycle.Event(context.Background(), "end"); err != nil {
		return fmt.Errorf("ending call: %w", err)
	}
	activeCalls.Dec()
	c.log.Debug().Msg("call ended")
	return nil
}

func (c *Call) establish() {
	if c.lifecycle.Current() == stateInit {
		// Src is always valid here, the event cannot fail.
		_ = c.lifecycle.Event(context.Background(), "establish")
	}
}

func (c *Call) timeoutFor(o *recvOptions) time.Duration {
	if o.timeout > 0 {
		return o.timeout
	}
	return c.recvTimeout
}
