// Package dialog holds the identity and routing facts for one SIP call:
// Call-ID, tags, current target, route set and sequence counter. All
// mutation funnels through the two dialog-creating transitions so state
// changes stay auditable at a single seam.
package dialog

import (
	"github.com/rkd91/quaff/message"
)

// Dialog is the per-call dialog state. It is owned by exactly one Call and
// must only be mutated by that Call's own operations.
type Dialog struct {
	CallID   string
	LocalURI string
	LocalTag string
	PeerURI  string
	PeerTag  string

	// Target is the request-URI the next outbound request is sent to.
	Target string

	// RouteSet is direction-sensitive: learned from a request it is stored
	// as received, learned from a response it is stored reversed, so it can
	// always be replayed as-is into the next request's Route headers.
	RouteSet []string

	Seq         SequenceCounter
	Established bool
}

// New creates the dialog state for a fresh call. The sequence counter
// starts at zero so the first sent request carries CSeq 1.
func New(callID, localURI, peerTargetURI string) *Dialog {
	return &Dialog{
		CallID:   callID,
		LocalURI: localURI,
		PeerURI:  peerTargetURI,
		Target:   peerTargetURI,
	}
}

// SetTarget updates the target from a Contact-style header value. An empty
// value leaves the previous target untouched.
func (d *Dialog) SetTarget(header string) {
	if header == "" {
		return
	}
	d.Target = message.ExtractURI(header)
}

// ApplyDialogCreatingRequest captures peer tag, target and route set from a
// dialog-creating request. Record-Route headers are kept in received order:
// a request traverses proxies forward, so the recorded order is already the
// routing order for our next request.
func (d *Dialog) ApplyDialogCreatingRequest(msg *message.SIPMessage) {
	d.Established = true
	d.SetTarget(msg.Header("Contact"))
	if routes := msg.AllHeaders("Record-Route"); routes != nil {
		d.RouteSet = append([]string(nil), routes...)
	}
	if from := msg.Header("From"); from != "" {
		d.PeerURI = message.ExtractURI(from)
		if tag := message.GetParam(from, "tag"); tag != "" {
			d.PeerTag = tag
		}
	}
}

// ApplyDialogCreatingResponse is the response-direction twin: the peer tag
// comes from To, and Record-Route headers are stored reversed because the
// response walked the proxy chain backward.
func (d *Dialog) ApplyDialogCreatingResponse(msg *message.SIPMessage) {
	d.Established = true
	d.SetTarget(msg.Header("Contact"))
	if routes := msg.AllHeaders("Record-Route"); routes != nil {
		reversed := make([]string, len(routes))
		for i, route := range routes {
			reversed[len(routes)-1-i] = route
		}
		d.RouteSet = reversed
	}
	if to := msg.Header("To"); to != "" {
		d.PeerURI = message.ExtractURI(to)
		if tag := message.GetParam(to, "tag"); tag != "" {
			d.PeerTag = tag
		}
	}
}
