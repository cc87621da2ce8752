package call

import (
	"fmt"

	"github.com/rkd91/quaff/message"
)

const identity = "quaff/1.0"

func nameAddr(uri, tag string) string {
	if tag == "" {
		return "<" + uri + ">"
	}
	return fmt.Sprintf("<%s>;tag=%s", uri, tag)
}

// buildRequest computes the default headers for an in-dialog request from
// the dialog state and via context, then lets caller overrides win on any
// collision.
func (c *Call) buildRequest(method string, o *sendOptions) (*message.SIPMessage, error) {
	d := c.dialog
	if d.Target == "" {
		return nil, ErrMissingTarget
	}

	headers := map[string][]string{
		"call-id":      {d.CallID},
		"via":          append([]string(nil), c.lastVia...),
		"max-forwards": {"70"},
		"user-agent":   {identity},
		"contact":      {c.tp.DefaultContact()},
		"from":         {nameAddr(d.LocalURI, d.LocalTag)},
	}

	// ACK and CANCEL belong to the transaction of the request they follow,
	// so they reuse the current sequence number unincremented.
	d.Seq.Method = method
	if method == "ACK" || method == "CANCEL" {
		headers["cseq"] = []string{d.Seq.String()}
	} else {
		headers["cseq"] = []string{d.Seq.Increment()}
	}

	peerTag := ""
	if d.Established {
		peerTag = d.PeerTag
	}
	headers["to"] = []string{nameAddr(d.PeerURI, peerTag)}

	if len(d.RouteSet) > 0 {
		headers["route"] = append([]string(nil), d.RouteSet...)
	}
	if o.contentType != "" {
		headers["content-type"] = []string{o.contentType}
	}

	for name, values := range o.headers {
		headers[name] = values
	}

	return message.NewRequest(method, d.Target, headers, o.body), nil
}

// buildResponse computes a response's default headers. When linked to a
// received request it echoes that request's Via set and CSeq verbatim;
// otherwise it falls back to the call's own via context and counter.
func (c *Call) buildResponse(code int, reason string, o *sendOptions) (*message.SIPMessage, error) {
	d := c.dialog

	req := o.respondTo
	if req == nil {
		req = c.lastRecvReq
	}

	headers := map[string][]string{
		"call-id": {d.CallID},
		"server":  {identity},
		"contact": {c.tp.DefaultContact()},
		"to":      {nameAddr(d.LocalURI, d.LocalTag)},
		"from":    {nameAddr(d.PeerURI, d.PeerTag)},
	}

	if req != nil {
		headers["cseq"] = []string{req.Header("CSeq")}
		headers["via"] = append([]string(nil), req.AllHeaders("Via")...)
	} else {
		headers["cseq"] = []string{d.Seq.String()}
		headers["via"] = append([]string(nil), c.lastVia...)
	}

	// Already pre-reversed if it was learned from a response.
	if len(d.RouteSet) > 0 {
		headers["record-route"] = append([]string(nil), d.RouteSet...)
	}
	if o.contentType != "" {
		headers["content-type"] = []string{o.contentType}
	}

	for name, values := range o.headers {
		headers[name] = values
	}

	return message.NewResponse(code, reason, headers, o.body), nil
}
