package message

import (
	"sort"
	"strconv"
	"strings"
)

// Wire order for the common headers; anything else follows alphabetically,
// with Content-Length always last before the body.
var headerOrder = []string{
	"via",
	"max-forwards",
	"record-route",
	"route",
	"from",
	"to",
	"call-id",
	"cseq",
	"contact",
	"user-agent",
	"server",
	"content-type",
}

var canonicalNames = map[string]string{
	"call-id":          "Call-ID",
	"cseq":             "CSeq",
	"www-authenticate": "WWW-Authenticate",
	"sip-etag":         "SIP-ETag",
	"sip-if-match":     "SIP-If-Match",
	"mime-version":     "MIME-Version",
}

// CanonicalName renders a lowercase header name the way it is usually
// written on the wire (Call-ID, CSeq, Max-Forwards).
func CanonicalName(name string) string {
	if canonical, ok := canonicalNames[name]; ok {
		return canonical
	}
	segments := strings.Split(name, "-")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		segments[i] = strings.ToUpper(seg[:1]) + seg[1:]
	}
	return strings.Join(segments, "-")
}

// Serialize renders the message in wire format.
func (m *SIPMessage) Serialize() []byte {
	var buf strings.Builder

	if m.Request != nil {
		buf.WriteString(m.Request.Method)
		buf.WriteString(" ")
		buf.WriteString(m.Request.RequestURI)
		buf.WriteString(" SIP/2.0\r\n")
	} else {
		buf.WriteString("SIP/2.0 ")
		buf.WriteString(strconv.Itoa(m.Response.StatusCode))
		buf.WriteString(" ")
		buf.WriteString(m.Response.ReasonPhrase)
		buf.WriteString("\r\n")
	}

	writeHeader := func(key string) {
		for _, value := range m.Headers[key] {
			buf.WriteString(CanonicalName(key))
			buf.WriteString(": ")
			buf.WriteString(value)
			buf.WriteString("\r\n")
		}
	}

	written := make(map[string]bool, len(m.Headers))
	for _, key := range headerOrder {
		if _, ok := m.Headers[key]; ok {
			writeHeader(key)
			written[key] = true
		}
	}

	var rest []string
	for key := range m.Headers {
		if !written[key] && key != "content-length" {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		writeHeader(key)
	}

	if _, ok := m.Headers["content-length"]; ok {
		writeHeader("content-length")
	} else {
		buf.WriteString("Content-Length: ")
		buf.WriteString(strconv.Itoa(len(m.Body)))
		buf.WriteString("\r\n")
	}

	buf.WriteString("\r\n")
	buf.Write(m.Body)

	return []byte(buf.String())
}
