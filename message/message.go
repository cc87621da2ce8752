package message

import (
	"net"
	"strings"
)

type Startline struct {
	Request  *Request
	Response *Response
}

// Request represents the start line of a SIP request.
type Request struct {
	Method     string
	RequestURI string
}

// Response represents the start line of a SIP response.
type Response struct {
	StatusCode   int
	ReasonPhrase string
}

// SIPMessage represents a SIP message. Header names are stored lowercase;
// values keep their received order, which matters for Via and Record-Route.
type SIPMessage struct {
	Startline
	Headers map[string][]string
	Body    []byte
	Source  net.Addr
}

func NewRequest(method, requestURI string, headers map[string][]string, body []byte) *SIPMessage {
	return &SIPMessage{
		Startline: Startline{Request: &Request{Method: method, RequestURI: requestURI}},
		Headers:   headers,
		Body:      body,
	}
}

func NewResponse(statusCode int, reasonPhrase string, headers map[string][]string, body []byte) *SIPMessage {
	return &SIPMessage{
		Startline: Startline{Response: &Response{StatusCode: statusCode, ReasonPhrase: reasonPhrase}},
		Headers:   headers,
		Body:      body,
	}
}

func (m *SIPMessage) IsRequest() bool {
	return m.Request != nil
}

func (m *SIPMessage) IsResponse() bool {
	return m.Response != nil
}

// Header returns the first value of the named header, or "" if absent.
func (m *SIPMessage) Header(name string) string {
	values := m.Headers[strings.ToLower(name)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// AllHeaders returns every value of the named header in received order,
// or nil if the header is absent.
func (m *SIPMessage) AllHeaders(name string) []string {
	return m.Headers[strings.ToLower(name)]
}

func (m *SIPMessage) SetHeader(name, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string][]string)
	}
	m.Headers[strings.ToLower(name)] = []string{value}
}

func (m *SIPMessage) DeepCopy() *SIPMessage {
	cp := *m
	if m.Headers != nil {
		cp.Headers = make(map[string][]string, len(m.Headers))
		for key, values := range m.Headers {
			cp.Headers[key] = append([]string(nil), values...)
		}
	}
	if m.Body != nil {
		cp.Body = append([]byte(nil), m.Body...)
	}
	if m.Request != nil {
		req := *m.Request
		cp.Startline.Request = &req
	}
	if m.Response != nil {
		res := *m.Response
		cp.Startline.Response = &res
	}
	return &cp
}

// GetParam returns the value of a semicolon-delimited parameter inside a
// header value, or "" if the parameter is not present.
func GetParam(header, param string) string {
	for _, part := range strings.Split(header, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 && kv[0] == param {
			return kv[1]
		}
	}
	return ""
}

// SetParam sets the value of a semicolon-delimited parameter in a header
// value, appending the parameter if it is not already there.
func SetParam(header, param, value string) string {
	parts := strings.Split(header, ";")
	for i, part := range parts {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 && kv[0] == param {
			parts[i] = param + "=" + value
			return strings.Join(parts, ";")
		}
	}
	return header + ";" + param + "=" + value
}

// ExtractURI pulls the URI out of an angle-bracket-delimited header value.
// A value without brackets is returned verbatim.
func ExtractURI(header string) string {
	begin := strings.Index(header, "<")
	end := strings.Index(header, ">")
	if begin != -1 && begin < end {
		return header[begin+1 : end]
	}
	return header
}
