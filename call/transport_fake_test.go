package call

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rkd91/quaff/message"
)

// fakeTransport captures sends and feeds scripted inbound messages, in the
// channel-backed style the rest of the repo uses for collaborator fakes.
type fakeTransport struct {
	kind    string
	sent    chan []byte
	inbound chan *message.SIPMessage

	mu           sync.Mutex
	deregistered []string
}

func newFakeTransport(kind string) *fakeTransport {
	return &fakeTransport{
		kind:    kind,
		sent:    make(chan []byte, 64),
		inbound: make(chan *message.SIPMessage, 64),
	}
}

func (f *fakeTransport) Send(data []byte, dest net.Addr) error {
	f.sent <- append([]byte(nil), data...)
	return nil
}

func (f *fakeTransport) Receive(callID string, timeout time.Duration) (*message.SIPMessage, error) {
	select {
	case msg := <-f.inbound:
		return msg, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("call %s: %w", callID, ErrReceiveTimeout)
	}
}

func (f *fakeTransport) Register(callID string) {}

func (f *fakeTransport) Deregister(callID string) {
	f.mu.Lock()
	f.deregistered = append(f.deregistered, callID)
	f.mu.Unlock()
}

func (f *fakeTransport) Kind() string          { return f.kind }
func (f *fakeTransport) LocalHostname() string { return "127.0.0.1" }
func (f *fakeTransport) LocalPort() int        { return 5060 }
func (f *fakeTransport) DefaultContact() string {
	return "<sip:quaff@127.0.0.1:5060>"
}

// lastSent pops the next captured frame, parsed, failing the test flow if
// nothing was sent.
func (f *fakeTransport) lastSent() (*message.SIPMessage, error) {
	select {
	case data := <-f.sent:
		return message.Parse(data)
	case <-time.After(time.Second):
		return nil, fmt.Errorf("nothing was sent")
	}
}

func (f *fakeTransport) sentCount() int {
	return len(f.sent)
}

func inboundRequest(method, cseq string, extra map[string]string) *message.SIPMessage {
	headers := map[string][]string{
		"call-id": {"test-call"},
		"cseq":    {cseq},
		"via":     {"SIP/2.0/UDP 10.0.0.2:5060;branch=z9hG4bKpeer"},
		"from":    {"<sip:bob@example.com>;tag=peer-tag"},
		"to":      {"<sip:alice@example.com>"},
		"contact": {"<sip:bob@10.0.0.2:5060>"},
	}
	for name, value := range extra {
		headers[name] = []string{value}
	}
	return message.NewRequest(method, "sip:alice@example.com", headers, nil)
}

func inboundResponse(code int, reason string, extra map[string][]string) *message.SIPMessage {
	headers := map[string][]string{
		"call-id": {"test-call"},
		"cseq":    {"1 INVITE"},
		"via":     {"SIP/2.0/UDP 127.0.0.1:5060;branch=z9hG4bKlocal"},
		"from":    {"<sip:alice@example.com>;tag=local-tag"},
		"to":      {"<sip:bob@example.com>;tag=peer-tag"},
		"contact": {"<sip:bob@10.0.0.2:5060>"},
	}
	for name, values := range extra {
		headers[name] = values
	}
	return message.NewResponse(code, reason, headers, nil)
}
