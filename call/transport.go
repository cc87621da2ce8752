package call

import (
	"net"
	"time"

	"github.com/rkd91/quaff/message"
)

// Transport is the connection collaborator a Call sends and receives
// through. Implementations own the sockets and route inbound messages to
// the right call by Call-ID; see the transport package for the concrete
// UDP and TCP versions.
type Transport interface {
	// Send transmits a rendered message toward dest. A nil dest means the
	// transport's configured peer.
	Send(data []byte, dest net.Addr) error

	// Receive blocks for the next inbound message routed to callID. It
	// returns an error wrapping ErrReceiveTimeout when the deadline passes
	// with nothing matching.
	Receive(callID string, timeout time.Duration) (*message.SIPMessage, error)

	// Register creates the inbound queue for a call. Deregister drops it;
	// later messages for that Call-ID are discarded.
	Register(callID string)
	Deregister(callID string)

	// Kind reports the transport protocol ("UDP", "TCP"). Retransmission
	// is only armed on unreliable transports.
	Kind() string

	LocalHostname() string
	LocalPort() int

	// DefaultContact is the Contact header value advertising this endpoint.
	DefaultContact() string
}
