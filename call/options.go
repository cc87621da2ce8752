package call

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rkd91/quaff/message"
)

const (
	// DefaultT1 and DefaultT2 are the RFC 3261 retransmission floor and
	// ceiling for unreliable transports.
	DefaultT1 = 500 * time.Millisecond
	DefaultT2 = 32 * time.Second

	// DefaultRecvTimeout bounds a single receive operation.
	DefaultRecvTimeout = 30 * time.Second
)

type config struct {
	callID      string
	localTag    string
	t1          time.Duration
	t2          time.Duration
	recvTimeout time.Duration
	onFatal     func(error)
	logger      *zerolog.Logger
}

// Option configures a Call at creation.
type Option func(*config)

// WithCallID overrides the generated Call-ID.
func WithCallID(id string) Option {
	return func(c *config) { c.callID = id }
}

// WithLocalTag overrides the generated local From/To tag.
func WithLocalTag(tag string) Option {
	return func(c *config) { c.localTag = tag }
}

// WithTimers overrides the retransmission floor and ceiling.
func WithTimers(t1, t2 time.Duration) Option {
	return func(c *config) {
		c.t1 = t1
		c.t2 = t2
	}
}

// WithRecvTimeout sets the default deadline for receive operations.
func WithRecvTimeout(d time.Duration) Option {
	return func(c *config) { c.recvTimeout = d }
}

// WithFatalHandler installs the sink for failures raised on background
// retransmission tasks. The default handler logs at fatal level, which
// terminates the process.
func WithFatalHandler(fn func(error)) Option {
	return func(c *config) { c.onFatal = fn }
}

// WithLogger attaches a parent logger; the call derives a sub-logger
// carrying its call_id.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) { c.logger = &logger }
}

type sendOptions struct {
	headers     map[string][]string
	body        []byte
	contentType string
	retransmit  *bool
	reuseTx     bool
	respondTo   *message.SIPMessage
}

// SendOption adjusts one send operation.
type SendOption func(*sendOptions)

func newSendOptions(opts []SendOption) *sendOptions {
	o := &sendOptions{headers: make(map[string][]string)}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithHeader adds a header override; repeated calls for the same name
// accumulate values. Overrides win over computed defaults on collision.
func WithHeader(name, value string) SendOption {
	return func(o *sendOptions) {
		key := strings.ToLower(name)
		o.headers[key] = append(o.headers[key], value)
	}
}

// WithHeaders merges a map of single-valued header overrides.
func WithHeaders(headers map[string]string) SendOption {
	return func(o *sendOptions) {
		for name, value := range headers {
			o.headers[strings.ToLower(name)] = []string{value}
		}
	}
}

// WithBody attaches a body and its content type.
func WithBody(body []byte, contentType string) SendOption {
	return func(o *sendOptions) {
		o.body = body
		o.contentType = contentType
	}
}

// WithSDP attaches an SDP body and sets Content-Type to application/sdp.
func WithSDP(body []byte) SendOption {
	return func(o *sendOptions) {
		o.body = body
		o.contentType = "application/sdp"
	}
}

// WithRetransmission forces retransmission on or off for this send,
// overriding the per-method default (on for requests except ACK, off for
// responses).
func WithRetransmission(enabled bool) SendOption {
	return func(o *sendOptions) { o.retransmit = &enabled }
}

// ReuseTransaction keeps the current Via branch instead of starting a new
// transaction, for requests that belong to the prior one (CANCEL, ACK).
func ReuseTransaction() SendOption {
	return func(o *sendOptions) { o.reuseTx = true }
}

// RespondTo links a response to a specific received request so its Via set
// and CSeq are echoed. Defaults to the most recently received request.
func RespondTo(req *message.SIPMessage) SendOption {
	return func(o *sendOptions) { o.respondTo = req }
}

type recvOptions struct {
	timeout        time.Duration
	dialogCreating bool
	ignored        []int
}

// RecvOption adjusts one receive operation.
type RecvOption func(*recvOptions)

func newRecvOptions(opts []RecvOption, dialogCreating bool) *recvOptions {
	o := &recvOptions{dialogCreating: dialogCreating}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Within overrides the receive deadline for this operation.
func Within(d time.Duration) RecvOption {
	return func(o *recvOptions) { o.timeout = d }
}

// DialogCreating controls whether the received message updates dialog
// state. An explicit false is honored.
func DialogCreating(v bool) RecvOption {
	return func(o *recvOptions) { o.dialogCreating = v }
}

// IgnoreResponses lists status codes that are swallowed transparently; the
// receive is re-armed with its full deadline after each ignored response.
func IgnoreResponses(codes ...int) RecvOption {
	return func(o *recvOptions) { o.ignored = append(o.ignored, codes...) }
}
