package transport

// Option configures a transport at creation.
type Option func(*options)

type options struct {
	peer    string
	contact string
}

// WithPeer sets the default destination for sends that don't yet have a
// learned peer address (the first request of an outbound call).
func WithPeer(addr string) Option {
	return func(o *options) { o.peer = addr }
}

// WithContact overrides the advertised Contact header value.
func WithContact(contact string) Option {
	return func(o *options) { o.contact = contact }
}
