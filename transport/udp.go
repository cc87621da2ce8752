package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rkd91/quaff/message"
)

// UDP is the connectionless transport. One socket serves every call; the
// read loop parses each datagram and routes it by Call-ID.
type UDP struct {
	conn    *net.UDPConn
	peer    *net.UDPAddr
	contact string
	demux   *demux
	done    chan struct{}
}

// NewUDP binds listenAddr and starts the receive loop.
func NewUDP(listenAddr string, opts ...Option) (*UDP, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", listenAddr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", listenAddr, err)
	}

	t := &UDP{
		conn:    conn,
		contact: o.contact,
		demux:   newDemux(),
		done:    make(chan struct{}),
	}
	if o.peer != "" {
		peer, err := net.ResolveUDPAddr("udp", o.peer)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("resolving peer %s: %w", o.peer, err)
		}
		t.peer = peer
	}

	go t.readLoop()
	log.Debug().Stringer("addr", conn.LocalAddr()).Msg("udp transport listening")
	return t, nil
}

func (t *UDP) readLoop() {
	buffer := make([]byte, 65535)
	for {
		n, addr, err := t.conn.ReadFromUDP(buffer)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			log.Error().Err(err).Msg("udp read failed")
			continue
		}

		// Parse and dispatch inline so datagrams for one call reach its
		// queue in arrival order.
		data := make([]byte, n)
		copy(data, buffer[:n])
		t.handle(data, addr)
	}
}

func (t *UDP) handle(data []byte, addr *net.UDPAddr) {
	msg, err := message.Parse(data)
	if err != nil {
		log.Error().Err(err).Stringer("from", addr).Msg("dropping unparseable datagram")
		return
	}
	msg.Source = addr
	t.demux.dispatch(msg)
}

func (t *UDP) Send(data []byte, dest net.Addr) error {
	if dest == nil {
		if t.peer == nil {
			return errors.New("no destination: nothing received yet and no peer configured")
		}
		dest = t.peer
	}
	_, err := t.conn.WriteTo(data, dest)
	return err
}

func (t *UDP) Receive(callID string, timeout time.Duration) (*message.SIPMessage, error) {
	return t.demux.receive(callID, timeout)
}

// AcceptCall blocks for the first message of a call nobody has claimed
// yet and returns its Call-ID, already registered for receiving.
func (t *UDP) AcceptCall(timeout time.Duration) (string, error) {
	return t.demux.acceptPending(timeout)
}

func (t *UDP) Register(callID string) {
	t.demux.register(callID)
}

func (t *UDP) Deregister(callID string) {
	t.demux.deregister(callID)
}

func (t *UDP) Kind() string {
	return "UDP"
}

func (t *UDP) LocalHostname() string {
	host, _, _ := net.SplitHostPort(t.conn.LocalAddr().String())
	return host
}

func (t *UDP) LocalPort() int {
	_, port, _ := net.SplitHostPort(t.conn.LocalAddr().String())
	n, _ := strconv.Atoi(port)
	return n
}

func (t *UDP) DefaultContact() string {
	if t.contact != "" {
		return t.contact
	}
	return fmt.Sprintf("<sip:quaff@%s:%d>", t.LocalHostname(), t.LocalPort())
}

// Close stops the receive loop and releases the socket.
func (t *UDP) Close() error {
	close(t.done)
	return t.conn.Close()
}
