package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rkd91/quaff/message"
)

// TCP is the connection-oriented transport. Sockets are registered for
// receiving explicitly: accepted connections automatically, dialed ones
// through Connect.
type TCP struct {
	listener net.Listener
	contact  string
	demux    *demux
	done     chan struct{}

	mu    sync.Mutex
	conns map[string]net.Conn
	peer  net.Conn
}

// NewTCP listens on listenAddr and accepts inbound connections. With
// WithPeer an outbound connection is dialed up front.
func NewTCP(listenAddr string, opts ...Option) (*TCP, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", listenAddr, err)
	}

	t := &TCP{
		listener: listener,
		contact:  o.contact,
		demux:    newDemux(),
		done:     make(chan struct{}),
		conns:    make(map[string]net.Conn),
	}
	go t.acceptLoop()

	if o.peer != "" {
		if err := t.Connect(o.peer); err != nil {
			t.Close()
			return nil, err
		}
	}
	log.Debug().Stringer("addr", listener.Addr()).Msg("tcp transport listening")
	return t, nil
}

// Connect dials the remote endpoint and registers the socket for
// receiving. The first connection becomes the default send destination.
func (t *TCP) Connect(remote string) error {
	conn, err := net.Dial("tcp", remote)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", remote, err)
	}
	t.RegisterConn(conn)
	return nil
}

func (t *TCP) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			log.Error().Err(err).Msg("tcp accept failed")
			return
		}
		t.RegisterConn(conn)
	}
}

// RegisterConn starts receiving messages from a socket.
func (t *TCP) RegisterConn(conn net.Conn) {
	t.mu.Lock()
	t.conns[conn.RemoteAddr().String()] = conn
	if t.peer == nil {
		t.peer = conn
	}
	t.mu.Unlock()
	go t.readLoop(conn)
}

func (t *TCP) readLoop(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		raw, err := readFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Error().Err(err).Stringer("from", conn.RemoteAddr()).Msg("tcp read failed")
			}
			t.mu.Lock()
			delete(t.conns, conn.RemoteAddr().String())
			if t.peer == conn {
				t.peer = nil
			}
			t.mu.Unlock()
			conn.Close()
			return
		}

		msg, err := message.Parse(raw)
		if err != nil {
			log.Error().Err(err).Stringer("from", conn.RemoteAddr()).Msg("dropping unparseable frame")
			continue
		}
		msg.Source = conn.RemoteAddr()
		t.demux.dispatch(msg)
	}
}

// readFrame reads one SIP message off the stream: the header block up to
// the blank line, then as many body bytes as Content-Length announces.
func readFrame(reader *bufio.Reader) ([]byte, error) {
	var frame strings.Builder
	contentLength := 0
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		frame.WriteString(line)
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			break
		}
		if colon := strings.Index(trimmed, ":"); colon != -1 {
			name := strings.ToLower(strings.TrimSpace(trimmed[:colon]))
			if name == "content-length" {
				n, err := strconv.Atoi(strings.TrimSpace(trimmed[colon+1:]))
				if err != nil {
					return nil, fmt.Errorf("bad Content-Length %q: %w", trimmed, err)
				}
				contentLength = n
			}
		}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, fmt.Errorf("reading %d body bytes: %w", contentLength, err)
	}
	return append([]byte(frame.String()), body...), nil
}

func (t *TCP) Send(data []byte, dest net.Addr) error {
	t.mu.Lock()
	conn := t.peer
	if dest != nil {
		if c, ok := t.conns[dest.String()]; ok {
			conn = c
		}
	}
	t.mu.Unlock()

	if conn == nil {
		return errors.New("no connection to send on")
	}
	_, err := conn.Write(data)
	return err
}

func (t *TCP) Receive(callID string, timeout time.Duration) (*message.SIPMessage, error) {
	return t.demux.receive(callID, timeout)
}

// AcceptCall blocks for the first message of a call nobody has claimed
// yet and returns its Call-ID, already registered for receiving.
func (t *TCP) AcceptCall(timeout time.Duration) (string, error) {
	return t.demux.acceptPending(timeout)
}

func (t *TCP) Register(callID string) {
	t.demux.register(callID)
}

func (t *TCP) Deregister(callID string) {
	t.demux.deregister(callID)
}

func (t *TCP) Kind() string {
	return "TCP"
}

func (t *TCP) LocalHostname() string {
	host, _, _ := net.SplitHostPort(t.listener.Addr().String())
	return host
}

func (t *TCP) LocalPort() int {
	_, port, _ := net.SplitHostPort(t.listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

func (t *TCP) DefaultContact() string {
	if t.contact != "" {
		return t.contact
	}
	return fmt.Sprintf("<sip:quaff@%s:%d;transport=tcp>", t.LocalHostname(), t.LocalPort())
}

// Close shuts the listener and every registered connection.
func (t *TCP) Close() error {
	close(t.done)
	err := t.listener.Close()
	t.mu.Lock()
	for _, conn := range t.conns {
		conn.Close()
	}
	t.conns = make(map[string]net.Conn)
	t.peer = nil
	t.mu.Unlock()
	return err
}
