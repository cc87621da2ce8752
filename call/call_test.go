package call

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reliable fake so no retransmission loops run under these tests.
func newTestCall(t *testing.T, localURI, targetURI string) (*Call, *fakeTransport) {
	t.Helper()
	tp := newFakeTransport("TCP")
	c := New(tp, localURI, targetURI,
		WithCallID("test-call"),
		WithLocalTag("local-tag"),
	)
	t.Cleanup(func() { _ = c.End() })
	return c, tp
}

func TestSendRequestCSeqProgression(t *testing.T) {
	c, tp := newTestCall(t, "sip:alice@example.com", "sip:bob@example.com")

	require.NoError(t, c.SendRequest("INVITE"))
	sent, err := tp.lastSent()
	require.NoError(t, err)
	assert.Equal(t, "1 INVITE", sent.Header("CSeq"))

	require.NoError(t, c.SendRequest("ACK"))
	sent, err = tp.lastSent()
	require.NoError(t, err)
	assert.Equal(t, "1 ACK", sent.Header("CSeq"), "ACK reuses the sequence number")

	require.NoError(t, c.SendRequest("CANCEL"))
	sent, err = tp.lastSent()
	require.NoError(t, err)
	assert.Equal(t, "1 CANCEL", sent.Header("CSeq"), "CANCEL reuses the sequence number")

	require.NoError(t, c.SendRequest("BYE"))
	sent, err = tp.lastSent()
	require.NoError(t, err)
	assert.Equal(t, "2 BYE", sent.Header("CSeq"))
}

func TestSendRequestDefaults(t *testing.T) {
	c, tp := newTestCall(t, "sip:alice@example.com", "sip:bob@example.com")

	require.NoError(t, c.SendRequest("INVITE"))
	sent, err := tp.lastSent()
	require.NoError(t, err)

	require.True(t, sent.IsRequest())
	assert.Equal(t, "sip:bob@example.com", sent.Request.RequestURI)
	assert.Equal(t, "test-call", sent.Header("Call-ID"))
	assert.Equal(t, "70", sent.Header("Max-Forwards"))
	assert.Equal(t, "<sip:alice@example.com>;tag=local-tag", sent.Header("From"))
	assert.Equal(t, "<sip:bob@example.com>", sent.Header("To"), "no peer tag before establishment")
	assert.Equal(t, "<sip:quaff@127.0.0.1:5060>", sent.Header("Contact"))
	assert.Contains(t, sent.Header("Via"), "SIP/2.0/TCP 127.0.0.1:5060;branch=z9hG4bK")
	assert.Equal(t, identity, sent.Header("User-Agent"))
}

func TestSendRequestFreshBranchPerTransaction(t *testing.T) {
	c, tp := newTestCall(t, "sip:alice@example.com", "sip:bob@example.com")

	require.NoError(t, c.SendRequest("INVITE"))
	first, err := tp.lastSent()
	require.NoError(t, err)

	require.NoError(t, c.SendRequest("INVITE"))
	second, err := tp.lastSent()
	require.NoError(t, err)
	assert.NotEqual(t, first.Header("Via"), second.Header("Via"))

	require.NoError(t, c.SendRequest("CANCEL", ReuseTransaction()))
	cancel, err := tp.lastSent()
	require.NoError(t, err)
	assert.Equal(t, second.Header("Via"), cancel.Header("Via"),
		"a reused transaction keeps the branch")
}

func TestSendRequestMissingTarget(t *testing.T) {
	c, _ := newTestCall(t, "sip:alice@example.com", "")
	assert.ErrorIs(t, c.SendRequest("INVITE"), ErrMissingTarget)
}

func TestSendRequestOverridesWin(t *testing.T) {
	c, tp := newTestCall(t, "sip:alice@example.com", "sip:bob@example.com")

	require.NoError(t, c.SendRequest("INVITE",
		WithHeader("Max-Forwards", "5"),
		WithHeaders(map[string]string{"User-Agent": "scripted/0.1"}),
	))
	sent, err := tp.lastSent()
	require.NoError(t, err)
	assert.Equal(t, "5", sent.Header("Max-Forwards"))
	assert.Equal(t, "scripted/0.1", sent.Header("User-Agent"))
}

func TestSendRequestSDPBody(t *testing.T) {
	c, tp := newTestCall(t, "sip:alice@example.com", "sip:bob@example.com")

	body, err := DefaultSDPBody("127.0.0.1", 10000)
	require.NoError(t, err)
	require.NoError(t, c.SendRequest("INVITE", WithSDP(body)))

	sent, err := tp.lastSent()
	require.NoError(t, err)
	assert.Equal(t, "application/sdp", sent.Header("Content-Type"))
	assert.Equal(t, body, sent.Body)
}

func TestSendResponseEchoesRequest(t *testing.T) {
	c, tp := newTestCall(t, "sip:alice@example.com", "")

	tp.inbound <- inboundRequest("INVITE", "42 INVITE", nil)
	_, err := c.RecvRequest("INVITE")
	require.NoError(t, err)

	require.NoError(t, c.SendResponse(200, "OK"))
	sent, err := tp.lastSent()
	require.NoError(t, err)

	require.True(t, sent.IsResponse())
	assert.Equal(t, 200, sent.Response.StatusCode)
	assert.Equal(t, "42 INVITE", sent.Header("CSeq"), "CSeq echoed verbatim")
	assert.Equal(t, "SIP/2.0/UDP 10.0.0.2:5060;branch=z9hG4bKpeer", sent.Header("Via"),
		"Via copied from the request")
	assert.Equal(t, "<sip:alice@example.com>;tag=local-tag", sent.Header("To"))
	assert.Equal(t, "<sip:bob@example.com>;tag=peer-tag", sent.Header("From"))
	assert.Equal(t, identity, sent.Header("Server"))
}

func TestSendResponseRespondToLinkage(t *testing.T) {
	c, tp := newTestCall(t, "sip:alice@example.com", "")

	tp.inbound <- inboundRequest("INVITE", "7 INVITE", nil)
	invite, err := c.RecvRequest("INVITE")
	require.NoError(t, err)

	tp.inbound <- inboundRequest("INFO", "8 INFO", nil)
	_, err = c.RecvRequest("INFO", DialogCreating(false))
	require.NoError(t, err)

	require.NoError(t, c.SendResponse(200, "OK", RespondTo(invite)))
	sent, err := tp.lastSent()
	require.NoError(t, err)
	assert.Equal(t, "7 INVITE", sent.Header("CSeq"),
		"linked response echoes its own request, not the dialog counter")
}

func TestRecvRequestTimeout(t *testing.T) {
	c, _ := newTestCall(t, "sip:alice@example.com", "")

	_, err := c.RecvRequest("INVITE", Within(20*time.Millisecond))
	require.Error(t, err)

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "INVITE", timeout.Expected, "timeout names the expected method")
	assert.ErrorIs(t, err, ErrReceiveTimeout)
}

func TestRecvRequestUnexpectedMessage(t *testing.T) {
	c, tp := newTestCall(t, "sip:alice@example.com", "")

	tp.inbound <- inboundResponse(200, "OK", nil)
	_, err := c.RecvRequest("INVITE", Within(time.Second))
	require.Error(t, err)

	var unexpected *UnexpectedMessageError
	require.ErrorAs(t, err, &unexpected)
	assert.NotErrorIs(t, err, ErrReceiveTimeout, "unexpected message is not a timeout")
	assert.Contains(t, unexpected.Error(), "SIP/2.0 200 OK")
}

func TestRecvRequestUpdatesDialog(t *testing.T) {
	c, tp := newTestCall(t, "sip:alice@example.com", "")

	tp.inbound <- inboundRequest("INVITE", "42 INVITE", map[string]string{
		"record-route": "<sip:p1;lr>",
	})
	_, err := c.RecvRequest("INVITE")
	require.NoError(t, err)

	d := c.Dialog()
	assert.True(t, d.Established)
	assert.Equal(t, 42, d.Seq.Number)
	assert.Equal(t, "peer-tag", d.PeerTag)
	assert.Equal(t, "sip:bob@10.0.0.2:5060", d.Target)
	assert.Equal(t, []string{"<sip:p1;lr>"}, d.RouteSet)
}

func TestRecvRequestDialogCreatingFalse(t *testing.T) {
	c, tp := newTestCall(t, "sip:alice@example.com", "")

	tp.inbound <- inboundRequest("INVITE", "42 INVITE", nil)
	_, err := c.RecvRequest("INVITE", DialogCreating(false))
	require.NoError(t, err)

	d := c.Dialog()
	assert.False(t, d.Established, "explicit false is honored")
	assert.Equal(t, 42, d.Seq.Number, "sequence still tracked for response echo")
}

func TestRecvResponseIgnoredCodes(t *testing.T) {
	c, tp := newTestCall(t, "sip:alice@example.com", "sip:bob@example.com")

	tp.inbound <- inboundResponse(100, "Trying", nil)
	tp.inbound <- inboundResponse(200, "OK", nil)

	msg, err := c.RecvResponse("200", IgnoreResponses(100))
	require.NoError(t, err)
	assert.Equal(t, 200, msg.Response.StatusCode, "the 100 never surfaces")
}

func TestRecvResponseDialogCreating(t *testing.T) {
	c, tp := newTestCall(t, "sip:alice@example.com", "sip:bob@example.com")

	require.NoError(t, c.SendRequest("INVITE"))
	_, err := tp.lastSent()
	require.NoError(t, err)

	tp.inbound <- inboundResponse(200, "OK", map[string][]string{
		"record-route": {"<sip:a;lr>", "<sip:b;lr>", "<sip:c;lr>"},
	})
	_, err = c.RecvResponse("200", DialogCreating(true))
	require.NoError(t, err)

	d := c.Dialog()
	assert.True(t, d.Established)
	assert.Equal(t, "peer-tag", d.PeerTag)
	assert.Equal(t, []string{"<sip:c;lr>", "<sip:b;lr>", "<sip:a;lr>"}, d.RouteSet)

	// The next request routes through the learned set and tags the peer.
	require.NoError(t, c.SendRequest("BYE"))
	bye, err := tp.lastSent()
	require.NoError(t, err)
	assert.Equal(t, "sip:bob@10.0.0.2:5060", bye.Request.RequestURI)
	assert.Equal(t, []string{"<sip:c;lr>", "<sip:b;lr>", "<sip:a;lr>"}, bye.AllHeaders("Route"))
	assert.Equal(t, "<sip:bob@example.com>;tag=peer-tag", bye.Header("To"))
}

func TestRecvAnyOf(t *testing.T) {
	candidates := []Candidate{
		Method("INVITE"),
		Status("301"),
		Method("ACK").DialogCreating(false),
		Status("200").DialogCreating(true),
	}

	t.Run("dialog-creating response", func(t *testing.T) {
		c, tp := newTestCall(t, "sip:alice@example.com", "sip:bob@example.com")

		tp.inbound <- inboundResponse(200, "OK", nil)
		msg, idx, err := c.RecvAnyOf(candidates)
		require.NoError(t, err)
		assert.Equal(t, 3, idx)
		assert.True(t, msg.IsResponse())
		assert.True(t, c.Dialog().Established, "override makes the 200 dialog-creating")
		assert.Equal(t, "peer-tag", c.Dialog().PeerTag)
		assert.Equal(t, "sip:bob@10.0.0.2:5060", c.Dialog().Target)
	})

	t.Run("non-creating request", func(t *testing.T) {
		c, tp := newTestCall(t, "sip:alice@example.com", "sip:bob@example.com")

		tp.inbound <- inboundRequest("ACK", "1 ACK", nil)
		_, idx, err := c.RecvAnyOf(candidates)
		require.NoError(t, err)
		assert.Equal(t, 2, idx)
		assert.False(t, c.Dialog().Established, "ACK must not update dialog state")
	})

	t.Run("no match", func(t *testing.T) {
		c, tp := newTestCall(t, "sip:alice@example.com", "sip:bob@example.com")

		tp.inbound <- inboundRequest("OPTIONS", "9 OPTIONS", nil)
		_, _, err := c.RecvAnyOf(candidates, Within(time.Second))
		var unexpected *UnexpectedMessageError
		require.ErrorAs(t, err, &unexpected)
	})
}

func TestEnd(t *testing.T) {
	c, tp := newTestCall(t, "sip:alice@example.com", "sip:bob@example.com")

	require.NoError(t, c.End())
	assert.True(t, c.Ended())
	tp.mu.Lock()
	assert.Contains(t, tp.deregistered, "test-call")
	tp.mu.Unlock()

	assert.ErrorIs(t, c.SendRequest("BYE"), ErrCallEnded)
	_, err := c.RecvRequest("BYE")
	assert.ErrorIs(t, err, ErrCallEnded)
	_, err = c.RecvResponse("200")
	assert.ErrorIs(t, err, ErrCallEnded)

	assert.NoError(t, c.End(), "ending twice is a no-op")
}

func TestGeneratedIdentifiers(t *testing.T) {
	tp := newFakeTransport("TCP")
	a := New(tp, "sip:alice@example.com", "sip:bob@example.com")
	b := New(tp, "sip:alice@example.com", "sip:bob@example.com")
	defer a.End()
	defer b.End()

	assert.NotEmpty(t, a.CallID())
	assert.NotEqual(t, a.CallID(), b.CallID())
	assert.NotEmpty(t, a.Dialog().LocalTag)
	assert.NotEqual(t, a.Dialog().LocalTag, b.Dialog().LocalTag)
}

func TestRecvResponseTimeoutNamesPattern(t *testing.T) {
	c, _ := newTestCall(t, "sip:alice@example.com", "sip:bob@example.com")

	_, err := c.RecvResponse("200", Within(20*time.Millisecond))
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Contains(t, timeout.Error(), "200")
	assert.True(t, errors.Is(err, ErrReceiveTimeout))
}
