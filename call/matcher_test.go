package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchRequest(t *testing.T) {
	invite := inboundRequest("INVITE", "1 INVITE", nil)

	ok, err := matchRequest(invite, "INVITE")
	require.NoError(t, err)
	assert.True(t, ok)

	// Substring semantics: an unanchored pattern matches part of the token.
	ok, err = matchRequest(invite, "INV")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = matchRequest(invite, "^BYE$")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = matchRequest(inboundResponse(200, "OK", nil), "INVITE")
	require.NoError(t, err)
	assert.False(t, ok, "responses never match a method pattern")

	_, err = matchRequest(invite, "(")
	assert.Error(t, err)
}

func TestMatchResponse(t *testing.T) {
	ok200 := inboundResponse(200, "OK", nil)

	match, retry, err := matchResponse(ok200, "200", nil)
	require.NoError(t, err)
	assert.True(t, match)
	assert.False(t, retry)

	match, retry, err = matchResponse(ok200, "2..", nil)
	require.NoError(t, err)
	assert.True(t, match)
	assert.False(t, retry)

	match, retry, err = matchResponse(inboundResponse(100, "Trying", nil), "200", []int{100})
	require.NoError(t, err)
	assert.False(t, match)
	assert.True(t, retry, "ignored codes signal a transparent retry")

	match, retry, err = matchResponse(inboundRequest("INVITE", "1 INVITE", nil), "200", nil)
	require.NoError(t, err)
	assert.False(t, match)
	assert.False(t, retry)
}

func TestMatchAnyOfFirstMatchWins(t *testing.T) {
	candidates := []Candidate{
		Method("INVITE"),
		Status("1.."),
		Status("180"),
	}

	idx, err := matchAnyOf(inboundResponse(180, "Ringing", nil), candidates)
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "no backtracking past the first structural match")

	idx, err = matchAnyOf(inboundRequest("INVITE", "1 INVITE", nil), candidates)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = matchAnyOf(inboundRequest("BYE", "2 BYE", nil), candidates)
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
}

func TestCandidateDialogCreatingDefaults(t *testing.T) {
	assert.True(t, Method("INVITE").creating(), "request candidates default to dialog-creating")
	assert.False(t, Status("200").creating(), "response candidates default to non-dialog-creating")

	assert.False(t, Method("ACK").DialogCreating(false).creating())
	assert.True(t, Status("200").DialogCreating(true).creating())
}

func TestStatusCode(t *testing.T) {
	idx, err := matchAnyOf(inboundResponse(200, "OK", nil), []Candidate{StatusCode(20)})
	require.NoError(t, err)
	assert.Equal(t, -1, idx, "StatusCode anchors the whole code")

	idx, err = matchAnyOf(inboundResponse(200, "OK", nil), []Candidate{StatusCode(200)})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}
