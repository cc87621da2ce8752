package call

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rkd91/quaff/message"
)

// Patterns are unanchored regexes: a plain "INVITE" or "18" matches as a
// substring of the method token or the stringified status code unless the
// pattern anchors itself.

type candidateKind int

const (
	methodCandidate candidateKind = iota
	statusCandidate
)

// Candidate is one expected-message pattern for RecvAnyOf: either a method
// pattern (request) or a status pattern (response), with an optional
// per-entry dialog-creating override. Without an override, request
// candidates create the dialog and response candidates do not.
type Candidate struct {
	kind           candidateKind
	pattern        string
	dialogCreating *bool
}

// Method expects a request whose method matches pattern.
func Method(pattern string) Candidate {
	return Candidate{kind: methodCandidate, pattern: pattern}
}

// Status expects a response whose status code matches pattern.
func Status(pattern string) Candidate {
	return Candidate{kind: statusCandidate, pattern: pattern}
}

// StatusCode expects a response with exactly the given code.
func StatusCode(code int) Candidate {
	return Status("^" + strconv.Itoa(code) + "$")
}

// DialogCreating overrides whether a match against this candidate updates
// dialog state.
func (c Candidate) DialogCreating(v bool) Candidate {
	c.dialogCreating = &v
	return c
}

func (c Candidate) creating() bool {
	if c.dialogCreating != nil {
		return *c.dialogCreating
	}
	return c.kind == methodCandidate
}

func (c Candidate) String() string {
	if c.kind == methodCandidate {
		return c.pattern
	}
	return "status " + c.pattern
}

func matchRequest(msg *message.SIPMessage, methodPattern string) (bool, error) {
	if !msg.IsRequest() {
		return false, nil
	}
	re, err := regexp.Compile(methodPattern)
	if err != nil {
		return false, fmt.Errorf("bad method pattern %q: %w", methodPattern, err)
	}
	return re.MatchString(msg.Request.Method), nil
}

// matchResponse reports whether the message satisfies the code pattern.
// retry means the status code is on the ignored list and the caller must
// re-arm the receive transparently.
func matchResponse(msg *message.SIPMessage, codePattern string, ignored []int) (match, retry bool, err error) {
	if !msg.IsResponse() {
		return false, false, nil
	}
	for _, code := range ignored {
		if msg.Response.StatusCode == code {
			return false, true, nil
		}
	}
	re, err := regexp.Compile(codePattern)
	if err != nil {
		return false, false, fmt.Errorf("bad status pattern %q: %w", codePattern, err)
	}
	return re.MatchString(strconv.Itoa(msg.Response.StatusCode)), false, nil
}

// matchAnyOf evaluates candidates in order and returns the index of the
// first structural match, or -1. There is no backtracking once one fires.
func matchAnyOf(msg *message.SIPMessage, candidates []Candidate) (int, error) {
	for i, cand := range candidates {
		re, err := regexp.Compile(cand.pattern)
		if err != nil {
			return -1, fmt.Errorf("bad pattern %q: %w", cand.pattern, err)
		}
		switch cand.kind {
		case methodCandidate:
			if msg.IsRequest() && re.MatchString(msg.Request.Method) {
				return i, nil
			}
		case statusCandidate:
			if msg.IsResponse() && re.MatchString(strconv.Itoa(msg.Response.StatusCode)) {
				return i, nil
			}
		}
	}
	return -1, nil
}

func describeCandidates(candidates []Candidate) string {
	parts := make([]string, len(candidates))
	for i, cand := range candidates {
		parts[i] = cand.String()
	}
	return "one of [" + strings.Join(parts, ", ") + "]"
}
