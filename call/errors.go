package call

import (
	"errors"
	"fmt"
	"time"

	"github.com/rkd91/quaff/message"
)

// ErrReceiveTimeout is the signal a Transport wraps when its receive
// deadline passes with no message.
var ErrReceiveTimeout = errors.New("receive timed out")

// ErrMissingTarget means a request was built with no resolvable
// destination URI.
var ErrMissingTarget = errors.New("no target URI for request")

// ErrCallEnded is returned by any operation on a call after End.
var ErrCallEnded = errors.New("call already ended")

// TimeoutError reports that nothing matching the expectation arrived
// before the deadline. It wraps ErrReceiveTimeout.
type TimeoutError struct {
	Expected string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no %s received within %v", e.Expected, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrReceiveTimeout
}

// UnexpectedMessageError reports a message that matched none of the
// expected candidates. The received message is carried for diagnosis.
type UnexpectedMessageError struct {
	Expected string
	Received *message.SIPMessage
}

func (e *UnexpectedMessageError) Error() string {
	return fmt.Sprintf("expected %s, received:\n%s", e.Expected, e.Received.Serialize())
}

// RetransmissionExceededError is reported through the call's fatal handler
// when the backoff ceiling is reached without cancellation. It originates
// on a background task, so it has no synchronous receiver; the default
// handler terminates the process.
type RetransmissionExceededError struct {
	CallID   string
	Interval time.Duration
}

func (e *RetransmissionExceededError) Error() string {
	return fmt.Sprintf("call %s: retransmission interval %v reached the ceiling without a reply", e.CallID, e.Interval)
}
