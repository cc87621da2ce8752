package util

import (
	"time"
)

// Timer wraps time.Timer so it can be restarted safely: Stop always drains
// a fired-but-unread channel before the next Reset.
type Timer struct {
	timer    *time.Timer
	duration time.Duration
}

func NewTimer() Timer {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	return Timer{timer: timer}
}

func (t *Timer) Start(duration time.Duration) {
	if !t.timer.Stop() {
		select {
		case <-t.timer.C:
		default:
		}
	}

	t.duration = duration
	t.timer.Reset(duration)
}

func (t *Timer) Stop() {
	if !t.timer.Stop() {
		select {
		case <-t.timer.C:
		default:
		}
	}
}

func (t Timer) Chan() <-chan time.Time {
	return t.timer.C
}

func (t Timer) Duration() time.Duration {
	return t.duration
}
