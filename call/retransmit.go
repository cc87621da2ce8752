package call

import (
	"context"
	"net"

	"github.com/rkd91/quaff/util"
)

type retransmission struct {
	cancel context.CancelFunc
}

// scheduleRetransmission arms a background resend loop for the message
// just sent. It is a no-op unless enabled and the transport is unreliable.
//
// Only the most recently scheduled retransmission is tracked as current:
// arming a second one before the first is cancelled leaves the first loop
// running until it hits the ceiling on its own. Known limitation, kept.
func (c *Call) scheduleRetransmission(data []byte, dest net.Addr, enabled bool) {
	if !enabled || c.tp.Kind() != "UDP" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.retrans = &retransmission{cancel: cancel}
	go c.retransmitLoop(ctx, data, dest)
}

// cancelRetransmission stops the current retransmission. Called whenever
// any inbound message arrives for this call.
func (c *Call) cancelRetransmission() {
	if c.retrans != nil {
		c.retrans.cancel()
		c.retrans = nil
	}
}

// retransmitLoop resends with doubling backoff starting at T1. When the
// next interval would reach T2 the loop reports through the fatal handler:
// nothing is waiting on this goroutine, so the failure cannot be returned.
func (c *Call) retransmitLoop(ctx context.Context, data []byte, dest net.Addr) {
	timer := util.NewTimer()
	defer timer.Stop()

	for interval := c.t1; ; interval *= 2 {
		if interval >= c.t2 {
			err := &RetransmissionExceededError{CallID: c.dialog.CallID, Interval: interval}
			c.log.Error().Err(err).Msg("retransmission ceiling reached")
			c.onFatal(err)
			return
		}

		timer.Start(interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
		}

		if err := c.tp.Send(data, dest); err != nil {
			c.log.Error().Err(err).Msg("retransmission send failed")
		} else {
			retransmissionsTotal.Inc()
			c.log.Debug().Dur("interval", interval).Msg("retransmitted")
		}
	}
}
