package call

import (
	"time"

	"github.com/pion/sdp/v3"
)

// DefaultSDPBody builds a minimal PCMU audio offer for scripts that need a
// plausible session body without writing SDP by hand. Pair it with WithSDP.
func DefaultSDPBody(host string, port int) ([]byte, error) {
	now := uint64(time.Now().Unix())
	session := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      now,
			SessionVersion: now,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: host,
		},
		SessionName: "quaff",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: host},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: port},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{"0"},
				},
				Attributes: []sdp.Attribute{
					sdp.NewAttribute("rtpmap", "0 PCMU/8000"),
					sdp.NewPropertyAttribute("sendrecv"),
				},
			},
		},
	}
	return session.Marshal()
}
