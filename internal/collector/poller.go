package collector

import (
	"github.com/aldyh/tmon/internal/logx"
	"github.com/aldyh/tmon/internal/protocol"
)

// Poller drives the per-device request/reply dialogue over a shared
// half-duplex Link, sequentially — the RS-485 bus cannot be polled in
// parallel. State per device per cycle moves idle -> requested -> awaiting
// -> decoded -> stored, collapsing back to idle on any error.
type Poller struct {
	link    Link
	store   Inserter
	devices []int
	log     *logx.Logger
}

// NewPoller builds a Poller over link and store for the given, ordered
// device address list.
func NewPoller(link Link, store Inserter, devices []int, log *logx.Logger) *Poller {
	return &Poller{link: link, store: store, devices: append([]int(nil), devices...), log: log}
}

// Poll queries one device and returns its Reading, or false if the device
// did not respond or responded invalidly. No retry is attempted within a
// cycle; the next cycle tries again.
func (p *Poller) Poll(addr int) (Reading, bool) {
	frame, err := protocol.Encode(byte(addr), protocol.CmdPoll, nil)
	if err != nil {
		// addr is drawn from validated configuration; an encode failure
		// here is a programmer error, not a transient condition.
		panic(err)
	}
	if err := p.link.Send(frame); err != nil {
		p.log.Debugf("poll %d: send error: %v", addr, err)
		return Reading{}, false
	}

	raw := p.link.Receive()
	if raw == nil {
		p.log.Debugf("poll %d: timeout", addr)
		return Reading{}, false
	}

	decoded, err := protocol.Decode(raw)
	if err != nil {
		p.log.Debugf("poll %d: bad frame: %v", addr, err)
		return Reading{}, false
	}

	if int(decoded.Addr) != addr {
		p.log.Debugf("poll %d: addr mismatch, got %d", addr, decoded.Addr)
		return Reading{}, false
	}
	if decoded.Cmd != protocol.CmdReply {
		p.log.Debugf("poll %d: unexpected cmd 0x%02X", addr, decoded.Cmd)
		return Reading{}, false
	}
	if len(decoded.Payload) != protocol.ReplyPayloadLen {
		p.log.Debugf("poll %d: bad payload length %d", addr, len(decoded.Payload))
		return Reading{}, false
	}

	samples, err := protocol.ParseReply(decoded.Payload)
	if err != nil {
		p.log.Debugf("poll %d: %v", addr, err)
		return Reading{}, false
	}

	return Reading{Addr: addr, Samples: samples}, true
}

// PollAll polls every configured device in order, inserts each successful
// Reading, and commits exactly once at the end of the cycle. A single
// commit per cycle bounds write amplification and guarantees a partial
// cycle never leaves a half-committed view.
func (p *Poller) PollAll() ([]Reading, error) {
	var results []Reading
	for _, addr := range p.devices {
		reading, ok := p.Poll(addr)
		if !ok {
			continue
		}
		if err := p.store.Insert(reading.Addr, reading.Samples[:]); err != nil {
			return results, err
		}
		results = append(results, reading)
	}
	if err := p.store.Commit(); err != nil {
		return results, err
	}
	return results, nil
}
