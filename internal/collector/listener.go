package collector

import (
	"fmt"
	"sync"
	"time"

	"github.com/aldyh/tmon/internal/logx"
	"github.com/aldyh/tmon/internal/protocol"
)

// Listener accepts unsolicited REPLY frames pushed over a DatagramLink.
// Unlike the Poller it has no fixed device set: any address in 1..247 is
// acceptable, since protocol.Decode already rejects addresses outside it.
type Listener struct {
	link  DatagramLink
	store Inserter
	log   *logx.Logger

	mu       sync.Mutex
	lastSeen map[int]time.Time
}

// NewListener builds a Listener over link and store.
func NewListener(link DatagramLink, store Inserter, log *logx.Logger) *Listener {
	return &Listener{link: link, store: store, log: log, lastSeen: make(map[int]time.Time)}
}

// Receive waits up to timeout for one pushed frame, decodes it, and stores
// the Reading. Push frames are naturally one-at-a-time, so each
// successful frame is inserted and committed immediately rather than
// batched against an outer cycle boundary.
//
// The returned error is non-nil only for a fatal store failure (disk
// full, schema corruption) and must be propagated by the caller, per
// spec §7; an ordinary absent reading (timeout, bad frame, wrong command
// or payload length) is reported as (Reading{}, false, nil), never an
// error.
func (l *Listener) Receive(timeout time.Duration) (Reading, bool, error) {
	raw := l.link.Recv(timeout)
	if raw == nil {
		return Reading{}, false, nil
	}

	decoded, err := protocol.Decode(raw)
	if err != nil {
		l.log.Debugf("push: bad frame: %v", err)
		return Reading{}, false, nil
	}
	if decoded.Cmd != protocol.CmdReply {
		l.log.Debugf("push: unexpected cmd 0x%02X", decoded.Cmd)
		return Reading{}, false, nil
	}
	if len(decoded.Payload) != protocol.ReplyPayloadLen {
		l.log.Debugf("push: bad payload length %d", len(decoded.Payload))
		return Reading{}, false, nil
	}

	samples, err := protocol.ParseReply(decoded.Payload)
	if err != nil {
		l.log.Debugf("push: %v", err)
		return Reading{}, false, nil
	}

	reading := Reading{Addr: int(decoded.Addr), Samples: samples}

	if err := l.store.Insert(reading.Addr, reading.Samples[:]); err != nil {
		return Reading{}, false, fmt.Errorf("push: insert failed: %w", err)
	}
	if err := l.store.Commit(); err != nil {
		return Reading{}, false, fmt.Errorf("push: commit failed: %w", err)
	}

	l.mu.Lock()
	l.lastSeen[reading.Addr] = time.Now()
	l.mu.Unlock()

	return reading, true, nil
}

// LastSeen returns when addr was last heard from, if ever.
func (l *Listener) LastSeen(addr int) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.lastSeen[addr]
	return t, ok
}

// StaleDevices returns addresses not heard from within maxAge, among
// those that have reported at least once.
func (l *Listener) StaleDevices(maxAge time.Duration) []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	var stale []int
	for addr, seen := range l.lastSeen {
		if now.Sub(seen) > maxAge {
			stale = append(stale, addr)
		}
	}
	return stale
}
