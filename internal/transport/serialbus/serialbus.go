// Package serialbus implements the half-duplex RS-485 Link: flush, write,
// then a length-prefixed read bounded by a single deadline.
package serialbus

import (
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/aldyh/tmon/internal/logx"
)

const (
	// DefaultTimeout is the default per-call receive deadline (spec §5).
	DefaultTimeout = 200 * time.Millisecond

	headerLen = 4 // START, ADDR, CMD, LEN
	crcLen    = 2
)

// Port is a half-duplex RS-485 link opened on a device path at a given
// baud rate. It satisfies the Link contract consumed by the poll engine:
// Send is atomic (flush input, write, flush output) and Receive is
// frame-aware, returning the complete 6+LEN frame or nothing at all.
type Port struct {
	mu      sync.Mutex
	port    serial.Port
	timeout time.Duration
	log     *logx.Logger
}

// Open connects to the serial device at 8N1 with the given baud rate.
func Open(address string, baudRate int, timeout time.Duration, log *logx.Logger) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	port, err := serial.Open(address, mode)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, err
	}
	return &Port{port: port, timeout: timeout, log: log}, nil
}

// Send discards any buffered input, writes data, and flushes before
// returning. Any stale bytes on the line belong to a prior exchange and
// would corrupt the next read.
func (p *Port) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.port.ResetInputBuffer(); err != nil {
		return err
	}
	if _, err := p.port.Write(data); err != nil {
		return err
	}
	return p.port.Drain()
}

// Receive reads one complete frame bounded by a single deadline, the
// port's timeout from the start of the call: 4 header bytes, then LEN+2
// more. A short read at any stage returns nil; no partial frame is ever
// returned.
func (p *Port) Receive() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	deadline := time.Now().Add(p.timeout)
	header := p.readFull(headerLen, deadline)
	if header == nil {
		return nil
	}

	payloadLen := int(header[3])
	tail := p.readFull(payloadLen+crcLen, deadline)
	if tail == nil {
		return nil
	}

	return append(header, tail...)
}

// readFull reads exactly n bytes before deadline, or returns nil on any
// short read or I/O error. Each Read is bounded by the time left.
func (p *Port) readFull(n int, deadline time.Time) []byte {
	if n == 0 {
		return []byte{}
	}
	buf := make([]byte, n)
	read := 0
	for read < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.logf("receive timed out after %d/%d bytes", read, n)
			return nil
		}
		if err := p.port.SetReadTimeout(remaining); err != nil {
			p.logf("receive error: %v", err)
			return nil
		}
		m, err := p.port.Read(buf[read:])
		if err != nil {
			p.logf("receive error: %v", err)
			return nil
		}
		if m == 0 {
			p.logf("receive got EOF after %d/%d bytes", read, n)
			return nil
		}
		read += m
	}
	return buf
}

func (p *Port) logf(format string, args ...interface{}) {
	if p.log != nil {
		p.log.Debugf("serialbus: "+format, args...)
	}
}

// Close releases the underlying OS resource. Idempotent.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}
