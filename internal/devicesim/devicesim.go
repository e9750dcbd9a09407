package devicesim

import (
	"time"

	"github.com/aldyh/tmon/internal/protocol"
)

// Device simulates one sensor device answering POLL frames with a fixed
// REPLY, for serial-link tests that want a real pseudo-terminal on the
// wire instead of an in-memory fake.
type Device struct {
	pair    *ptyPair
	addr    byte
	samples [4]protocol.Sample
}

// NewDevice opens a pseudo-terminal and returns a Device that will answer
// any well-formed POLL addressed to addr with samples. SlavePath() is
// the path a serialbus.Port should be opened against.
func NewDevice(addr byte, samples [4]protocol.Sample) (*Device, error) {
	pair, err := openPtyPair()
	if err != nil {
		return nil, err
	}
	return &Device{pair: pair, addr: addr, samples: samples}, nil
}

// SlavePath is the device path the collector connects to.
func (d *Device) SlavePath() string {
	return d.pair.SlavePath
}

// ServeOne waits up to timeout for one POLL frame and, if it is
// correctly addressed, writes back the configured REPLY. It returns
// false if no frame arrived, the frame didn't decode, or it wasn't
// addressed to this device.
func (d *Device) ServeOne(timeout time.Duration) bool {
	if err := d.pair.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false
	}

	header := d.readFull(4)
	if header == nil {
		return false
	}
	tail := d.readFull(int(header[3]) + 2)
	if tail == nil {
		return false
	}

	frame, err := protocol.Decode(append(header, tail...))
	if err != nil || frame.Cmd != protocol.CmdPoll || frame.Addr != d.addr {
		return false
	}

	reply, err := protocol.Encode(d.addr, protocol.CmdReply, protocol.EncodeReply(d.samples))
	if err != nil {
		return false
	}
	_, err = d.pair.Write(reply)
	return err == nil
}

func (d *Device) readFull(n int) []byte {
	if n == 0 {
		return []byte{}
	}
	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := d.pair.Read(buf[read:])
		if err != nil {
			return nil
		}
		if m == 0 {
			return nil
		}
		read += m
	}
	return buf
}

// Close releases the underlying pseudo-terminal.
func (d *Device) Close() error {
	return d.pair.Close()
}
