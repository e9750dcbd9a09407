// Package udpbus implements the Datagram Link: a UDP socket bound to a
// local port on all interfaces, with a timed, single-datagram receive.
package udpbus

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// MaxDatagram is the largest accepted datagram, slightly larger than the
// largest expected frame (a REPLY frame is 14 bytes).
const MaxDatagram = 64

// Socket is a bound UDP listener. No retransmission, no sequencing, no
// duplicate suppression: loss and duplication are acceptable on the push
// path by design.
type Socket struct {
	conn *net.UDPConn
}

// Bind opens a UDP socket on 0.0.0.0:port with address reuse enabled.
func Bind(port int) (*Socket, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, err
	}
	return &Socket{conn: pc.(*net.UDPConn)}, nil
}

// Recv blocks up to timeout for a single datagram, returning its payload
// on success or nil on timeout or any socket error.
func (s *Socket) Recv(timeout time.Duration) []byte {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil
	}
	buf := make([]byte, MaxDatagram)
	n, _, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return nil
	}
	return buf[:n]
}

// Close releases the socket. Idempotent.
func (s *Socket) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
