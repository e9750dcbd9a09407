// Package collector implements the two ways readings enter the store: the
// Poll Engine, which drives a half-duplex request/reply cycle across a
// configured list of devices, and the Push Listener, which accepts
// unsolicited REPLY frames pushed over a datagram link.
package collector

import (
	"time"

	"github.com/aldyh/tmon/internal/protocol"
)

// Link is the half-duplex byte transport the Poll Engine drives: send a
// request, then receive a reply bounded by the link's own deadline.
// Both serialbus.Port and a scripted test fake satisfy this structurally.
type Link interface {
	Send(data []byte) error
	Receive() []byte
}

// DatagramLink is the transport the Push Listener drives: a single timed
// receive of one datagram. udpbus.Socket satisfies this structurally.
type DatagramLink interface {
	Recv(timeout time.Duration) []byte
}

// Inserter is the subset of the store the collector writes through.
type Inserter interface {
	Insert(addr int, samples []protocol.Sample) error
	Commit() error
}

// Reading is a validated, in-memory record built from one REPLY frame.
type Reading struct {
	Addr    int
	Samples [4]protocol.Sample
}
