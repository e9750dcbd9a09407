// Package supervisor wires the transport, store, and collector loops
// together into the long-running shell described in spec.md §4.7: select
// a transport, purge old rows once, then run either the poll loop or the
// push loop until a shutdown signal arrives.
package supervisor

import (
	"context"
	"io"
	"time"

	"github.com/aldyh/tmon/internal/collector"
	"github.com/aldyh/tmon/internal/logx"
	"github.com/aldyh/tmon/internal/store"
)

// PushTimeout bounds each Receive call in the push loop so shutdown is
// noticed even on an idle network, per spec §5.
const PushTimeout = 500 * time.Millisecond

// pollWaitQuantum bounds how long the poll loop's interval wait sleeps
// between checks of ctx.Done(), per spec §5's "0.25-0.5s granularity".
const pollWaitQuantum = 250 * time.Millisecond

// RetentionDays is the default purge window applied once at startup.
const RetentionDays = 365

// Supervisor owns a single Link (of either kind) and the Store for the
// lifetime of one run. Run selects the poll loop when the poller field is
// set and the push loop otherwise.
type Supervisor struct {
	store  *store.Store
	link   io.Closer
	poller *collector.Poller
	listen *collector.Listener
	log    *logx.Logger

	interval time.Duration
}

// NewPollSupervisor builds a Supervisor that drives the Poll Engine
// (C5) at the given interval.
func NewPollSupervisor(link collector.Link, closer io.Closer, st *store.Store, devices []int, interval time.Duration, log *logx.Logger) *Supervisor {
	return &Supervisor{
		store:    st,
		link:     closer,
		poller:   collector.NewPoller(link, st, devices, log),
		log:      log,
		interval: interval,
	}
}

// NewPushSupervisor builds a Supervisor that drives the Push Listener
// (C6).
func NewPushSupervisor(link collector.DatagramLink, closer io.Closer, st *store.Store, log *logx.Logger) *Supervisor {
	return &Supervisor{
		store:  st,
		link:   closer,
		listen: collector.NewListener(link, st, log),
		log:    log,
	}
}

// Run purges rows older than RetentionDays once, then runs the
// configured loop until ctx is cancelled. It always closes the link and
// then the store before returning, per spec §4.7's exit ordering.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.store.Close()
	defer s.link.Close()

	purged, err := s.store.Purge(RetentionDays)
	if err != nil {
		return err
	}
	if purged > 0 {
		s.log.Infof("purged %d rows older than %d days", purged, RetentionDays)
	}

	if s.poller != nil {
		return s.runPollLoop(ctx)
	}
	return s.runPushLoop(ctx)
}

func (s *Supervisor) runPollLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := s.poller.PollAll(); err != nil {
			return err
		}
		if waitOrShutdown(ctx, s.interval) {
			return nil
		}
	}
}

func (s *Supervisor) runPushLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, _, err := s.listen.Receive(PushTimeout); err != nil {
			return err
		}
	}
}

// waitOrShutdown sleeps for d in pollWaitQuantum increments, returning
// true as soon as ctx is cancelled, so shutdown is observed within one
// quantum even for a long interval.
func waitOrShutdown(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		quantum := pollWaitQuantum
		if remaining < quantum {
			quantum = remaining
		}
		timer := time.NewTimer(quantum)
		select {
		case <-ctx.Done():
			timer.Stop()
			return true
		case <-timer.C:
		}
	}
}
