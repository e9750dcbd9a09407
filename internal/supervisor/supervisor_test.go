package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/aldyh/tmon/internal/protocol"
	"github.com/aldyh/tmon/internal/store"
)

type fakeLink struct {
	sent    [][]byte
	replies [][]byte
	i       int
}

func (f *fakeLink) Send(data []byte) error {
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeLink) Receive() []byte {
	if f.i >= len(f.replies) {
		return nil
	}
	r := f.replies[f.i]
	f.i++
	return r
}

type noopCloser struct{ closed int }

func (c *noopCloser) Close() error {
	c.closed++
	return nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/readings.db")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return s
}

func replyFrame(t *testing.T, addr int) []byte {
	t.Helper()
	samples := [4]protocol.Sample{{1, true}, {}, {}, {}}
	frame, err := protocol.Encode(byte(addr), protocol.CmdReply, protocol.EncodeReply(samples))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return frame
}

// TestPollLoopStopsOnCancel confirms the poll loop observes ctx
// cancellation without running unboundedly, per spec §5's cancellation
// guarantee.
func TestPollLoopStopsOnCancel(t *testing.T) {
	link := &fakeLink{replies: [][]byte{replyFrame(t, 1), replyFrame(t, 1), replyFrame(t, 1)}}
	closer := &noopCloser{}
	s := openTestStore(t)

	sv := NewPollSupervisor(link, closer, s, []int{1}, 10*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	if err := sv.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if closer.closed != 1 {
		t.Errorf("link closed %d times, want 1", closer.closed)
	}
}

type fakeDatagramLink struct{}

func (f *fakeDatagramLink) Recv(timeout time.Duration) []byte { return nil }

func TestPushLoopStopsOnCancel(t *testing.T) {
	link := &fakeDatagramLink{}
	closer := &noopCloser{}
	s := openTestStore(t)

	sv := NewPushSupervisor(link, closer, s, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := sv.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if closer.closed != 1 {
		t.Errorf("link closed %d times, want 1", closer.closed)
	}
}

func TestWaitOrShutdownHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	shutdown := waitOrShutdown(ctx, time.Second)
	if !shutdown {
		t.Fatal("waitOrShutdown = false, want true on cancellation")
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Errorf("waitOrShutdown took %v, want well under the full interval", time.Since(start))
	}
}

func TestWaitOrShutdownExpiresNaturally(t *testing.T) {
	ctx := context.Background()
	shutdown := waitOrShutdown(ctx, 10*time.Millisecond)
	if shutdown {
		t.Fatal("waitOrShutdown = true, want false when the interval elapses without cancellation")
	}
}
