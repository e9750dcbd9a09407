package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aldyh/tmon/internal/protocol"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "readings.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func valid(v int16) protocol.Sample { return protocol.Sample{Value: v, Valid: true} }

var absent = protocol.Sample{}

func TestInsertBadChannelCount(t *testing.T) {
	s := openTest(t)
	err := s.Insert(1, []protocol.Sample{valid(1), valid(2)})
	if !errors.Is(err, ErrBadChannelCount) {
		t.Fatalf("Insert with 2 channels = %v, want ErrBadChannelCount", err)
	}
}

// TestRowCount is property 5 from spec §8: after N inserts and a commit,
// Fetch returns exactly N rows with strictly increasing ids.
func TestRowCount(t *testing.T) {
	s := openTest(t)
	const n = 5
	for i := 0; i < n; i++ {
		if err := s.Insert(1, []protocol.Sample{valid(int16(i)), absent, absent, absent}); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rows, err := s.Fetch(1000)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(rows) != n {
		t.Fatalf("Fetch returned %d rows, want %d", len(rows), n)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].ID >= rows[i-1].ID {
			t.Fatalf("ids not strictly decreasing (newest first): %d then %d", rows[i-1].ID, rows[i].ID)
		}
	}
}

func TestUncommittedNotVisible(t *testing.T) {
	s := openTest(t)
	if err := s.Insert(1, []protocol.Sample{valid(10), absent, absent, absent}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rows, err := s.Fetch(10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("Fetch before Commit returned %d rows, want 0", len(rows))
	}

	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	rows, err = s.Fetch(10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Fetch after Commit returned %d rows, want 1", len(rows))
	}
}

func TestSampleNullability(t *testing.T) {
	s := openTest(t)
	want := []protocol.Sample{valid(235), valid(-198), absent, absent}
	if err := s.Insert(7, want); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rows, err := s.Fetch(1)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.Addr != 7 {
		t.Errorf("addr = %d, want 7", row.Addr)
	}
	for i, w := range want {
		if row.Samples[i] != w {
			t.Errorf("channel %d = %+v, want %+v", i, row.Samples[i], w)
		}
	}
}

// TestPurgeMonotonicity is property 6 from spec §8.
func TestPurgeMonotonicity(t *testing.T) {
	s := openTest(t)

	now := time.Now()
	old := now.Add(-400 * 24 * time.Hour)
	recent := now.Add(-1 * time.Hour)

	s.now = func() time.Time { return old }
	if err := s.Insert(1, []protocol.Sample{valid(1), absent, absent, absent}); err != nil {
		t.Fatalf("Insert old: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	s.now = func() time.Time { return recent }
	if err := s.Insert(2, []protocol.Sample{valid(2), absent, absent, absent}); err != nil {
		t.Fatalf("Insert recent: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	s.now = func() time.Time { return now }
	deleted, err := s.Purge(365)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("Purge deleted %d rows, want 1", deleted)
	}

	rows, err := s.Fetch(10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(rows) != 1 || rows[0].Addr != 2 {
		t.Fatalf("after purge rows = %+v, want only addr=2", rows)
	}
	cutoff := now.Add(-365 * 24 * time.Hour).Unix()
	for _, r := range rows {
		if r.Ts < cutoff {
			t.Errorf("surviving row ts=%d is before cutoff=%d", r.Ts, cutoff)
		}
	}
}
