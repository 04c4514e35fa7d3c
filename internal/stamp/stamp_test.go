package stamp

import (
	"testing"
	"time"
)

func TestRecordMonotonic(t *testing.T) {
	s := NewStore(0, 0)
	defer s.Close()

	var prev uint64
	for i := 0; i < 1000; i++ {
		ts := s.Record("k")
		if ts <= prev {
			t.Fatalf("stamp not strictly increasing: %d after %d", ts, prev)
		}
		prev = ts
	}
	if s.Last("k") != prev {
		t.Fatalf("Last should return latest stamp")
	}
}

func TestLastMissingIsZero(t *testing.T) {
	s := NewStore(0, 0)
	defer s.Close()

	if got := s.Last("never-written"); got != 0 {
		t.Fatalf("missing key should be 0, got %d", got)
	}
}

func TestStampsOrderAcrossKeys(t *testing.T) {
	s := NewStore(0, 0)
	defer s.Close()

	a := s.Record("a")
	b := s.Record("b")
	if b <= a {
		t.Fatalf("stamps must be globally ordered: a=%d b=%d", a, b)
	}
}

func TestCleanupPrunesInactive(t *testing.T) {
	s := NewStore(0, 0)
	defer s.Close()

	s.Record("old")
	time.Sleep(5 * time.Millisecond)
	s.Cleanup(time.Nanosecond)

	if s.Last("old") != 0 {
		t.Fatalf("inactive entry should have been pruned")
	}
}
