package history

import (
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)

	id1, err := s.Record("textgrab", true, "hello")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	id2, err := s.Record("prompt", false, "network error")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Newest first.
	if entries[0].ID != id2 || entries[1].ID != id1 {
		t.Errorf("order = %s, %s; want %s, %s", entries[0].ID, entries[1].ID, id2, id1)
	}
	if entries[0].Kind != "prompt" || entries[0].Success {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		if _, err := s.Record("image", true, "x"); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	entries, err := s.Recent(3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("entries = %d, want 3", len(entries))
	}
	if got, _ := s.Recent(0); got != nil {
		t.Errorf("Recent(0) = %v", got)
	}
}

func TestRecordTruncatesLongResults(t *testing.T) {
	s := openTestStore(t)
	long := strings.Repeat("a", 5000)
	if _, err := s.Record("image", true, long); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	entries, err := s.Recent(1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries[0].Result) > resultPreviewLimit+3 {
		t.Errorf("Result length = %d", len(entries[0].Result))
	}
}
