package titlestore

import (
	"testing"
)

func TestSetGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Set("thread-1", "気候変動の調査"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := s.Get("thread-1"); got != "気候変動の調査" {
		t.Errorf("Get = %q", got)
	}
}

func TestGetMissingReturnsEmpty(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if got := s.Get("no-such-thread"); got != "" {
		t.Errorf("Get(missing) = %q, want empty", got)
	}
	if got := s.Get(""); got != "" {
		t.Errorf("Get(empty id) = %q, want empty", got)
	}
}

func TestSetEmptyTitleDeletes(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Set("thread-1", "initial"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("thread-1", "  "); err != nil {
		t.Fatalf("Set(empty): %v", err)
	}
	if got := s.Get("thread-1"); got != "" {
		t.Errorf("title survived delete: %q", got)
	}
}

func TestSetRejectsEmptyThreadID(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Set("", "title"); err == nil {
		t.Error("Set with empty thread id should fail")
	}
}

func TestAllSkipsCorruptValues(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Set("thread-a", "alpha"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("thread-b", "beta"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// write invalid UTF-8 directly under the namespace
	if err := s.db.Set([]byte(keyPrefix+"thread-c"), []byte{0xff, 0xfe}, nil); err != nil {
		t.Fatalf("raw set: %v", err)
	}

	all := s.All()
	if len(all) != 2 {
		t.Fatalf("All() = %v, want 2 entries", all)
	}
	if all["thread-a"] != "alpha" || all["thread-b"] != "beta" {
		t.Errorf("All() = %v", all)
	}
	if got := s.Get("thread-c"); got != "" {
		t.Errorf("corrupt value should read empty, got %q", got)
	}
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set("thread-1", "durable"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if got := s2.Get("thread-1"); got != "durable" {
		t.Errorf("title lost across reopen: %q", got)
	}
}

func TestClosedStoreIsInert(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	if got := s.Get("thread-1"); got != "" {
		t.Errorf("Get on closed store = %q", got)
	}
	if err := s.Set("thread-1", "x"); err == nil {
		t.Error("Set on closed store should fail")
	}
	if all := s.All(); len(all) != 0 {
		t.Errorf("All on closed store = %v", all)
	}
	if err := s.Close(); err != nil {
		t.Errorf("double close: %v", err)
	}
}
