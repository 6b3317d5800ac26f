package sessionstore

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/codewiresh/terminald/internal/layout"
)

func newTestTranscriptStore(t *testing.T) (*TranscriptStore, layout.Layout) {
	t.Helper()
	l := layout.New(t.TempDir())
	return NewTranscriptStore(l), l
}

func readLines(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open transcript: %v", err)
	}
	defer f.Close()
	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal line %q: %v", scanner.Text(), err)
		}
		events = append(events, e)
	}
	return events
}

func TestTranscriptInitSessionCreatesEmptyFile(t *testing.T) {
	s, l := newTestTranscriptStore(t)
	if err := s.InitSession(testSessionID); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	path, _ := l.TranscriptPath(testSessionID)
	if got := readLines(t, path); len(got) != 0 {
		t.Fatalf("want empty transcript, got %d events", len(got))
	}
}

func TestTranscriptAppendLifecycleIsDurable(t *testing.T) {
	s, l := newTestTranscriptStore(t)
	if err := s.InitSession(testSessionID); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	if err := s.AppendLifecycle(testSessionID, LifecycleCreated, nil); err != nil {
		t.Fatalf("AppendLifecycle: %v", err)
	}
	path, _ := l.TranscriptPath(testSessionID)
	events := readLines(t, path)
	if len(events) != 1 || events[0].Type != EventLifecycle || events[0].Event != LifecycleCreated {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Seq != 1 {
		t.Fatalf("Seq = %d, want 1", events[0].Seq)
	}
}

func TestTranscriptAppendOutputOrderingPreserved(t *testing.T) {
	s, l := newTestTranscriptStore(t)
	if err := s.InitSession(testSessionID); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	for i := 0; i < 50; i++ {
		if err := s.AppendOutput(testSessionID, "chunk"); err != nil {
			t.Fatalf("AppendOutput: %v", err)
		}
	}
	// AppendLifecycle waits for the write to complete, so it also drains
	// everything enqueued before it thanks to FIFO ordering.
	if err := s.AppendLifecycle(testSessionID, LifecycleTerminated, nil); err != nil {
		t.Fatalf("AppendLifecycle: %v", err)
	}

	path, _ := l.TranscriptPath(testSessionID)
	events := readLines(t, path)
	if len(events) != 51 {
		t.Fatalf("want 51 events, got %d", len(events))
	}
	for i, e := range events {
		if e.Seq != uint64(i+1) {
			t.Fatalf("event %d has Seq %d, want %d", i, e.Seq, i+1)
		}
	}
	if events[50].Type != EventLifecycle {
		t.Fatalf("last event type = %s", events[50].Type)
	}
}

func TestTranscriptAppendBeforeInitFails(t *testing.T) {
	s, _ := newTestTranscriptStore(t)
	if err := s.AppendOutput(testSessionID, "x"); err == nil {
		t.Fatal("want error appending before InitSession")
	}
}

func TestTranscriptCloseSessionStopsWriter(t *testing.T) {
	s, _ := newTestTranscriptStore(t)
	if err := s.InitSession(testSessionID); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	s.CloseSession(testSessionID)
	time.Sleep(10 * time.Millisecond)
	if err := s.AppendOutput(testSessionID, "x"); err == nil {
		t.Fatal("want error appending after CloseSession")
	}
}
