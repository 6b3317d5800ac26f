package sessionstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/codewiresh/terminald/internal/clockid"
	"github.com/codewiresh/terminald/internal/layout"
)

// Event is one line of a session's transcript.jsonl (spec §3).
type Event struct {
	TS        string         `json:"ts"`
	SessionID string         `json:"sessionId"`
	Seq       uint64         `json:"seq"`
	Type      string         `json:"type"`
	Data      string         `json:"data,omitempty"`
	Cols      int            `json:"cols,omitempty"`
	Rows      int            `json:"rows,omitempty"`
	Event     string         `json:"event,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

const (
	EventOut       = "out"
	EventIn        = "in"
	EventResize    = "resize"
	EventLifecycle = "lifecycle"
)

// Lifecycle event names, spec §3.
const (
	LifecycleCreated     = "created"
	LifecycleAttached    = "attached"
	LifecycleExited      = "exited"
	LifecycleTerminated  = "terminated"
	LifecycleSpawnFailed = "spawn_failed"
)

// queueItem is one pending write, optionally with a completion channel for
// the blocking Append path.
type queueItem struct {
	line []byte
	done chan error
}

// transcriptSession holds the per-session append state: a monotonic
// sequence counter and a single background writer draining an unbounded
// in-memory queue, so a slow disk never blocks the PTY reader (spec §4.4).
type transcriptSession struct {
	mu      sync.Mutex
	cond    *sync.Cond
	seq     uint64
	pending []queueItem
	closed  bool

	file *os.File
	wg   sync.WaitGroup
}

func newTranscriptSession(file *os.File) *transcriptSession {
	ts := &transcriptSession{file: file}
	ts.cond = sync.NewCond(&ts.mu)
	ts.wg.Add(1)
	go ts.run()
	return ts
}

func (ts *transcriptSession) run() {
	defer ts.wg.Done()
	for {
		ts.mu.Lock()
		for len(ts.pending) == 0 && !ts.closed {
			ts.cond.Wait()
		}
		if len(ts.pending) == 0 && ts.closed {
			ts.mu.Unlock()
			return
		}
		batch := ts.pending
		ts.pending = nil
		ts.mu.Unlock()

		for _, item := range batch {
			_, err := ts.file.Write(item.line)
			if item.done != nil {
				item.done <- err
				close(item.done)
			} else if err != nil {
				slog.Error("transcript append failed", "err", err)
			}
		}
	}
}

// enqueueEvent assigns e's sequence number and queues its marshaled form in
// the same critical section, so concurrent appenders on one session can
// never enqueue out of seq order (spec §4.4: ordering matches acceptance
// order).
func (ts *transcriptSession) enqueueEvent(e Event, wait bool) error {
	ts.mu.Lock()
	if ts.closed {
		ts.mu.Unlock()
		return fmt.Errorf("sessionstore: transcript closed")
	}
	ts.seq++
	e.Seq = ts.seq

	data, err := json.Marshal(e)
	if err != nil {
		ts.mu.Unlock()
		return fmt.Errorf("sessionstore: marshal transcript event: %w", err)
	}
	data = append(data, '\n')

	item := queueItem{line: data}
	if wait {
		item.done = make(chan error, 1)
	}
	ts.pending = append(ts.pending, item)
	ts.mu.Unlock()
	ts.cond.Signal()

	if wait {
		return <-item.done
	}
	return nil
}

func (ts *transcriptSession) close() {
	ts.mu.Lock()
	ts.closed = true
	ts.mu.Unlock()
	ts.cond.Signal()
	ts.wg.Wait()
	ts.file.Close()
}

// TranscriptStore manages the append-only transcript.jsonl for every
// in-memory session.
type TranscriptStore struct {
	layout layout.Layout

	mu       sync.Mutex
	sessions map[string]*transcriptSession
}

// NewTranscriptStore creates a TranscriptStore rooted at the given layout.
func NewTranscriptStore(l layout.Layout) *TranscriptStore {
	return &TranscriptStore{layout: l, sessions: make(map[string]*transcriptSession)}
}

// InitSession resets the sequence counter for sessionID, creates parent
// directories, and (re)creates an empty transcript file, per spec §4.4.
func (s *TranscriptStore) InitSession(sessionID string) error {
	path, err := s.layout.TranscriptPath(sessionID)
	if err != nil {
		return err
	}
	dir, err := s.layout.SessionDir(sessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sessionstore: create session dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sessionstore: create transcript: %w", err)
	}

	s.mu.Lock()
	if old, ok := s.sessions[sessionID]; ok {
		s.mu.Unlock()
		old.close()
		s.mu.Lock()
	}
	s.sessions[sessionID] = newTranscriptSession(file)
	s.mu.Unlock()
	return nil
}

// CloseSession stops the background writer and closes the file handle for
// sessionID. Safe to call on an unknown session.
func (s *TranscriptStore) CloseSession(sessionID string) {
	s.mu.Lock()
	ts, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if ok {
		ts.close()
	}
}

func (s *TranscriptStore) get(sessionID string) (*transcriptSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.sessions[sessionID]
	return ts, ok
}

func (s *TranscriptStore) append(sessionID string, e Event, wait bool) error {
	ts, ok := s.get(sessionID)
	if !ok {
		return fmt.Errorf("sessionstore: transcript not initialized for session %s", sessionID)
	}
	e.TS = clockid.NowISO()
	e.SessionID = sessionID
	return ts.enqueueEvent(e, wait)
}

// AppendOutput records a PTY-output chunk. Non-blocking: used on the hot
// PTY read path so a slow disk never stalls the reader.
func (s *TranscriptStore) AppendOutput(sessionID, data string) error {
	return s.append(sessionID, Event{Type: EventOut, Data: data}, false)
}

// AppendInput records a client input chunk. Non-blocking, per spec §4.6.
func (s *TranscriptStore) AppendInput(sessionID, data string) error {
	return s.append(sessionID, Event{Type: EventIn, Data: data}, false)
}

// AppendResize records a successful resize.
func (s *TranscriptStore) AppendResize(sessionID string, cols, rows int) error {
	return s.append(sessionID, Event{Type: EventResize, Cols: cols, Rows: rows}, false)
}

// AppendLifecycle records a lifecycle event and waits for it to be durably
// written, since lifecycle transitions gate index/meta consistency.
func (s *TranscriptStore) AppendLifecycle(sessionID, event string, detail map[string]any) error {
	return s.append(sessionID, Event{Type: EventLifecycle, Event: event, Detail: detail}, true)
}
