package session

import (
	"fmt"
	"sync"

	"github.com/codewiresh/terminald/internal/ptyproc"
)

// Session is one PTY, one workspace directory, one transcript, and the
// set of clients currently attached to it.
type Session struct {
	ID            string
	CreatedAt     string
	WorkspacePath string
	CopilotPath   string

	process ptyproc.Process
	output  *Broadcaster
	exit    *ExitSignal

	mu              sync.RWMutex
	status          string // sessionstore.StatusRunning or StatusExited
	cols, rows      int
	pid             *int
	lastActivityAt  string
	attachedClients map[string]struct{}
}

func newSession(id, createdAt, workspacePath, copilotPath string, cols, rows int) *Session {
	return &Session{
		ID:              id,
		CreatedAt:       createdAt,
		WorkspacePath:   workspacePath,
		CopilotPath:     copilotPath,
		output:          NewBroadcaster(),
		exit:            NewExitSignal(),
		status:          "running",
		cols:            cols,
		rows:            rows,
		lastActivityAt:  createdAt,
		attachedClients: make(map[string]struct{}),
	}
}

// setProcess attaches the spawned PTY process once it exists. Must be
// called before the session is published to the manager's table.
func (s *Session) setProcess(p ptyproc.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.process = p
	s.pid = pidOf(p)
}

func pidOf(p ptyproc.Process) *int {
	if p == nil {
		return nil
	}
	pid := p.PID()
	return &pid
}

// SubscribeOutput registers a new output listener, observing everything
// the PTY emits from this point on.
func (s *Session) SubscribeOutput() (uint64, <-chan []byte) {
	return s.output.Subscribe(4096)
}

// UnsubscribeOutput removes a previously registered output listener.
func (s *Session) UnsubscribeOutput(id uint64) {
	s.output.Unsubscribe(id)
}

// WaitExit returns a channel that closes once the session's PTY exits.
func (s *Session) WaitExit() <-chan struct{} {
	return s.exit.Wait()
}

// Status, Dimensions, PID, and ExitCode report a point-in-time snapshot
// of the session's live state.
func (s *Session) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) Dimensions() (cols, rows int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cols, s.rows
}

func (s *Session) PID() *int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pid
}

func (s *Session) ExitCode() *int {
	return s.exit.ExitCode()
}

// IsRunning reports whether the session's PTY is still alive.
func (s *Session) IsRunning() bool {
	return s.Status() == "running"
}

// AttachClient adds clientId to the attached set. Idempotent.
func (s *Session) AttachClient(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachedClients[clientID] = struct{}{}
}

// DetachClient removes clientId from the attached set. Safe on an
// unknown clientId.
func (s *Session) DetachClient(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attachedClients, clientID)
}

// AttachedClientCount reports how many clients are currently attached.
func (s *Session) AttachedClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attachedClients)
}

// LastActivityAt returns the timestamp of the most recent input/output.
func (s *Session) LastActivityAt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivityAt
}

func (s *Session) touchActivity(ts string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivityAt = ts
}

func (s *Session) setExited() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = "exited"
}

func (s *Session) setDimensions(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cols, s.rows = cols, rows
}

func (s *Session) getProcess() ptyproc.Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.process
}

// WriteInput writes data to the session's PTY.
func (s *Session) WriteInput(data []byte) (int, error) {
	p := s.getProcess()
	if p == nil {
		return 0, fmt.Errorf("session: process not ready")
	}
	return p.Write(data)
}

// Resize changes the PTY window size and records the new dimensions.
func (s *Session) Resize(cols, rows int) error {
	p := s.getProcess()
	if p == nil {
		return fmt.Errorf("session: process not ready")
	}
	if err := p.Resize(cols, rows); err != nil {
		return err
	}
	s.setDimensions(cols, rows)
	return nil
}

// Stop terminates the PTY and blocks until its read pump has joined
// (for the real implementation; the mock returns immediately).
func (s *Session) Stop() error {
	p := s.getProcess()
	if p == nil {
		return nil
	}
	return p.Stop()
}
