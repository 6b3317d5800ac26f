// Package session implements the session table and its manager (C8):
// creation, attach/detach bookkeeping, input/resize/terminate, and the
// PTY output/exit trampolines that keep the durable stores and the
// attached clients' observable streams in sync. Grounded on the
// teacher's session.SessionManager, re-expressed per the redesign notes:
// callbacks become subscriptions (Broadcaster/ExitSignal) so the manager
// never needs to know a client's identity.
package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/codewiresh/terminald/internal/clockid"
	"github.com/codewiresh/terminald/internal/layout"
	"github.com/codewiresh/terminald/internal/protocol"
	"github.com/codewiresh/terminald/internal/ptyproc"
	"github.com/codewiresh/terminald/internal/sessionstore"

	"log/slog"
	"sync"
	"unicode/utf8"
)

// ManagerConfig bundles the resource caps and defaults the manager needs
// (spec §6); it is a narrow view of config.Config so this package does
// not depend on environment parsing.
type ManagerConfig struct {
	MaxSessions             int
	InitialCols, InitialRows int
	MinCols, MaxCols         int
	MinRows, MaxRows         int
	MaxInputCharsPerMessage int
	CopilotPath             string
	MockPTY                 bool
}

// Manager owns the in-memory session table and serializes every
// lifecycle-mutating operation and durable-store read-modify-write
// behind a single mutex (spec §5).
type Manager struct {
	mu sync.Mutex

	layout     layout.Layout
	index      *sessionstore.IndexStore
	meta       *sessionstore.MetaStore
	transcript *sessionstore.TranscriptStore
	cfg        ManagerConfig

	sessions map[string]*Session
}

// NewManager constructs a Manager over the given durable stores.
func NewManager(l layout.Layout, index *sessionstore.IndexStore, meta *sessionstore.MetaStore, transcript *sessionstore.TranscriptStore, cfg ManagerConfig) *Manager {
	return &Manager{
		layout:     l,
		index:      index,
		meta:       meta,
		transcript: transcript,
		cfg:        cfg,
		sessions:   make(map[string]*Session),
	}
}

func (m *Manager) runningCount() int {
	count := 0
	for _, s := range m.sessions {
		if s.IsRunning() {
			count++
		}
	}
	return count
}

// CreateSession spawns a new session. copilotPath, if non-empty,
// overrides the configured default executable (spec §4.6 step 6).
func (m *Manager) CreateSession(copilotPath string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runningCount() >= m.cfg.MaxSessions {
		return nil, &OpError{
			Code:    protocol.CodeMaxSessionsReached,
			Message: fmt.Sprintf("Maximum running sessions (%d) reached.", m.cfg.MaxSessions),
		}
	}

	id := clockid.NewID()
	workspacePath, err := m.layout.WorkspacePath(id)
	if err != nil {
		return nil, &OpError{Code: protocol.CodeInternalError, Message: err.Error()}
	}
	workspacePath, err = filepath.Abs(workspacePath)
	if err != nil {
		return nil, &OpError{Code: protocol.CodeInternalError, Message: fmt.Sprintf("resolving workspace path: %v", err)}
	}
	if err := os.MkdirAll(workspacePath, 0o755); err != nil {
		return nil, &OpError{Code: protocol.CodeInternalError, Message: fmt.Sprintf("creating session directories: %v", err)}
	}

	if err := m.transcript.InitSession(id); err != nil {
		return nil, &OpError{Code: protocol.CodeInternalError, Message: fmt.Sprintf("initializing transcript: %v", err)}
	}

	if copilotPath == "" {
		copilotPath = m.cfg.CopilotPath
	}
	command := []string{copilotPath}
	env := os.Environ()

	if profile, lerr := loadLaunchProfile(m.layout.LaunchProfilePath()); lerr == nil && profile != nil {
		command = append(command, profile.Args...)
		env = applyEnv(env, profile.Env)
	} else if lerr != nil {
		slog.Warn("ignoring malformed launch profile", "session", id, "err", lerr)
	}

	now := clockid.NowISO()
	cols, rows := m.cfg.InitialCols, m.cfg.InitialRows
	sess := newSession(id, now, workspacePath, copilotPath, cols, rows)

	onOutput := func(data []byte) { m.handleOutput(sess, data) }
	onExit := func(code int) { m.handleExit(sess, code) }

	var proc ptyproc.Process
	var spawnErr error
	if m.cfg.MockPTY {
		proc = ptyproc.SpawnMock(cols, rows, onOutput, onExit)
	} else {
		proc, spawnErr = ptyproc.Spawn(command, workspacePath, cols, rows, env, onOutput, onExit)
	}

	if spawnErr != nil {
		message := fmt.Sprintf("Failed to start %s: %v", filepath.Base(copilotPath), spawnErr)
		spawnError := &protocol.SpawnError{Code: protocol.CodeSpawnFailed, Message: message}
		if _, err := m.meta.Create(sessionstore.NewSessionParams{
			SessionID:     id,
			WorkspacePath: workspacePath,
			CopilotPath:   copilotPath,
			Cols:          cols,
			Rows:          rows,
			SpawnError:    spawnError,
		}); err != nil {
			slog.Error("failed to persist spawn-failure meta", "session", id, "err", err)
		}
		if err := m.index.AddSession(protocol.IndexEntry{
			SessionID:      id,
			Status:         sessionstore.StatusExited,
			CreatedAt:      now,
			LastActivityAt: now,
		}); err != nil {
			slog.Error("failed to index spawn-failure session", "session", id, "err", err)
		}
		if err := m.transcript.AppendLifecycle(id, sessionstore.LifecycleSpawnFailed, map[string]any{"message": message}); err != nil {
			slog.Error("failed to append spawn_failed event", "session", id, "err", err)
		}
		m.transcript.CloseSession(id)
		return nil, &OpError{Code: protocol.CodeSpawnFailed, Message: message}
	}

	sess.setProcess(proc)
	pid := proc.PID()

	if _, err := m.meta.Create(sessionstore.NewSessionParams{
		SessionID:     id,
		WorkspacePath: workspacePath,
		CopilotPath:   copilotPath,
		Cols:          cols,
		Rows:          rows,
		PID:           &pid,
	}); err != nil {
		return nil, &OpError{Code: protocol.CodeInternalError, Message: fmt.Sprintf("persisting session metadata: %v", err)}
	}
	if err := m.index.AddSession(protocol.IndexEntry{
		SessionID:      id,
		Status:         sessionstore.StatusRunning,
		CreatedAt:      now,
		LastActivityAt: now,
	}); err != nil {
		return nil, &OpError{Code: protocol.CodeInternalError, Message: fmt.Sprintf("indexing session: %v", err)}
	}
	if err := m.transcript.AppendLifecycle(id, sessionstore.LifecycleCreated, map[string]any{"pid": pid}); err != nil {
		slog.Error("failed to append created event", "session", id, "err", err)
	}

	m.sessions[id] = sess
	return sess, nil
}

// GetSession returns the in-memory session for id, if any.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// ListSessions serves session.list from the durable index, which
// includes sessions that have exited or failed to spawn.
func (m *Manager) ListSessions() ([]protocol.IndexEntry, error) {
	return m.index.GetAllSessions()
}

// AttachSession binds clientID to session id. Sessions whose PTY is not
// in memory are reported not-found, even if meta.json exists on disk:
// session restoration is an explicit non-goal (spec §4.6, §9).
func (m *Manager) AttachSession(id, clientID string) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, &OpError{Code: protocol.CodeSessionNotFound, Message: fmt.Sprintf("Session does not exist: %s", id)}
	}
	sess.AttachClient(clientID)
	if err := m.transcript.AppendLifecycle(id, sessionstore.LifecycleAttached, map[string]any{"clientId": clientID}); err != nil {
		slog.Error("failed to append attached event", "session", id, "err", err)
	}
	return sess, nil
}

// DetachSession unbinds clientID from session id. Safe on an unknown id.
func (m *Manager) DetachSession(id, clientID string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	sess.DetachClient(clientID)
}

// DetachAllSessions unbinds clientID from every session, e.g. on
// disconnect.
func (m *Manager) DetachAllSessions(clientID string) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.DetachClient(clientID)
	}
}

// TerminateSession stops the PTY (blocking until its read pump joins),
// persists the exit, and returns the exit code. The manager itself never
// constructs a session.exited message; the PTY exit trampoline
// (handleExit) is what turns this into a client-visible push, for every
// attached connection including the one that called terminate (the
// channel endpoint suppresses that duplicate so the caller sees its
// terminate reply exactly once, not twice).
func (m *Manager) TerminateSession(id string) (*int, error) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, &OpError{Code: protocol.CodeSessionNotFound, Message: fmt.Sprintf("Session does not exist: %s", id)}
	}

	if err := sess.Stop(); err != nil {
		slog.Error("error stopping PTY", "session", id, "err", err)
	}

	// handleExit runs from the PTY's own exit callback and will have
	// already fired by the time Stop returns for the real and mock
	// implementations alike; wait defensively in case of a race.
	<-sess.WaitExit()
	return sess.ExitCode(), nil
}

// SendInput validates and forwards client input to a session's PTY.
func (m *Manager) SendInput(id string, data string) error {
	if utf8.RuneCountInString(data) > m.cfg.MaxInputCharsPerMessage {
		return &OpError{
			Code:    protocol.CodeInputTooLarge,
			Message: fmt.Sprintf("Input exceeds maximum of %d characters.", m.cfg.MaxInputCharsPerMessage),
		}
	}

	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return &OpError{Code: protocol.CodeSessionNotFound, Message: fmt.Sprintf("Session does not exist: %s", id)}
	}
	if !sess.IsRunning() {
		return &OpError{Code: protocol.CodeSessionNotRunning, Message: fmt.Sprintf("Session is not running: %s", id)}
	}

	if _, err := sess.WriteInput([]byte(data)); err != nil {
		return &OpError{Code: protocol.CodeInternalError, Message: fmt.Sprintf("writing to PTY: %v", err)}
	}
	if err := m.transcript.AppendInput(id, data); err != nil {
		slog.Error("failed to append input event", "session", id, "err", err)
	}
	sess.touchActivity(clockid.NowISO())

	// meta.json has no lock of its own (sessionstore's doc requires the
	// manager's mutex to serialize its read-modify-write); acquire it
	// briefly here rather than for the whole call (spec §5).
	m.mu.Lock()
	err := m.meta.UpdateActivity(id)
	m.mu.Unlock()
	if err != nil {
		slog.Error("failed to update activity", "session", id, "err", err)
	}
	return nil
}

// ResizeSession validates bounds, resizes the PTY, and persists the new
// dimensions.
func (m *Manager) ResizeSession(id string, cols, rows int) error {
	if cols < m.cfg.MinCols || cols > m.cfg.MaxCols || rows < m.cfg.MinRows || rows > m.cfg.MaxRows {
		return &OpError{
			Code: protocol.CodeInvalidResize,
			Message: fmt.Sprintf("cols must be in [%d, %d] and rows in [%d, %d]",
				m.cfg.MinCols, m.cfg.MaxCols, m.cfg.MinRows, m.cfg.MaxRows),
		}
	}

	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return &OpError{Code: protocol.CodeSessionNotFound, Message: fmt.Sprintf("Session does not exist: %s", id)}
	}

	if err := sess.Resize(cols, rows); err != nil {
		return &OpError{Code: protocol.CodeResizeFailed, Message: err.Error()}
	}
	if err := m.transcript.AppendResize(id, cols, rows); err != nil {
		slog.Error("failed to append resize event", "session", id, "err", err)
	}

	m.mu.Lock()
	err := m.meta.UpdateDimensions(id, cols, rows)
	m.mu.Unlock()
	if err != nil {
		return &OpError{Code: protocol.CodeInternalError, Message: fmt.Sprintf("persisting dimensions: %v", err)}
	}
	return nil
}

// Shutdown best-effort terminates every known session; one failure does
// not stop the others.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.Stop(); err != nil {
			slog.Error("error stopping session during shutdown", "session", s.ID, "err", err)
		}
	}
}

// handleOutput is the PTY output trampoline (spec §4.6): append to the
// transcript, refresh lastActivityAt, and fan out to every subscriber.
// The transcript append and the in-memory activity stamp use their own
// locking; the manager mutex is held only around the meta.json
// read-modify-write.
func (m *Manager) handleOutput(sess *Session, data []byte) {
	if err := m.transcript.AppendOutput(sess.ID, string(data)); err != nil {
		slog.Error("failed to append output event", "session", sess.ID, "err", err)
	}
	sess.touchActivity(clockid.NowISO())

	m.mu.Lock()
	err := m.meta.UpdateActivity(sess.ID)
	m.mu.Unlock()
	if err != nil {
		slog.Error("failed to update activity", "session", sess.ID, "err", err)
	}
	sess.output.Send(data)
}

// handleExit is the PTY exit trampoline (spec §4.6): persist status and
// exit code, update the index, append the lifecycle event, and fire the
// session's ExitSignal so every waiter (terminate_session and the
// channel endpoint's per-connection exit forwarder) observes it exactly
// once.
func (m *Manager) handleExit(sess *Session, exitCode int) {
	sess.setExited()
	sess.exit.Fire(exitCode)
	sess.output.CloseAll()

	code := exitCode
	m.mu.Lock()
	metaErr := m.meta.UpdateStatus(sess.ID, sessionstore.StatusExited, &code)
	indexErr := m.index.UpdateSessionStatus(sess.ID, sessionstore.StatusExited)
	m.mu.Unlock()
	if metaErr != nil {
		slog.Error("failed to persist exit status", "session", sess.ID, "err", metaErr)
	}
	if indexErr != nil {
		slog.Error("failed to update index on exit", "session", sess.ID, "err", indexErr)
	}
	if err := m.transcript.AppendLifecycle(sess.ID, sessionstore.LifecycleExited, map[string]any{"exitCode": exitCode}); err != nil {
		slog.Error("failed to append exited event", "session", sess.ID, "err", err)
	}
}

// RenameSession updates the index entry's name. Meta.json carries no
// name field: the source's rename is half-implemented and spec §9 says
// to treat that as authoritative.
func (m *Manager) RenameSession(id, name string) error {
	m.mu.Lock()
	ok, err := m.index.UpdateSessionName(id, name)
	m.mu.Unlock()
	if err != nil {
		return &OpError{Code: protocol.CodeInternalError, Message: err.Error()}
	}
	if !ok {
		return &OpError{Code: protocol.CodeSessionNotFound, Message: fmt.Sprintf("Session does not exist: %s", id)}
	}
	return nil
}

// ToSessionInfo builds the wire SessionInfo for a live session.
func (m *Manager) ToSessionInfo(sess *Session) protocol.SessionInfo {
	cols, rows := sess.Dimensions()
	return protocol.SessionInfo{
		SessionID:      sess.ID,
		Status:         sess.Status(),
		CreatedAt:      sess.CreatedAt,
		LastActivityAt: sess.LastActivityAt(),
		WorkspacePath:  sess.WorkspacePath,
		PID:            sess.PID(),
		Cols:           cols,
		Rows:           rows,
		ExitCode:       sess.ExitCode(),
		CopilotPath:    sess.CopilotPath,
	}
}
