package sessionstore

import (
	"github.com/codewiresh/terminald/internal/atomicfile"
	"github.com/codewiresh/terminald/internal/clockid"
	"github.com/codewiresh/terminald/internal/layout"
	"github.com/codewiresh/terminald/internal/protocol"
)

// Meta is the persisted per-session document (meta.json), matching spec §3.
type Meta struct {
	SessionID      string             `json:"sessionId"`
	Status         string             `json:"status"`
	CreatedAt      string             `json:"createdAt"`
	LastActivityAt string             `json:"lastActivityAt"`
	WorkspacePath  string             `json:"workspacePath"`
	PID            *int               `json:"pid"`
	Cols           int                `json:"cols"`
	Rows           int                `json:"rows"`
	ExitCode       *int               `json:"exitCode"`
	CopilotPath    string             `json:"copilotPath"`
	Error          *protocol.SpawnError `json:"error,omitempty"`
}

const (
	StatusRunning = "running"
	StatusExited  = "exited"
)

// ToInfo converts a persisted Meta into the wire SessionInfo shape.
func (m Meta) ToInfo() protocol.SessionInfo {
	return protocol.SessionInfo{
		SessionID:      m.SessionID,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
		LastActivityAt: m.LastActivityAt,
		WorkspacePath:  m.WorkspacePath,
		PID:            m.PID,
		Cols:           m.Cols,
		Rows:           m.Rows,
		ExitCode:       m.ExitCode,
		CopilotPath:    m.CopilotPath,
		Error:          m.Error,
	}
}

// MetaStore manages one meta.json per session.
type MetaStore struct {
	layout layout.Layout
}

// NewMetaStore creates a MetaStore rooted at the given layout.
func NewMetaStore(l layout.Layout) *MetaStore {
	return &MetaStore{layout: l}
}

// NewSessionParams bundles the fields Create needs.
type NewSessionParams struct {
	SessionID     string
	WorkspacePath string
	CopilotPath   string
	Cols          int
	Rows          int
	PID           *int
	SpawnError    *protocol.SpawnError
}

// Create assembles meta for a new session (status derives from whether
// SpawnError is set) and persists it atomically.
func (s *MetaStore) Create(p NewSessionParams) (Meta, error) {
	now := clockid.NowISO()
	status := StatusRunning
	if p.SpawnError != nil {
		status = StatusExited
	}
	meta := Meta{
		SessionID:      p.SessionID,
		Status:         status,
		CreatedAt:      now,
		LastActivityAt: now,
		WorkspacePath:  p.WorkspacePath,
		PID:            p.PID,
		Cols:           p.Cols,
		Rows:           p.Rows,
		CopilotPath:    p.CopilotPath,
		Error:          p.SpawnError,
	}
	path, err := s.layout.MetaPath(p.SessionID)
	if err != nil {
		return Meta{}, err
	}
	if err := atomicfile.Write(path, meta); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

// Load reads a session's meta.json.
func (s *MetaStore) Load(sessionID string) (Meta, error) {
	path, err := s.layout.MetaPath(sessionID)
	if err != nil {
		return Meta{}, err
	}
	var meta Meta
	if err := atomicfile.Read(path, &meta); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

func (s *MetaStore) save(meta Meta) error {
	path, err := s.layout.MetaPath(meta.SessionID)
	if err != nil {
		return err
	}
	return atomicfile.Write(path, meta)
}

// UpdateActivity refreshes LastActivityAt.
func (s *MetaStore) UpdateActivity(sessionID string) error {
	meta, err := s.Load(sessionID)
	if err != nil {
		return err
	}
	meta.LastActivityAt = clockid.NowISO()
	return s.save(meta)
}

// UpdateStatus sets status and, for a terminal status, the exit code.
func (s *MetaStore) UpdateStatus(sessionID, status string, exitCode *int) error {
	meta, err := s.Load(sessionID)
	if err != nil {
		return err
	}
	meta.Status = status
	meta.ExitCode = exitCode
	meta.LastActivityAt = clockid.NowISO()
	return s.save(meta)
}

// UpdateDimensions sets Cols/Rows after a successful resize.
func (s *MetaStore) UpdateDimensions(sessionID string, cols, rows int) error {
	meta, err := s.Load(sessionID)
	if err != nil {
		return err
	}
	meta.Cols = cols
	meta.Rows = rows
	meta.LastActivityAt = clockid.NowISO()
	return s.save(meta)
}
