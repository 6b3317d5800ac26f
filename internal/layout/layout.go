// Package layout derives the on-disk paths for the session store and
// validates that a session ID cannot be used to escape DATA_DIR.
package layout

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// Layout roots every derived path at a single DATA_DIR.
type Layout struct {
	DataDir string
}

// New returns a Layout rooted at dataDir.
func New(dataDir string) Layout {
	return Layout{DataDir: dataDir}
}

// sessionIDPattern matches the UUID strings minted by clockid.NewID. Any
// session ID that does not match this is rejected before it ever reaches
// the filesystem, so a crafted ID cannot contain path separators.
var sessionIDPattern = regexp.MustCompile(`^[0-9a-fA-F-]{36}$`)

// ValidateSessionID reports whether id is safe to use as a path component.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("layout: invalid session id %q", id)
	}
	return nil
}

// SessionsDir returns DATA_DIR/sessions.
func (l Layout) SessionsDir() string {
	return filepath.Join(l.DataDir, "sessions")
}

// IndexPath returns DATA_DIR/sessions/index.json.
func (l Layout) IndexPath() string {
	return filepath.Join(l.SessionsDir(), "index.json")
}

// SessionDir returns DATA_DIR/sessions/{id}, after validating id.
func (l Layout) SessionDir(id string) (string, error) {
	if err := ValidateSessionID(id); err != nil {
		return "", err
	}
	return filepath.Join(l.SessionsDir(), id), nil
}

// MetaPath returns the path to a session's meta.json.
func (l Layout) MetaPath(id string) (string, error) {
	dir, err := l.SessionDir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "meta.json"), nil
}

// TranscriptPath returns the path to a session's transcript.jsonl.
func (l Layout) TranscriptPath(id string) (string, error) {
	dir, err := l.SessionDir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "transcript.jsonl"), nil
}

// WorkspacePath returns the path to a session's workspace directory.
func (l Layout) WorkspacePath(id string) (string, error) {
	dir, err := l.SessionDir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "workspace"), nil
}

// LogsDir returns DATA_DIR/logs.
func (l Layout) LogsDir() string {
	return filepath.Join(l.DataDir, "logs")
}

// LaunchProfilePath returns the path to the optional default launch
// profile, checked before every spawn (see SPEC_FULL.md "Launch
// profiles"). It lives at DATA_DIR's root rather than under a
// particular session's workspace: that workspace does not exist yet
// the first time create_session needs to check for one, and the wire
// protocol's session.create takes no fields an operator could use to
// supply a per-session template.
func (l Layout) LaunchProfilePath() string {
	return filepath.Join(l.DataDir, "launch-profile.yaml")
}
