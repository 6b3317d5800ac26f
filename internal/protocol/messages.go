package protocol

// SessionInfo mirrors SessionMeta plus the live fields a client needs to
// render a session (spec §3, §4.7).
type SessionInfo struct {
	SessionID      string      `json:"sessionId"`
	Status         string      `json:"status"`
	CreatedAt      string      `json:"createdAt"`
	LastActivityAt string      `json:"lastActivityAt"`
	WorkspacePath  string      `json:"workspacePath"`
	PID            *int        `json:"pid"`
	Cols           int         `json:"cols"`
	Rows           int         `json:"rows"`
	ExitCode       *int        `json:"exitCode"`
	CopilotPath    string      `json:"copilotPath"`
	Error          *SpawnError `json:"error,omitempty"`
}

// SpawnError is the {code, message} pair recorded on SessionMeta when a
// session failed to spawn (spec §3).
type SpawnError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IndexEntry is a SessionIndexEntry as returned by session.list.
type IndexEntry struct {
	SessionID      string `json:"sessionId"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
	LastActivityAt string `json:"lastActivityAt"`
	Name           string `json:"name,omitempty"`
}

// Hello is the first message pushed on every connection.
type Hello struct {
	Type            string `json:"type"`
	ServerTime      string `json:"serverTime"`
	ProtocolVersion int    `json:"protocolVersion"`
}

func NewHello(serverTime string) Hello {
	return Hello{Type: TypeServerHello, ServerTime: serverTime, ProtocolVersion: ProtocolVersion}
}

// SessionCreated replies to session.create.
type SessionCreated struct {
	Type    string      `json:"type"`
	Session SessionInfo `json:"session"`
}

func NewSessionCreated(session SessionInfo) SessionCreated {
	return SessionCreated{Type: TypeSessionCreated, Session: session}
}

// SessionAttached replies to session.attach.
type SessionAttached struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

func NewSessionAttached(sessionID, status string) SessionAttached {
	return SessionAttached{Type: TypeSessionAttached, SessionID: sessionID, Status: status}
}

// SessionListResult replies to session.list.
type SessionListResult struct {
	Type     string       `json:"type"`
	Sessions []IndexEntry `json:"sessions"`
}

func NewSessionListResult(sessions []IndexEntry) SessionListResult {
	if sessions == nil {
		sessions = []IndexEntry{}
	}
	return SessionListResult{Type: TypeSessionListResult, Sessions: sessions}
}

// SessionExited is pushed on PTY exit and replies to session.terminate.
type SessionExited struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	ExitCode  *int   `json:"exitCode"`
}

func NewSessionExited(sessionID string, exitCode *int) SessionExited {
	return SessionExited{Type: TypeSessionExited, SessionID: sessionID, ExitCode: exitCode}
}

// SessionRenamed replies to session.rename.
type SessionRenamed struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

func NewSessionRenamed(sessionID, name string) SessionRenamed {
	return SessionRenamed{Type: TypeSessionRenamed, SessionID: sessionID, Name: name}
}

// TermOut carries one chunk of PTY output to an attached client.
type TermOut struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Data      string `json:"data"`
}

func NewTermOut(sessionID, data string) TermOut {
	return TermOut{Type: TypeTermOut, SessionID: sessionID, Data: data}
}

// ErrorMessage is the {code, message} envelope for every failure response.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewError(code, message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Code: code, Message: message}
}
