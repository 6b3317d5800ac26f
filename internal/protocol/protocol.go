// Package protocol defines the wire contract between a browser client and
// terminald: one JSON object per message over a single bidirectional
// channel, discriminated by a "type" field. It owns parsing and schema
// validation of inbound messages and the shapes of outbound ones; routing
// those messages to session-manager operations is internal/dispatch's job.
package protocol

import "encoding/json"

// ProtocolVersion is advertised in server.hello and in the persisted index.
const ProtocolVersion = 1

// Client-to-server message type discriminators.
const (
	TypeSessionCreate    = "session.create"
	TypeSessionAttach    = "session.attach"
	TypeSessionList      = "session.list"
	TypeSessionTerminate = "session.terminate"
	TypeSessionRename    = "session.rename"
	TypeTermIn           = "term.in"
	TypeTermResize       = "term.resize"
)

// Server-to-client message type discriminators.
const (
	TypeServerHello       = "server.hello"
	TypeSessionCreated    = "session.created"
	TypeSessionAttached   = "session.attached"
	TypeSessionListResult = "session.list.result"
	TypeSessionExited     = "session.exited"
	TypeSessionRenamed    = "session.renamed"
	TypeTermOut           = "term.out"
	TypeError             = "error"
)

// Error codes, matching spec §7.
const (
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	CodeMaxSessionsReached = "MAX_SESSIONS_REACHED"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeSpawnFailed        = "SPAWN_FAILED"
	CodeInputTooLarge      = "INPUT_TOO_LARGE"
	CodeInvalidResize      = "INVALID_RESIZE"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeNotAttached        = "NOT_ATTACHED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeSessionNotRunning  = "SESSION_NOT_RUNNING"
	CodeResizeFailed       = "RESIZE_FAILED"
)

// ValidationError carries the error code a failed parse/validate should be
// reported to the client with.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Fatal reports whether this validation failure should close the channel,
// per spec §7 (UNKNOWN_MESSAGE_TYPE is the only parse-time fatal code).
func (e *ValidationError) Fatal() bool {
	return e.Code == CodeUnknownMessageType
}

// Request is the parsed, validated form of any client-to-server message.
// Fields not relevant to Type are left zero.
type Request struct {
	Type      string
	SessionID string
	Name      string
	Data      string
	Cols      int
	Rows      int
}

// envelope is used only to sniff the discriminator before committing to a
// type-specific shape; the raw field set is decoded separately.
type envelope struct {
	Type *string `json:"type"`
}

// ParseRequest parses and validates a single inbound message. Bad JSON or a
// missing type yields CodeInvalidMessage; an unrecognized type yields
// CodeUnknownMessageType; a recognized type with bad fields yields
// CodeInvalidMessage.
func ParseRequest(raw []byte) (*Request, error) {
	var fields map[string]json.RawMessage
	if err := strictUnmarshal(raw, &fields); err != nil {
		return nil, &ValidationError{Code: CodeInvalidMessage, Message: "invalid JSON: " + err.Error()}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == nil {
		return nil, &ValidationError{Code: CodeInvalidMessage, Message: "missing required field \"type\""}
	}
	msgType := *env.Type

	schema, ok := schemas[msgType]
	if !ok {
		return nil, &ValidationError{Code: CodeUnknownMessageType, Message: "unknown message type: " + msgType}
	}

	for key := range fields {
		if key == "type" {
			continue
		}
		if _, allowed := schema.allowedFields[key]; !allowed {
			return nil, &ValidationError{Code: CodeInvalidMessage, Message: "unexpected field: " + key}
		}
	}

	req := &Request{Type: msgType}
	if err := schema.build(fields, req); err != nil {
		return nil, err
	}
	return req, nil
}

// strictUnmarshal decodes raw with encoding/json's Unmarshal, which
// rejects trailing data after the top-level value. Duplicate keys are not
// rejected: the last occurrence wins.
func strictUnmarshal(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}
