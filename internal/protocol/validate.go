package protocol

import (
	"encoding/json"
	"unicode/utf8"
)

// fieldSchema describes one client message type: the field names it may
// carry (besides "type") and how to decode+validate them into a Request.
type fieldSchema struct {
	allowedFields map[string]struct{}
	build         func(fields map[string]json.RawMessage, req *Request) error
}

func allow(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

var schemas = map[string]fieldSchema{
	TypeSessionCreate: {
		allowedFields: allow(),
		build:         func(map[string]json.RawMessage, *Request) error { return nil },
	},
	TypeSessionList: {
		allowedFields: allow(),
		build:         func(map[string]json.RawMessage, *Request) error { return nil },
	},
	TypeSessionAttach: {
		allowedFields: allow("sessionId"),
		build: func(fields map[string]json.RawMessage, req *Request) error {
			id, err := requireSessionID(fields)
			if err != nil {
				return err
			}
			req.SessionID = id
			return nil
		},
	},
	TypeSessionTerminate: {
		allowedFields: allow("sessionId"),
		build: func(fields map[string]json.RawMessage, req *Request) error {
			id, err := requireSessionID(fields)
			if err != nil {
				return err
			}
			req.SessionID = id
			return nil
		},
	},
	TypeSessionRename: {
		allowedFields: allow("sessionId", "name"),
		build: func(fields map[string]json.RawMessage, req *Request) error {
			id, err := requireSessionID(fields)
			if err != nil {
				return err
			}
			name, err := requireString(fields, "name")
			if err != nil {
				return err
			}
			if n := utf8.RuneCountInString(name); n < 1 || n > 100 {
				return &ValidationError{Code: CodeInvalidMessage, Message: "name must be 1..100 characters"}
			}
			req.SessionID = id
			req.Name = name
			return nil
		},
	},
	TypeTermIn: {
		allowedFields: allow("sessionId", "data"),
		build: func(fields map[string]json.RawMessage, req *Request) error {
			id, err := requireSessionID(fields)
			if err != nil {
				return err
			}
			data, err := requireString(fields, "data")
			if err != nil {
				return err
			}
			req.SessionID = id
			req.Data = data
			return nil
		},
	},
	TypeTermResize: {
		allowedFields: allow("sessionId", "cols", "rows"),
		build: func(fields map[string]json.RawMessage, req *Request) error {
			id, err := requireSessionID(fields)
			if err != nil {
				return err
			}
			cols, err := requireInt(fields, "cols")
			if err != nil {
				return err
			}
			rows, err := requireInt(fields, "rows")
			if err != nil {
				return err
			}
			if cols < 1 || rows < 1 {
				return &ValidationError{Code: CodeInvalidMessage, Message: "cols and rows must be >= 1"}
			}
			req.SessionID = id
			req.Cols = cols
			req.Rows = rows
			return nil
		},
	},
}

func requireString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", &ValidationError{Code: CodeInvalidMessage, Message: "missing required field: " + key}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &ValidationError{Code: CodeInvalidMessage, Message: "field " + key + " must be a string"}
	}
	return s, nil
}

func requireInt(fields map[string]json.RawMessage, key string) (int, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, &ValidationError{Code: CodeInvalidMessage, Message: "missing required field: " + key}
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, &ValidationError{Code: CodeInvalidMessage, Message: "field " + key + " must be an integer"}
	}
	return n, nil
}

// requireSessionID validates the 36-character UUID-string shape spec §4.7
// mandates (length-validated; stricter parsing is acceptable, so we also
// check the hyphen positions).
func requireSessionID(fields map[string]json.RawMessage) (string, error) {
	id, err := requireString(fields, "sessionId")
	if err != nil {
		return "", err
	}
	if !isUUIDShape(id) {
		return "", &ValidationError{Code: CodeInvalidMessage, Message: "sessionId must be a 36-character UUID string"}
	}
	return id, nil
}

func isUUIDShape(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !isHex(byte(c)) {
				return false
			}
		}
	}
	return true
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
