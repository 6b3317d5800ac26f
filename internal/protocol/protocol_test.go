package protocol

import "testing"

const validID = "12345678-1234-1234-1234-123456789abc"

func TestParseRequestMissingType(t *testing.T) {
	_, err := ParseRequest([]byte(`{"sessionId":"` + validID + `"}`))
	ve := asValidationError(t, err)
	if ve.Code != CodeInvalidMessage {
		t.Fatalf("Code = %s, want %s", ve.Code, CodeInvalidMessage)
	}
}

func TestParseRequestBadJSON(t *testing.T) {
	_, err := ParseRequest([]byte(`{not json`))
	ve := asValidationError(t, err)
	if ve.Code != CodeInvalidMessage {
		t.Fatalf("Code = %s, want %s", ve.Code, CodeInvalidMessage)
	}
}

func TestParseRequestUnknownType(t *testing.T) {
	_, err := ParseRequest([]byte(`{"type":"invalid.type"}`))
	ve := asValidationError(t, err)
	if ve.Code != CodeUnknownMessageType {
		t.Fatalf("Code = %s, want %s", ve.Code, CodeUnknownMessageType)
	}
	if !ve.Fatal() {
		t.Fatal("UNKNOWN_MESSAGE_TYPE should be Fatal()")
	}
}

func TestParseRequestSessionCreate(t *testing.T) {
	req, err := ParseRequest([]byte(`{"type":"session.create"}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Type != TypeSessionCreate {
		t.Fatalf("Type = %s", req.Type)
	}
}

func TestParseRequestSessionCreateRejectsExtraField(t *testing.T) {
	_, err := ParseRequest([]byte(`{"type":"session.create","bogus":1}`))
	ve := asValidationError(t, err)
	if ve.Code != CodeInvalidMessage {
		t.Fatalf("Code = %s, want %s", ve.Code, CodeInvalidMessage)
	}
}

func TestParseRequestAttachValidatesSessionID(t *testing.T) {
	_, err := ParseRequest([]byte(`{"type":"session.attach","sessionId":"not-a-uuid"}`))
	ve := asValidationError(t, err)
	if ve.Code != CodeInvalidMessage {
		t.Fatalf("Code = %s, want %s", ve.Code, CodeInvalidMessage)
	}

	req, err := ParseRequest([]byte(`{"type":"session.attach","sessionId":"` + validID + `"}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.SessionID != validID {
		t.Fatalf("SessionID = %s", req.SessionID)
	}
}

func TestParseRequestRenameValidatesNameLength(t *testing.T) {
	_, err := ParseRequest([]byte(`{"type":"session.rename","sessionId":"` + validID + `","name":""}`))
	ve := asValidationError(t, err)
	if ve.Code != CodeInvalidMessage {
		t.Fatalf("Code = %s, want %s", ve.Code, CodeInvalidMessage)
	}

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	_, err = ParseRequest([]byte(`{"type":"session.rename","sessionId":"` + validID + `","name":"` + string(long) + `"}`))
	ve = asValidationError(t, err)
	if ve.Code != CodeInvalidMessage {
		t.Fatalf("Code = %s, want %s", ve.Code, CodeInvalidMessage)
	}
}

func TestParseRequestResizeRejectsNonPositive(t *testing.T) {
	_, err := ParseRequest([]byte(`{"type":"term.resize","sessionId":"` + validID + `","cols":0,"rows":24}`))
	ve := asValidationError(t, err)
	if ve.Code != CodeInvalidMessage {
		t.Fatalf("Code = %s, want %s", ve.Code, CodeInvalidMessage)
	}
}

func TestParseRequestResizeValid(t *testing.T) {
	req, err := ParseRequest([]byte(`{"type":"term.resize","sessionId":"` + validID + `","cols":80,"rows":24}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Cols != 80 || req.Rows != 24 {
		t.Fatalf("Cols/Rows = %d/%d", req.Cols, req.Rows)
	}
}

func TestParseRequestTermInRequiresData(t *testing.T) {
	_, err := ParseRequest([]byte(`{"type":"term.in","sessionId":"` + validID + `"}`))
	ve := asValidationError(t, err)
	if ve.Code != CodeInvalidMessage {
		t.Fatalf("Code = %s, want %s", ve.Code, CodeInvalidMessage)
	}
}

func asValidationError(t *testing.T, err error) *ValidationError {
	t.Helper()
	if err == nil {
		t.Fatal("want error, got nil")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("err = %T, want *ValidationError", err)
	}
	return ve
}
