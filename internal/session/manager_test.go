package session

import (
	"testing"
	"time"

	"github.com/codewiresh/terminald/internal/layout"
	"github.com/codewiresh/terminald/internal/protocol"
	"github.com/codewiresh/terminald/internal/sessionstore"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	l := layout.New(t.TempDir())
	cfg := ManagerConfig{
		MaxSessions:             2,
		InitialCols:             120,
		InitialRows:             30,
		MinCols:                 20,
		MaxCols:                 300,
		MinRows:                 5,
		MaxRows:                 120,
		MaxInputCharsPerMessage: 16384,
		CopilotPath:             "copilot.exe",
		MockPTY:                 true,
	}
	return NewManager(l,
		sessionstore.NewIndexStore(l),
		sessionstore.NewMetaStore(l),
		sessionstore.NewTranscriptStore(l),
		cfg,
	)
}

func opError(t *testing.T, err error) *OpError {
	t.Helper()
	if err == nil {
		t.Fatal("want error, got nil")
	}
	oe, ok := err.(*OpError)
	if !ok {
		t.Fatalf("err = %T, want *OpError", err)
	}
	return oe
}

func TestCreateSessionMockPTY(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.CreateSession("")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.Status() != sessionstore.StatusRunning {
		t.Fatalf("Status = %s", sess.Status())
	}
	cols, rows := sess.Dimensions()
	if cols != 120 || rows != 30 {
		t.Fatalf("dims = %d/%d", cols, rows)
	}
}

func TestCreateSessionRespectsMaxSessions(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.CreateSession(""); err != nil {
		t.Fatalf("CreateSession 1: %v", err)
	}
	if _, err := m.CreateSession(""); err != nil {
		t.Fatalf("CreateSession 2: %v", err)
	}
	_, err := m.CreateSession("")
	oe := opError(t, err)
	if oe.Code != protocol.CodeMaxSessionsReached {
		t.Fatalf("Code = %s", oe.Code)
	}
}

func TestAttachUnknownSessionNotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.AttachSession("12345678-1234-1234-1234-123456789abc", "client-1")
	oe := opError(t, err)
	if oe.Code != protocol.CodeSessionNotFound {
		t.Fatalf("Code = %s", oe.Code)
	}
}

func TestResizeOutOfBoundsRejected(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.CreateSession("")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	err = m.ResizeSession(sess.ID, 10, 24)
	oe := opError(t, err)
	if oe.Code != protocol.CodeInvalidResize {
		t.Fatalf("Code = %s", oe.Code)
	}
	cols, _ := sess.Dimensions()
	if cols != 120 {
		t.Fatalf("cols changed to %d after rejected resize", cols)
	}
}

func TestResizeWithinBoundsPersists(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.CreateSession("")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := m.ResizeSession(sess.ID, 80, 24); err != nil {
		t.Fatalf("ResizeSession: %v", err)
	}
	cols, rows := sess.Dimensions()
	if cols != 80 || rows != 24 {
		t.Fatalf("dims = %d/%d", cols, rows)
	}
	meta, err := sessionstore.NewMetaStore(m.layout).Load(sess.ID)
	if err != nil {
		t.Fatalf("Load meta: %v", err)
	}
	if meta.Cols != 80 || meta.Rows != 24 {
		t.Fatalf("persisted dims = %d/%d", meta.Cols, meta.Rows)
	}
}

func TestSendInputTooLarge(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.CreateSession("")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	huge := make([]byte, m.cfg.MaxInputCharsPerMessage+1)
	err = m.SendInput(sess.ID, string(huge))
	oe := opError(t, err)
	if oe.Code != protocol.CodeInputTooLarge {
		t.Fatalf("Code = %s", oe.Code)
	}
}

func TestTerminateSessionFiresExit(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.CreateSession("")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	exitCode, err := m.TerminateSession(sess.ID)
	if err != nil {
		t.Fatalf("TerminateSession: %v", err)
	}
	if exitCode == nil || *exitCode != 0 {
		t.Fatalf("exitCode = %v, want 0", exitCode)
	}
	if sess.IsRunning() {
		t.Fatal("session should not be running after terminate")
	}

	err = m.SendInput(sess.ID, "x")
	oe := opError(t, err)
	if oe.Code != protocol.CodeSessionNotRunning {
		t.Fatalf("Code = %s", oe.Code)
	}
}

func TestTerminateUnknownSession(t *testing.T) {
	m := newTestManager(t)
	_, err := m.TerminateSession("12345678-1234-1234-1234-123456789abc")
	oe := opError(t, err)
	if oe.Code != protocol.CodeSessionNotFound {
		t.Fatalf("Code = %s", oe.Code)
	}
}

func TestMockEchoFlowsThroughOutputSubscription(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.CreateSession("")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	id, ch := sess.SubscribeOutput()
	defer sess.UnsubscribeOutput(id)

	select {
	case chunk := <-ch:
		if string(chunk)[:len("Welcome to Copilot Terminal")] != "Welcome to Copilot Terminal" {
			t.Fatalf("unexpected welcome chunk: %q", chunk)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for welcome output")
	}

	if err := m.SendInput(sess.ID, "hi"); err != nil {
		t.Fatalf("SendInput: %v", err)
	}

	select {
	case chunk := <-ch:
		got := string(chunk)
		want := "hi\r\n$ "
		if got != want {
			t.Fatalf("echo = %q, want %q", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echo output")
	}
}

func TestRenameSessionUpdatesIndexOnly(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.CreateSession("")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := m.RenameSession(sess.ID, "build"); err != nil {
		t.Fatalf("RenameSession: %v", err)
	}
	entry, ok, err := sessionstore.NewIndexStore(m.layout).GetSession(sess.ID)
	if err != nil || !ok {
		t.Fatalf("GetSession: ok=%v err=%v", ok, err)
	}
	if entry.Name != "build" {
		t.Fatalf("Name = %s", entry.Name)
	}
}
