package sessionstore

import (
	"testing"

	"github.com/codewiresh/terminald/internal/layout"
	"github.com/codewiresh/terminald/internal/protocol"
)

const testSessionID = "12345678-1234-1234-1234-123456789abc"

func newTestMetaStore(t *testing.T) *MetaStore {
	t.Helper()
	return NewMetaStore(layout.New(t.TempDir()))
}

func TestMetaCreateAndLoad(t *testing.T) {
	s := newTestMetaStore(t)
	pid := 42
	meta, err := s.Create(NewSessionParams{
		SessionID:     testSessionID,
		WorkspacePath: "/tmp/ws",
		CopilotPath:   "/usr/bin/copilot",
		Cols:          80,
		Rows:          24,
		PID:           &pid,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if meta.Status != StatusRunning {
		t.Fatalf("Status = %s, want %s", meta.Status, StatusRunning)
	}

	loaded, err := s.Load(testSessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.WorkspacePath != "/tmp/ws" || *loaded.PID != 42 {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestMetaCreateWithSpawnErrorIsExited(t *testing.T) {
	s := newTestMetaStore(t)
	meta, err := s.Create(NewSessionParams{
		SessionID:  testSessionID,
		SpawnError: &protocol.SpawnError{Code: "SPAWN_FAILED", Message: "no such file"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if meta.Status != StatusExited {
		t.Fatalf("Status = %s, want %s", meta.Status, StatusExited)
	}
	if meta.Error == nil || meta.Error.Code != "SPAWN_FAILED" {
		t.Fatalf("Error = %+v", meta.Error)
	}
}

func TestMetaUpdateActivity(t *testing.T) {
	s := newTestMetaStore(t)
	meta, err := s.Create(NewSessionParams{SessionID: testSessionID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.UpdateActivity(testSessionID); err != nil {
		t.Fatalf("UpdateActivity: %v", err)
	}
	updated, err := s.Load(testSessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if updated.LastActivityAt == "" {
		t.Fatal("LastActivityAt should be set")
	}
	_ = meta
}

func TestMetaUpdateStatusSetsExitCode(t *testing.T) {
	s := newTestMetaStore(t)
	if _, err := s.Create(NewSessionParams{SessionID: testSessionID}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	code := 0
	if err := s.UpdateStatus(testSessionID, StatusExited, &code); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	meta, err := s.Load(testSessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if meta.Status != StatusExited || meta.ExitCode == nil || *meta.ExitCode != 0 {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestMetaUpdateDimensions(t *testing.T) {
	s := newTestMetaStore(t)
	if _, err := s.Create(NewSessionParams{SessionID: testSessionID, Cols: 80, Rows: 24}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.UpdateDimensions(testSessionID, 120, 40); err != nil {
		t.Fatalf("UpdateDimensions: %v", err)
	}
	meta, err := s.Load(testSessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if meta.Cols != 120 || meta.Rows != 40 {
		t.Fatalf("meta = %+v", meta)
	}
}
