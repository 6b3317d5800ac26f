package ptyproc

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMockSpawnEmitsWelcome(t *testing.T) {
	var mu sync.Mutex
	var chunks []string
	m := SpawnMock(80, 24, func(data []byte) {
		mu.Lock()
		chunks = append(chunks, string(data))
		mu.Unlock()
	}, nil)

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(chunks)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(chunks) != 1 || !strings.HasPrefix(chunks[0], "Welcome to Copilot Terminal") {
		t.Fatalf("chunks = %v", chunks)
	}
	if m.PID() != mockPID {
		t.Fatalf("PID = %d, want %d", m.PID(), mockPID)
	}
	if !m.IsRunning() {
		t.Fatal("should be running")
	}
}

func TestMockWriteEchoes(t *testing.T) {
	var mu sync.Mutex
	var chunks []string
	m := SpawnMock(80, 24, func(data []byte) {
		mu.Lock()
		chunks = append(chunks, string(data))
		mu.Unlock()
	}, nil)

	// Wait out the async welcome line so it doesn't race with the echo.
	time.Sleep(2 * mockWelcomeDelay)

	if _, err := m.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(chunks) != 2 || chunks[len(chunks)-1] != "hi\r\n$ " {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestMockTerminateFiresExitOnce(t *testing.T) {
	exitCount := 0
	m := SpawnMock(80, 24, nil, func(code int) {
		exitCount++
		if code != 0 {
			t.Fatalf("exitCode = %d, want 0", code)
		}
	})

	if err := m.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if err := m.Terminate(); err != nil {
		t.Fatalf("second Terminate: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if exitCount != 1 {
		t.Fatalf("exitCount = %d, want 1", exitCount)
	}
	if m.IsRunning() {
		t.Fatal("should not be running after Terminate")
	}
	if code := m.ExitCode(); code == nil || *code != 0 {
		t.Fatalf("ExitCode = %v, want 0", code)
	}
}

func TestMockResizeUpdatesDims(t *testing.T) {
	m := SpawnMock(80, 24, nil, nil)
	if err := m.Resize(120, 40); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if m.cols != 120 || m.rows != 40 {
		t.Fatalf("dims = %d/%d", m.cols, m.rows)
	}
}
