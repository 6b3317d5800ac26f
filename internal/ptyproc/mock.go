package ptyproc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// mockPID is the fixed PID reported by every Mock process, per spec §4.5.
const mockPID = 424242

const mockWelcome = "Welcome to Copilot Terminal\r\n$ "

// mockWelcomeDelay gives a caller enough time to subscribe before the
// welcome line is sent.
const mockWelcomeDelay = 20 * time.Millisecond

// Mock is a testability seam: it behaves like a real PTYProcess (fixed
// PID, a running state, a resizable window) without spawning anything.
// Selected at runtime by a mock-mode flag (spec §4.5, §4.6).
type Mock struct {
	mu   sync.Mutex
	cols int
	rows int

	running  atomic.Bool
	exitCode atomic.Int32
	exited   atomic.Bool

	onOutput OutputFunc
	onExit   ExitFunc

	stopOnce sync.Once
}

// SpawnMock creates a Mock process and schedules its welcome line to
// arrive on the output callback shortly after returning, mirroring a
// real PTY's asynchronous read pump so a caller that subscribes right
// after spawn still observes it.
func SpawnMock(cols, rows int, onOutput OutputFunc, onExit ExitFunc) *Mock {
	m := &Mock{cols: cols, rows: rows, onOutput: onOutput, onExit: onExit}
	m.running.Store(true)
	if onOutput != nil {
		go func() {
			time.Sleep(mockWelcomeDelay)
			onOutput([]byte(mockWelcome))
		}()
	}
	return m
}

// PID returns the fixed mock PID.
func (m *Mock) PID() int { return mockPID }

// IsRunning reports whether Terminate/Stop has been called yet.
func (m *Mock) IsRunning() bool { return m.running.Load() }

// ExitCode returns 0 once terminated, nil while running.
func (m *Mock) ExitCode() *int {
	if !m.exited.Load() {
		return nil
	}
	code := int(m.exitCode.Load())
	return &code
}

// Write echoes the buffered input back as "{input}\r\n$ ", per spec §4.5.
func (m *Mock) Write(data []byte) (int, error) {
	if m.onOutput != nil {
		m.onOutput([]byte(fmt.Sprintf("%s\r\n$ ", string(data))))
	}
	return len(data), nil
}

// Resize updates the recorded dimensions.
func (m *Mock) Resize(cols, rows int) error {
	m.mu.Lock()
	m.cols, m.rows = cols, rows
	m.mu.Unlock()
	return nil
}

// Terminate marks the mock as exited with code 0, firing onExit exactly
// once. Idempotent.
func (m *Mock) Terminate() error {
	m.stop()
	return nil
}

// Stop is Terminate's alias to satisfy Process; a mock has no read pump
// to unblock.
func (m *Mock) Stop() error {
	m.stop()
	return nil
}

func (m *Mock) stop() {
	m.stopOnce.Do(func() {
		m.running.Store(false)
		m.exitCode.Store(0)
		m.exited.Store(true)
		if m.onExit != nil {
			m.onExit(0)
		}
	})
}
