// Package ptyproc wraps a single PTY-backed child process (C7): spawn,
// read-pump, write, resize, and terminate. It is grounded on the PTY
// lifecycle in the teacher's session package (creack/pty, an output
// reader goroutine, and a wait goroutine), generalized to a single
// testable Process interface with a Mock implementation for unit tests
// that don't want a real shell.
package ptyproc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Spawn-failure kinds, distinguished so the caller can report SPAWN_FAILED
// with a useful message (spec §4.6).
const (
	KindExecutableNotFound = "executable_not_found"
	KindSpawnFailed        = "spawn_failed"
)

// SpawnError wraps a spawn failure with a Kind the caller can branch on.
type SpawnError struct {
	Kind    string
	Message string
}

func (e *SpawnError) Error() string { return e.Message }

// readChunkSize bounds a single PTY read, matching typical terminal I/O
// buffer sizes.
const readChunkSize = 4096

// emptyReadYield is how long the read pump sleeps after a zero-byte,
// non-error read before retrying.
const emptyReadYield = 10 * time.Millisecond

// Process is anything that behaves like a PTY-backed child: real
// (creack/pty) or Mock (for tests that don't want to spawn a shell).
type Process interface {
	PID() int
	Write(data []byte) (int, error)
	Resize(cols, rows int) error
	Terminate() error
	Stop() error
	IsRunning() bool
	ExitCode() *int
}

// OutputFunc receives a chunk of PTY output as it is read.
type OutputFunc func(data []byte)

// ExitFunc is invoked exactly once when the child process exits, whether
// by natural termination or by Terminate/Stop.
type ExitFunc func(exitCode int)

// Spawn starts command in workingDir with the given initial PTY size. The
// onOutput callback fires on every read-pump chunk; onExit fires exactly
// once when the process exits. Both callbacks run on ptyproc's own
// goroutines and must not block.
func Spawn(command []string, workingDir string, cols, rows int, env []string, onOutput OutputFunc, onExit ExitFunc) (*PTYProcess, error) {
	if len(command) == 0 {
		return nil, &SpawnError{Kind: KindSpawnFailed, Message: "command must not be empty"}
	}

	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, &SpawnError{Kind: KindExecutableNotFound, Message: fmt.Sprintf("executable %q not found: %v", command[0], err)}
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = workingDir
	cmd.Env = env

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, &SpawnError{Kind: KindSpawnFailed, Message: err.Error()}
	}

	p := &PTYProcess{
		cmd:    cmd,
		master: master,
		cols:   cols,
		rows:   rows,
	}
	p.running.Store(true)
	if cmd.Process != nil {
		p.pid = cmd.Process.Pid
	}

	p.wg.Add(2)
	go p.readPump(onOutput)
	go p.waitForExit(onExit)

	return p, nil
}

// PTYProcess is the real, creack/pty-backed Process implementation.
type PTYProcess struct {
	cmd    *exec.Cmd
	master *os.File
	pid    int

	mu   sync.Mutex
	cols int
	rows int

	running  atomic.Bool
	exitCode atomic.Int32
	exited   atomic.Bool

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// PID returns the child process's OS PID.
func (p *PTYProcess) PID() int { return p.pid }

// IsRunning reports whether the child is still running.
func (p *PTYProcess) IsRunning() bool { return p.running.Load() }

// ExitCode returns the exit code once the process has exited, or nil
// while still running.
func (p *PTYProcess) ExitCode() *int {
	if !p.exited.Load() {
		return nil
	}
	code := int(p.exitCode.Load())
	return &code
}

// Write sends data to the PTY master, i.e. to the child's stdin.
func (p *PTYProcess) Write(data []byte) (int, error) {
	return p.master.Write(data)
}

// Resize changes the PTY window size.
func (p *PTYProcess) Resize(cols, rows int) error {
	if err := pty.Setsize(p.master, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return err
	}
	p.mu.Lock()
	p.cols, p.rows = cols, rows
	p.mu.Unlock()
	return nil
}

// Terminate sends SIGTERM to the child. Idempotent: a second call on an
// already-terminated process is a no-op.
func (p *PTYProcess) Terminate() error {
	if !p.running.Load() {
		return nil
	}
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// Stop is a synchronous shutdown: signal the child, close the PTY master
// (which makes the read pump's pending read fail and end the pump), and
// block until both the read
// pump and the wait goroutine have joined. Idempotent.
func (p *PTYProcess) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
		}
		err = p.master.Close()
		p.wg.Wait()
	})
	return err
}

func (p *PTYProcess) readPump(onOutput OutputFunc) {
	defer p.wg.Done()
	buf := make([]byte, readChunkSize)
	for {
		n, err := p.master.Read(buf)
		if n > 0 && onOutput != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onOutput(chunk)
		}
		if err != nil {
			// EOF and EIO are the normal end once the child side closes;
			// any other error (including os.ErrClosed once the master is
			// closed) is fatal and ends the pump as well.
			if err == io.EOF || isEIO(err) {
				return
			}
			return
		}
		if n == 0 {
			time.Sleep(emptyReadYield)
		}
	}
}

func (p *PTYProcess) waitForExit(onExit ExitFunc) {
	defer p.wg.Done()
	waitErr := p.cmd.Wait()
	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	p.running.Store(false)
	p.exitCode.Store(int32(code))
	p.exited.Store(true)
	_ = p.master.Close()
	if onExit != nil {
		onExit(code)
	}
}

// isEIO reports whether err is the EIO a PTY read returns once its
// master side has been closed out from under an in-flight read.
func isEIO(err error) bool {
	var pe *os.PathError
	if errors.As(err, &pe) {
		if errno, ok := pe.Err.(syscall.Errno); ok {
			return errno == syscall.EIO
		}
	}
	return false
}
