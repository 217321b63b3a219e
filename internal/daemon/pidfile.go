// Package daemon tracks the background "ka serve" process through a PID file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNotRunning is returned when no live process is recorded in the PID file.
var ErrNotRunning = errors.New("server is not running")

// PIDFile manages a PID file for daemon process tracking.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write writes the current process's PID to the file.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// WritePID writes the given PID to the file.
func (p *PIDFile) WritePID(pid int) error {
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// Status describes the process behind a PID file.
type Status struct {
	PID     int
	Running bool
	// Stale is set when the file names a process that no longer exists.
	Stale bool
}

// Status inspects the PID file without modifying it.
func (p *PIDFile) Status() Status {
	pid, running := p.IsRunning()
	return Status{PID: pid, Running: running, Stale: pid != 0 && !running}
}

// Stop asks the recorded process to terminate, waits up to grace for it to
// exit, then kills it. The PID file is removed once the process is gone.
func (p *PIDFile) Stop(grace time.Duration) error {
	pid, running := p.IsRunning()
	if !running {
		if pid != 0 {
			_ = p.Remove()
		}
		return ErrNotRunning
	}

	if err := p.Signal(sigTerm); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}
	if !p.waitExit(grace) {
		if err := p.Signal(sigKill); err != nil {
			return fmt.Errorf("kill process %d: %w", pid, err)
		}
		p.waitExit(grace)
	}

	if err := p.Remove(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return nil
}

func (p *PIDFile) waitExit(grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if _, running := p.IsRunning(); !running {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	_, running := p.IsRunning()
	return !running
}
