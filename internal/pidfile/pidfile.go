// Package pidfile keeps a second bridge from grabbing the same serial ports.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrRunning is returned by Acquire when a live process owns the PID file.
var ErrRunning = errors.New("another wsserial instance is running")

// Pidfile represents a PID file
type Pidfile struct {
	path string
	pid  int
}

func New(path string) *Pidfile {
	return &Pidfile{
		path: path,
		pid:  os.Getpid(),
	}
}

// Acquire creates the PID file exclusively. A file naming a live process
// refuses the start, a stale one left by a crashed bridge is replaced once.
func (p *Pidfile) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create pidfile directory: %w", err)
	}

	err := p.create()
	if !errors.Is(err, os.ErrExist) {
		return err
	}

	stale, reason, err := p.checkStale()
	if err != nil {
		return err
	}
	if !stale {
		return fmt.Errorf("%w (%s, %s)", ErrRunning, reason, p.path)
	}
	if reason == "ours" {
		return nil
	}

	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale pidfile (%s): %w", reason, err)
	}
	if err := p.create(); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w (%s)", ErrRunning, p.path)
		}
		return err
	}
	return nil
}

// create writes our PID to a file that must not exist yet.
func (p *Pidfile) create() error {
	file, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return err
		}
		return fmt.Errorf("failed to create pidfile: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(strconv.Itoa(p.pid) + "\n"); err != nil {
		os.Remove(p.path)
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	if err := file.Sync(); err != nil {
		os.Remove(p.path)
		return fmt.Errorf("failed to sync pidfile: %w", err)
	}
	return nil
}

// checkStale reports whether the existing file may be replaced. Our own PID
// counts as stale with reason "ours". An empty file belongs to an instance
// that is still writing it.
func (p *Pidfile) checkStale() (bool, string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, "removed", nil
		}
		return false, "", fmt.Errorf("failed to read pidfile: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return false, "pidfile is being written", nil
	}
	pid, err := strconv.Atoi(content)
	if err != nil {
		return true, "invalid content", nil
	}
	switch {
	case pid == p.pid:
		return true, "ours", nil
	case processAlive(pid):
		return false, fmt.Sprintf("pid %d", pid), nil
	}
	return true, fmt.Sprintf("pid %d not running", pid), nil
}

func (p *Pidfile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pidfile: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in pidfile: %w", err)
	}
	return pid, nil
}

// Release removes the PID file if it still names this process.
func (p *Pidfile) Release() error {
	pid, err := p.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if pid != p.pid {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pidfile: %w", err)
	}
	return nil
}

// Path returns the location of the PID file.
func (p *Pidfile) Path() string {
	return p.path
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, os.ErrPermission)
}
