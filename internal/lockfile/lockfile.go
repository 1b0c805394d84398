// Package lockfile guards a state directory against a second ovnchat process.
//
// The WhatsApp device store and the SQLite database live in the state directory and must have a
// single writer. The lock is an flock on a file in that directory, so the kernel drops it when
// the holder exits, however it exits.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the lock file created in the state directory.
const LockFileName = "ovnchat.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID     int
	Started time.Time
	Running bool
}

func (h Holder) String() string {
	if h.PID == 0 {
		return "unknown process"
	}
	state := "not running, stale lock"
	if h.Running {
		state = "running"
	}
	if h.Started.IsZero() {
		return fmt.Sprintf("PID %d (%s)", h.PID, state)
	}
	return fmt.Sprintf("PID %d started %s (%s)", h.PID, h.Started.Format(time.RFC3339), state)
}

// AcquireLock takes the lock on stateDir, creating the directory if needed. It fails at once
// with a *LockError when another process holds it.
func AcquireLock(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", stateDir, err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := ReadHolder(lockPath)
		slog.Error("AcquireLock: state directory is locked", "lock_path", lockPath, "holder", holder.String(), "error", err)
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	if err := writeHolder(file, time.Now()); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("write lock file %s: %w", lockPath, err)
	}

	slog.Info("AcquireLock: state directory locked", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

func writeHolder(file *os.File, started time.Time) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(file, "pid=%d\nstarted=%s\n", os.Getpid(), started.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("AcquireLock: lock file not synced", "error", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks and removes the lock file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lock.Release: unlock failed", "lock_path", l.path, "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Warn("Lock.Release: close failed", "lock_path", l.path, "error", err)
	}
	l.file = nil
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file %s: %w", l.path, err)
	}
	slog.Info("Lock.Release: state directory unlocked", "lock_path", l.path)
	return nil
}

// LockError reports a state directory held by another process.
type LockError struct {
	LockPath string
	Holder   Holder
	Cause    error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("another ovnchat instance holds the state directory (lock file %s, held by %s); "+
		"if no other instance is running, remove the lock file and retry", e.LockPath, e.Holder)
}

func (e *LockError) Unwrap() error { return e.Cause }

// ReadHolder parses the lock file at path. Missing or unreadable fields are left zero.
func ReadHolder(path string) Holder {
	var h Holder
	f, err := os.Open(path)
	if err != nil {
		return h
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "started":
			h.Started, _ = time.Parse(time.RFC3339, value)
		}
	}
	if h.PID > 0 {
		h.Running = processRunning(h.PID)
	}
	return h
}

// processRunning probes pid with signal 0.
func processRunning(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
