package home

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned when the PID file names a live process.
var ErrAlreadyRunning = errors.New("narrator is already running")

// WritePidFile writes the current process ID to the given path.
func WritePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// RemovePidFile removes the PID file at the given path.
func RemovePidFile(path string) {
	_ = os.Remove(path)
}

// ReadPidFile reads the process ID from the given PID file.
func ReadPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file contents: %w", err)
	}
	return pid, nil
}

// IsProcessAlive checks whether a process with the given PID is running.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 checks existence without sending a real signal. EPERM means
	// the process exists but belongs to someone else.
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// AcquirePid claims the home for this process. A stale file left by a dead
// process is replaced.
func (d *Dir) AcquirePid() error {
	if pid, err := ReadPidFile(d.PidPath()); err == nil && pid != os.Getpid() && IsProcessAlive(pid) {
		return fmt.Errorf("%w (pid %d, home %s)", ErrAlreadyRunning, pid, d.path)
	}
	return WritePidFile(d.PidPath())
}

// ReleasePid removes the PID file if it still belongs to this process.
func (d *Dir) ReleasePid() {
	if pid, err := ReadPidFile(d.PidPath()); err == nil && pid == os.Getpid() {
		RemovePidFile(d.PidPath())
	}
}
