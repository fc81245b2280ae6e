package lock

import (
	"fmt"
	"os"
	"syscall"
)

// WritePIDFile records the current process as the workspace's background
// writer. The watch service maintains this marker for its lifetime.
func WritePIDFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// RemovePIDFile deletes the liveness marker. Idempotent.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LivePID probes the liveness marker for an active background writer.
// It returns the writer's PID and true when the marker names a process that
// is alive and is not the calling process. A stale or unreadable marker
// reports no live writer.
func LivePID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil || pid <= 0 {
		return 0, false
	}
	if pid == os.Getpid() {
		return 0, false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}

	// On Unix FindProcess always succeeds; signal 0 checks existence.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	return pid, true
}
