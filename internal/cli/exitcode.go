package cli

import (
	"errors"

	"github.com/ramdhan/mnemo/pkg/rebuild"
)

// Documented exit codes. Every failure path maps to exactly one of these.
const (
	ExitOK                  = 0
	ExitError               = 1
	ExitLockHeld            = 2
	ExitDeclined            = 3
	ExitConcurrentWriter    = 4
	ExitFingerprintMismatch = 5
)

// ExitCodeFor maps an error to its documented exit code.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, rebuild.ErrLockHeld):
		return ExitLockHeld
	case errors.Is(err, rebuild.ErrConfirmationRequired):
		return ExitDeclined
	case errors.Is(err, rebuild.ErrConcurrentWriter):
		return ExitConcurrentWriter
	case errors.Is(err, rebuild.ErrFingerprintMismatch):
		return ExitFingerprintMismatch
	default:
		return ExitError
	}
}

// HintFor returns a remediation hint for known failure conditions, or ""
// when none applies.
func HintFor(err error) string {
	switch {
	case errors.Is(err, rebuild.ErrLockHeld):
		return "another maintenance operation is in progress; wait for it or remove a stale lock with the workspace idle"
	case errors.Is(err, rebuild.ErrConfirmationRequired):
		return "re-run with --force to confirm the destructive reset"
	case errors.Is(err, rebuild.ErrConcurrentWriter):
		return "stop the background watch service before running maintenance"
	case errors.Is(err, rebuild.ErrFingerprintMismatch):
		return "inputs changed since the last checkpoint; re-run with --restart to rebuild from scratch"
	default:
		return ""
	}
}
