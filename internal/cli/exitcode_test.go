package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ramdhan/mnemo/pkg/rebuild"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"success", nil, ExitOK},
		{"generic failure", errors.New("boom"), ExitError},
		{"lock held", rebuild.ErrLockHeld, ExitLockHeld},
		{"confirmation declined", rebuild.ErrConfirmationRequired, ExitDeclined},
		{"concurrent writer", rebuild.ErrConcurrentWriter, ExitConcurrentWriter},
		{"fingerprint mismatch", rebuild.ErrFingerprintMismatch, ExitFingerprintMismatch},
		{"wrapped lock held", fmt.Errorf("run failed: %w", rebuild.ErrLockHeld), ExitLockHeld},
		{"wrapped concurrent writer", fmt.Errorf("%w: background writer pid 42", rebuild.ErrConcurrentWriter), ExitConcurrentWriter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ExitCodeFor(tt.err))
		})
	}
}

func TestHintFor(t *testing.T) {
	assert.Empty(t, HintFor(errors.New("boom")))
	assert.Contains(t, HintFor(rebuild.ErrConfirmationRequired), "--force")
	assert.Contains(t, HintFor(rebuild.ErrFingerprintMismatch), "--restart")
	assert.NotEmpty(t, HintFor(fmt.Errorf("wrapped: %w", rebuild.ErrLockHeld)))
	assert.NotEmpty(t, HintFor(rebuild.ErrConcurrentWriter))
}
