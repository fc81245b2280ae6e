package integrity

import "fmt"

// Status classifies a Count as healthy or unhealthy with a human-readable
// warning. Derived purely from the counts; no store access.
type Status struct {
	Healthy bool   `json:"healthy"`
	Warning string `json:"warning,omitempty"`
}

// Thresholds are the evaluation policy knobs. These are policy choices, not
// derived from a formal model; keep them configurable.
type Thresholds struct {
	// MinRatio is the derived/primary ratio below which a workspace is
	// considered out of sync.
	MinRatio float64
	// NoiseFloor is the primary count at or below which ratio violations
	// are tolerated, avoiding off-by-one false positives in tiny
	// workspaces.
	NoiseFloor int64
}

// DefaultThresholds returns the standard evaluation policy.
func DefaultThresholds() Thresholds {
	return Thresholds{MinRatio: 0.9, NoiseFloor: 5}
}

// Evaluate classifies a count pair. Rules, in order:
//
//  1. Both counts <= 0: healthy. An empty or unreadable workspace is not
//     an error.
//  2. Primary present but no derived data: unhealthy.
//  3. Derived within MinRatio of primary: healthy, tolerating minor drift.
//  4. Primary above NoiseFloor with a poor ratio: unhealthy.
//  5. Otherwise (small workspace): healthy.
func Evaluate(c Count, t Thresholds) Status {
	if t.MinRatio <= 0 {
		t.MinRatio = 0.9
	}

	if c.Primary <= 0 && c.Derived <= 0 {
		return Status{Healthy: true}
	}

	if c.Primary > 0 && c.Derived <= 0 {
		return Status{
			Healthy: false,
			Warning: fmt.Sprintf("primary store has %d entries but no derived data detected", c.Primary),
		}
	}

	if float64(c.Derived) >= t.MinRatio*float64(c.Primary) {
		return Status{Healthy: true}
	}

	if c.Primary > t.NoiseFloor {
		return Status{
			Healthy: false,
			Warning: fmt.Sprintf("primary store has %d entries but only %d derived rows", c.Primary, c.Derived),
		}
	}

	return Status{Healthy: true}
}
