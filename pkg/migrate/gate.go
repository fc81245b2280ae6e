package migrate

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ramdhan/mnemo/pkg/workspace"
)

// SchemaVersion identifies the current store schema. Recorded in markers
// written by the gate.
const SchemaVersion = "2"

// Reasons recorded on markers written by the gate.
const (
	ReasonDataPresent    = "data_present"
	ReasonFreshWorkspace = "fresh_workspace"
)

// Decision is the gate's outcome. Prune is always false under the current
// policy; the fields record why so callers can log and audit it.
type Decision struct {
	Prune       bool
	Reason      string
	WroteMarker bool
}

// Gate runs once at store-initialization time, before any potentially
// destructive legacy-schema prune could be issued to the engine. It is
// strictly conservative: it may skip a prune it did not need to skip, but
// never allows one that could discard real data without a validated marker.
func Gate(l *workspace.Layout, logger zerolog.Logger) (Decision, error) {
	marker, err := ReadMarker(l.MarkerFile())
	if err != nil {
		return Decision{}, err
	}
	if marker != nil {
		logger.Debug().
			Str("version", marker.Version).
			Msg("Migration marker present, prune forbidden")
		return Decision{Reason: "marker_present"}, nil
	}

	reason := ReasonFreshWorkspace
	if hasDerivedData(l) {
		reason = ReasonDataPresent
	}

	m := Marker{
		Version:      SchemaVersion,
		MigratedAt:   timeNow(),
		PruneSkipped: true,
		Reason:       reason,
	}
	if err := WriteMarker(l.MarkerFile(), m); err != nil {
		return Decision{}, err
	}

	logger.Info().
		Str("reason", reason).
		Msg("Migration marker written, prune skipped")
	return Decision{Reason: reason, WroteMarker: true}, nil
}

// hasDerivedData is a lightweight structural check for existing derived
// data: any non-empty file under the derived store's on-disk location.
// Deliberately independent of the integrity counter so it still works when
// the store lookup itself is failing.
func hasDerivedData(l *workspace.Layout) bool {
	matches, err := filepath.Glob(l.VectorDB() + "*")
	if err != nil {
		return false
	}
	for _, path := range matches {
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() && info.Size() > 0 {
			return true
		}
	}
	return false
}
