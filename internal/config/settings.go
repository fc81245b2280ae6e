package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// settingsSchema validates the optional per-workspace settings file before
// any of its values are merged. A malformed settings file is rejected, not
// partially applied.
const settingsSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"batch_size": {"type": "integer", "minimum": 1},
		"max_file_size": {"type": "integer", "minimum": 1},
		"source_extension": {"type": "string", "pattern": "^\\.[A-Za-z0-9]+$"},
		"collection": {"type": "string", "minLength": 1},
		"integrity": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"min_ratio": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
				"noise_floor": {"type": "integer", "minimum": 0}
			}
		}
	}
}`

// Settings are per-workspace overrides of the rebuild and integrity policy.
type Settings struct {
	BatchSize       int    `json:"batch_size,omitempty"`
	MaxFileSize     int64  `json:"max_file_size,omitempty"`
	SourceExtension string `json:"source_extension,omitempty"`
	Collection      string `json:"collection,omitempty"`
	Integrity       *struct {
		MinRatio   float64 `json:"min_ratio,omitempty"`
		NoiseFloor int64   `json:"noise_floor,omitempty"`
	} `json:"integrity,omitempty"`
}

// ApplyWorkspaceSettings merges the settings file at path into cfg. A
// missing file is a no-op; an invalid file is an error.
func ApplyWorkspaceSettings(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read workspace settings: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(settingsSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("failed to validate workspace settings: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("invalid workspace settings: %s", strings.Join(problems, "; "))
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse workspace settings: %w", err)
	}

	if s.BatchSize > 0 {
		cfg.Rebuild.BatchSize = s.BatchSize
	}
	if s.MaxFileSize > 0 {
		cfg.Rebuild.MaxFileSize = s.MaxFileSize
	}
	if s.SourceExtension != "" {
		cfg.Rebuild.SourceExtension = s.SourceExtension
	}
	if s.Collection != "" {
		cfg.Rebuild.Collection = s.Collection
	}
	if s.Integrity != nil {
		if s.Integrity.MinRatio > 0 {
			cfg.Integrity.MinRatio = s.Integrity.MinRatio
		}
		if s.Integrity.NoiseFloor > 0 {
			cfg.Integrity.NoiseFloor = s.Integrity.NoiseFloor
		}
	}

	return nil
}
