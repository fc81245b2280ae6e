package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "mnemo.json"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 50, cfg.Rebuild.BatchSize)
	assert.Equal(t, ".md", cfg.Rebuild.SourceExtension)
	assert.Equal(t, "workspace", cfg.Rebuild.Collection)
	assert.Equal(t, 0.9, cfg.Integrity.MinRatio)
	assert.Equal(t, int64(5), cfg.Integrity.NoiseFloor)
	assert.Equal(t, "local", cfg.Embedding.Provider)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemo.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"logging": {"level": "debug"},
		"rebuild": {"batch_size": 10, "source_extension": ".txt"}
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.Rebuild.BatchSize)
	assert.Equal(t, ".txt", cfg.Rebuild.SourceExtension)

	// Untouched sections keep their defaults.
	assert.Equal(t, "workspace", cfg.Rebuild.Collection)
	assert.Equal(t, 0.9, cfg.Integrity.MinRatio)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemo.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
