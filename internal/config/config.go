// Package config loads tool configuration and per-workspace overrides.
package config

// Config is the main mnemo configuration.
type Config struct {
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
	Rebuild   RebuildConfig   `json:"rebuild" mapstructure:"rebuild"`
	Integrity IntegrityConfig `json:"integrity" mapstructure:"integrity"`
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// RebuildConfig holds rebuild pipeline defaults.
type RebuildConfig struct {
	BatchSize       int    `json:"batch_size" mapstructure:"batch_size"`
	MaxFileSize     int64  `json:"max_file_size" mapstructure:"max_file_size"`
	SourceExtension string `json:"source_extension" mapstructure:"source_extension"`
	Collection      string `json:"collection" mapstructure:"collection"`
}

// IntegrityConfig holds the integrity evaluation policy. The ratio and
// noise floor are policy choices, deliberately configurable.
type IntegrityConfig struct {
	MinRatio   float64 `json:"min_ratio" mapstructure:"min_ratio"`
	NoiseFloor int64   `json:"noise_floor" mapstructure:"noise_floor"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // local, openai
	Model     string `json:"model" mapstructure:"model"`
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	Dimension int    `json:"dimension" mapstructure:"dimension"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		Rebuild: RebuildConfig{
			BatchSize:       50,
			MaxFileSize:     10 * 1024 * 1024,
			SourceExtension: ".md",
			Collection:      "workspace",
		},
		Integrity: IntegrityConfig{
			MinRatio:   0.9,
			NoiseFloor: 5,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Dimension: 256,
		},
	}
}
