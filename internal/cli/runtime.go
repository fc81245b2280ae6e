package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ramdhan/mnemo/internal/config"
	"github.com/ramdhan/mnemo/internal/logger"
	"github.com/ramdhan/mnemo/pkg/engine"
	"github.com/ramdhan/mnemo/pkg/migrate"
	"github.com/ramdhan/mnemo/pkg/workspace"
)

// runtime bundles everything a workspace-scoped command needs. Built per
// invocation and torn down explicitly; there is no hidden process-wide
// state.
type runtime struct {
	cfg     *config.Config
	layout  *workspace.Layout
	journal *logger.Journal
	logFile *os.File
	engine  *engine.Local
}

// newRuntime loads configuration, resolves the workspace, opens the journal
// and, when openEngine is set, runs the migration safety gate and opens the
// local engine.
func newRuntime(workspacePath string, openEngine bool) (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	layout, err := workspace.Resolve(workspacePath)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyWorkspaceSettings(cfg, layout.SettingsFile()); err != nil {
		return nil, err
	}
	if err := layout.EnsureStateDir(); err != nil {
		return nil, err
	}

	// The flag wins when given; otherwise the configured level applies.
	levelName := logLevel
	if levelName == "" {
		levelName = cfg.Logging.Level
	}
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}

	sink, logFile, err := logger.Sink(logger.Config{
		Console: true,
		Pretty:  cfg.Logging.Pretty,
		File:    cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}
	journal, err := logger.OpenJournal(layout.JournalFile(), level, sink)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}

	rt := &runtime{cfg: cfg, layout: layout, journal: journal, logFile: logFile}

	if openEngine {
		// The gate runs before the engine creates or migrates any schema.
		if _, err := migrate.Gate(layout, journal.Logger()); err != nil {
			journal.Close()
			return nil, err
		}

		eng, err := engine.NewLocal(engine.LocalConfig{
			PrimaryDBPath: layout.PrimaryDB(),
			VectorDBPath:  layout.VectorDB(),
			Logger:        journal.Logger(),
			Provider:      buildProvider(cfg.Embedding),
		})
		if err != nil {
			journal.Close()
			return nil, err
		}
		rt.engine = eng
	}

	return rt, nil
}

func (rt *runtime) close() {
	if rt.engine != nil {
		if err := rt.engine.Close(); err != nil {
			log := rt.journal.Logger()
			log.Error().Err(err).Msg("Failed to close engine")
		}
	}
	rt.journal.Close()
	if rt.logFile != nil {
		rt.logFile.Close()
	}
}

func buildProvider(cfg config.EmbeddingConfig) engine.EmbeddingProvider {
	if cfg.Provider == "openai" {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		model := cfg.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		return engine.NewOpenAIProvider(apiKey, model)
	}
	return engine.NewLocalProvider(cfg.Dimension)
}

// requireWorkspaceArg validates the single positional workspace argument.
func requireWorkspaceArg(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected exactly one workspace path argument")
	}
	return args[0], nil
}
