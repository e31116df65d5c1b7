package main

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/config"
	"github.com/zulandar/roundhouse/internal/registry"
	"github.com/zulandar/roundhouse/internal/runtime"
	"github.com/zulandar/roundhouse/internal/store"
	"github.com/zulandar/roundhouse/internal/workflow"
)

const defaultConfigPath = "roundhouse.yaml"

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist. An explicit path must exist; a broken file
// is always an error.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && path == defaultConfigPath {
		return config.Default(), nil
	}
	return cfg, err
}

// openStore builds the configured persistence backend. Database backends
// are migrated on open.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		st, err := store.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := st.AutoMigrate(); err != nil {
			return nil, err
		}
		return st, nil
	case "mysql":
		st, err := store.OpenMySQL(cfg.Store.MySQLHost, cfg.Store.MySQLPort,
			cfg.Store.MySQLUser, cfg.Store.MySQLDatabase)
		if err != nil {
			return nil, err
		}
		if err := st.AutoMigrate(); err != nil {
			return nil, err
		}
		return st, nil
	case "file":
		return store.OpenFile(cfg.Store.FileDir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildRegistry loads all agents with the workflow factory wired for live
// log persistence and console capture.
func buildRegistry(cfg *config.Config, st store.Store, capture *runtime.CaptureBuffer, logger *zap.Logger) (*registry.Registry, error) {
	factory := workflow.NewFactory(workflow.Opts{
		Binary:  cfg.ClaudeBinary,
		WorkDir: cfg.WorkDir,
		Timeout: cfg.ExecTimeout,
		Capture: capture,
		SinkFor: func(taskID string) agent.LogSink {
			return func(e agent.LogEntry) {
				if err := st.AppendEntries(taskID, []agent.LogEntry{e}); err != nil {
					logger.Warn("persist log entry failed",
						zap.String("task", taskID), zap.Error(err))
				}
			}
		},
		Logger: logger,
	})
	reg, err := registry.New(registry.Opts{
		Dir:     cfg.AgentsDir,
		Factory: factory,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	if _, err := reg.LoadAll(); err != nil {
		return nil, err
	}
	return reg, nil
}

func buildLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}
