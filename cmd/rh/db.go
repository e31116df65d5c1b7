package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zulandar/roundhouse/internal/config"
	"github.com/zulandar/roundhouse/internal/store"
)

func newDBCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the database and all tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Drop all data and recreate the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath)
		},
	})
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	st, err := openGormStore(cfg)
	if err != nil {
		return err
	}
	if err := st.AutoMigrate(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables (%s backend)\n",
		len(store.AllModels()), cfg.Store.Backend)
	return nil
}

func runDBReset(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if cfg.Store.Backend == "file" {
		if err := os.RemoveAll(cfg.Store.FileDir); err != nil {
			return fmt.Errorf("remove %s: %w", cfg.Store.FileDir, err)
		}
		fmt.Fprintf(out, "Removed task directory %s\n", cfg.Store.FileDir)
		return nil
	}

	st, err := openGormStore(cfg)
	if err != nil {
		return err
	}
	if err := st.DB().Migrator().DropTable(store.AllModels()...); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	if err := st.AutoMigrate(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Reset %d tables (%s backend)\n",
		len(store.AllModels()), cfg.Store.Backend)
	return nil
}

// openGormStore opens the configured database backend, rejecting the file
// backend which has no schema to manage.
func openGormStore(cfg *config.Config) (*store.GormStore, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return store.OpenSQLite(cfg.Store.SQLitePath)
	case "mysql":
		return store.OpenMySQL(cfg.Store.MySQLHost, cfg.Store.MySQLPort,
			cfg.Store.MySQLUser, cfg.Store.MySQLDatabase)
	default:
		return nil, fmt.Errorf("store backend %q has no database schema", cfg.Store.Backend)
	}
}
