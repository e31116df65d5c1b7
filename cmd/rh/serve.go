package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zulandar/roundhouse/internal/config"
	"github.com/zulandar/roundhouse/internal/gateway"
	"github.com/zulandar/roundhouse/internal/janitor"
	"github.com/zulandar/roundhouse/internal/notify"
	"github.com/zulandar/roundhouse/internal/repocheck"
	"github.com/zulandar/roundhouse/internal/runtime"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway server",
		Long:  "Starts the HTTP gateway with the agent registry, the stale-task janitor, and completion notifications. Shuts down on SIGINT/SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Port = port
	}

	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	capture := runtime.NewCaptureBuffer(0)
	reg, err := buildRegistry(cfg, st, capture, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}
	notifier.Connect(ctx)
	defer notifier.Close()

	opts := gateway.Opts{
		Registry: reg,
		Store:    st,
		Capture:  capture,
		Logger:   logger,
		Port:     cfg.Port,
		Notify:   notifier.TaskFinished,
	}
	if cfg.GitHub.Token != "" {
		opts.RepoCheck = repocheck.New(cfg.GitHub.Token).Verify
	}
	srv, err := gateway.New(opts)
	if err != nil {
		return err
	}

	jan, err := janitor.New(janitor.Opts{
		Store:    st,
		Schedule: cfg.Janitor.Schedule,
		Cutoff:   cfg.Janitor.StaleCutoff,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	// Fail anything orphaned by a previous process before serving.
	if err := jan.Sweep(); err != nil {
		logger.Warn("startup sweep failed", zap.Error(err))
	}
	jan.Start()
	defer jan.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Roundhouse listening on :%d (%d agents)\n",
		cfg.Port, len(reg.List()))
	return srv.Start(ctx)
}

func buildNotifier(cfg *config.Config, logger *zap.Logger) (*notify.Notifier, error) {
	var adapters []notify.Adapter
	if cfg.Notify.SlackBotToken != "" {
		a, err := notify.NewSlack(notify.SlackOpts{
			BotToken:  cfg.Notify.SlackBotToken,
			ChannelID: cfg.Notify.SlackChannel,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if cfg.Notify.DiscordToken != "" {
		a, err := notify.NewDiscord(notify.DiscordOpts{
			BotToken:  cfg.Notify.DiscordToken,
			ChannelID: cfg.Notify.DiscordChannel,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return notify.New(logger, adapters...), nil
}
