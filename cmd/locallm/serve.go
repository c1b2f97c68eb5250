package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/locallm/internal/conversation"
	"github.com/zulandar/locallm/internal/logger"
	"github.com/zulandar/locallm/internal/server"
	"github.com/zulandar/locallm/internal/settings"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Starts the JSON API for generation, conversations and settings.

When redis.address is configured, settings changes that affect the cached
system prompt are broadcast to every instance. When retention.schedule is
configured, idle conversations are swept on that schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var invalidator *settings.RedisInvalidator
	opts := appOpts{Logger: log}
	if cfg.Redis.Address != "" {
		client, err := settings.DialRedis(ctx, cfg.Redis.Address, cfg.Redis.Password)
		if err != nil {
			return err
		}
		defer client.Close()
		invalidator = settings.NewRedisInvalidator(log, client, cfg.Redis.Channel)
		opts.Broadcaster = invalidator
	}

	a, err := newApp(cfg, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if invalidator != nil {
		if err := invalidator.Start(ctx, a.settings.HandleInvalidation); err != nil {
			return err
		}
		defer invalidator.Stop()
	}

	if cfg.Retention.Schedule != "" {
		sweeper, err := conversation.NewSweeper(conversation.SweeperOpts{
			Store:    a.conversations.Conversations(),
			Schedule: cfg.Retention.Schedule,
			MaxAge:   time.Duration(cfg.Retention.MaxAgeDays) * 24 * time.Hour,
			Logger:   log,
		})
		if err != nil {
			return err
		}
		go sweeper.Run(ctx)
	}

	log.Info("starting locallm", "version", Version, "addr", cfg.Addr(),
		"database", cfg.Database.Driver, "backend", cfg.Generation.Backend)
	err = server.Start(ctx, server.Opts{
		Settings:      a.settings,
		Conversations: a.conversations,
		Generator:     a.generator,
		Logger:        log,
		CORSOrigins:   cfg.Server.CORSOrigins,
		Addr:          cfg.Addr(),
		Out:           cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped.")
	return nil
}
