package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/zulandar/locallm/internal/config"
	"github.com/zulandar/locallm/internal/conversation"
	"github.com/zulandar/locallm/internal/db"
	"github.com/zulandar/locallm/internal/generation"
	"github.com/zulandar/locallm/internal/logger"
	"github.com/zulandar/locallm/internal/settings"
	"gorm.io/gorm"
)

const defaultConfigPath = "locallm.yaml"

func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", defaultConfigPath, "path to locallm config file")
}

// loadConfig reads the config at path. When the flag was left at its
// default and the file does not exist, defaults and environment are used.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	if !cmd.Flags().Changed("config") && path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// app is the wired set of services shared by serve, chat and settings.
type app struct {
	cfg           *config.Config
	log           *logger.Logger
	db            *gorm.DB
	retry         *db.RetryPolicy
	settings      *settings.Service
	conversations *conversation.Manager
	generator     *generation.Service
}

// appOpts carries optional collaborators for newApp.
type appOpts struct {
	Logger      *logger.Logger
	Broadcaster settings.Broadcaster
}

func newApp(cfg *config.Config, opts appOpts) (*app, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	retry := db.RetryPolicyFromConfig(cfg.Database)

	store, err := settings.NewStore(settings.StoreOpts{DB: gormDB, Retry: retry})
	if err != nil {
		return nil, err
	}
	settingsSvc, err := settings.NewService(settings.ServiceOpts{
		Store:                store,
		Logger:               log,
		FallbackSystemPrompt: cfg.Settings.DefaultSystemPrompt,
		Broadcaster:          opts.Broadcaster,
	})
	if err != nil {
		return nil, err
	}

	convStore, err := conversation.NewStore(conversation.StoreOpts{DB: gormDB, Retry: retry})
	if err != nil {
		return nil, err
	}
	msgStore, err := conversation.NewMessageStore(conversation.StoreOpts{DB: gormDB, Retry: retry})
	if err != nil {
		return nil, err
	}
	manager, err := conversation.NewManager(conversation.ManagerOpts{
		Conversations:  convStore,
		Messages:       msgStore,
		Prompts:        settingsSvc,
		Logger:         log,
		WelcomeMessage: cfg.Settings.WelcomeMessage,
	})
	if err != nil {
		return nil, err
	}

	backend, err := generation.NewBackend(cfg.Generation)
	if err != nil {
		return nil, err
	}
	generator, err := generation.NewService(generation.ServiceOpts{
		Manager:  manager,
		Settings: settingsSvc,
		Backend:  backend,
		Config:   cfg.Generation,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:           cfg,
		log:           log,
		db:            gormDB,
		retry:         retry,
		settings:      settingsSvc,
		conversations: manager,
		generator:     generator,
	}, nil
}

// Close releases the database connection pool.
func (a *app) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
