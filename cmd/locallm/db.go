package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/locallm/internal/config"
	"github.com/zulandar/locallm/internal/db"
	"github.com/zulandar/locallm/internal/models"
	"github.com/zulandar/locallm/internal/settings"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the locallm database",
		Long:  "Migrates all tables and seeds global generation settings from the config. Existing settings are left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, appOpts{})
	if err != nil {
		return err
	}
	defer a.Close()
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	n, err := a.settings.SeedDefaults(contextOf(cmd), defaultSettings(cfg))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d global settings\n", n)
	fmt.Fprintln(out, "\nlocallm database initialized successfully.")
	return nil
}

// defaultSettings are the global settings written by db init.
func defaultSettings(cfg *config.Config) []settings.BatchEntry {
	g := cfg.Generation
	entries := []settings.BatchEntry{
		{Key: models.KeyModelName, SettingData: settings.SettingData{Value: g.ModelName, ValueType: models.TypeString, Description: "default text model"}},
		{Key: models.KeyMaxLength, SettingData: settings.SettingData{Value: g.MaxLength, ValueType: models.TypeInteger, Description: "maximum generated tokens"}},
		{Key: models.KeyTemperature, SettingData: settings.SettingData{Value: g.Temperature, ValueType: models.TypeFloat, Description: "sampling temperature"}},
		{Key: models.KeyTopP, SettingData: settings.SettingData{Value: g.TopP, ValueType: models.TypeFloat, Description: "nucleus sampling probability"}},
		{Key: models.KeyTopK, SettingData: settings.SettingData{Value: g.TopK, ValueType: models.TypeInteger, Description: "top-k sampling cutoff"}},
		{Key: models.KeyRepetitionPenalty, SettingData: settings.SettingData{Value: g.RepetitionPenalty, ValueType: models.TypeFloat, Description: "repetition penalty"}},
	}
	if cfg.Settings.SeedSystemPrompt {
		entries = append(entries, settings.BatchEntry{
			Key:         models.KeySystemPrompt,
			SettingData: settings.SettingData{Value: cfg.Settings.DefaultSystemPrompt, ValueType: models.TypeString, Description: "default system prompt"},
		})
	}
	return entries
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-create every locallm table",
		Long:  "Drops all conversations, messages and settings, then migrates empty tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}

	if !skipConfirm && !confirmReset(cmd, cfg.Database.Driver) {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := db.Reset(gormDB.WithContext(contextOf(cmd))); err != nil {
		return err
	}
	fmt.Fprintf(out, "Reset %d tables\n", len(db.AllModels()))
	return nil
}

func confirmReset(cmd *cobra.Command, driver string) bool {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "WARNING: This will permanently delete all data in the %s database.\n", driver)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}

// contextOf returns the command context, or Background when run without one.
func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
