package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/locallm/internal/models"
	"github.com/zulandar/locallm/internal/settings"
)

// settingsFlags addresses one scope, shared by the settings subcommands.
type settingsFlags struct {
	configPath string
	scope      string
	scopeID    int64
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	addConfigFlag(cmd, &f.configPath)
	cmd.Flags().StringVarP(&f.scope, "scope", "s", string(models.ScopeGlobal), "setting scope (global, chat, api)")
	cmd.Flags().Int64Var(&f.scopeID, "scope-id", 0, "conversation or API client id for chat/api scope")
}

func (f *settingsFlags) id(cmd *cobra.Command) *int64 {
	if !cmd.Flags().Changed("scope-id") {
		return nil
	}
	id := f.scopeID
	return &id
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change scoped settings",
	}

	cmd.AddCommand(newSettingsListCmd())
	cmd.AddCommand(newSettingsGetCmd())
	cmd.AddCommand(newSettingsSetCmd())
	cmd.AddCommand(newSettingsDeleteCmd())
	return cmd
}

func newSettingsListCmd() *cobra.Command {
	var f settingsFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List settings in a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, f.configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			views, err := a.settings.GetSettingsByScope(contextOf(cmd), models.Scope(f.scope), f.id(cmd))
			if err != nil {
				return err
			}
			return printSettings(cmd, views)
		},
	}
	f.register(cmd)
	return cmd
}

func newSettingsGetCmd() *cobra.Command {
	var f settingsFlags
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Show one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, f.configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			v, err := a.settings.GetSetting(contextOf(cmd), models.SettingKey(args[0]), models.Scope(f.scope), f.id(cmd))
			if err != nil {
				return err
			}
			return printSettings(cmd, []settings.View{*v})
		},
	}
	f.register(cmd)
	return cmd
}

func newSettingsSetCmd() *cobra.Command {
	var (
		f           settingsFlags
		valueType   string
		description string
	)
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Create or overwrite a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, f.configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			v, err := a.settings.UpsertSetting(contextOf(cmd), models.SettingKey(args[0]), models.Scope(f.scope), f.id(cmd), settings.SettingData{
				Value:       args[1],
				ValueType:   models.ValueType(valueType),
				Description: description,
			})
			if err != nil {
				return err
			}
			return printSettings(cmd, []settings.View{*v})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&valueType, "type", "t", "", "value type, defaulting to the key's own type or string (string, integer, float, boolean, json, array, object, datetime, date, time, url, uuid, enum)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "human-readable description")
	return cmd
}

func newSettingsDeleteCmd() *cobra.Command {
	var f settingsFlags
	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a setting (no error if absent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, f.configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.settings.DeleteSetting(contextOf(cmd), models.SettingKey(args[0]), models.Scope(f.scope), f.id(cmd)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", args[0], f.scope)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func openApp(cmd *cobra.Command, configPath string) (*app, error) {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, appOpts{})
}

func printSettings(cmd *cobra.Command, views []settings.View) error {
	out := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(out, "No settings.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSCOPE\tSCOPE_ID\tTYPE\tVALUE")
	for _, v := range views {
		scopeID := "-"
		if v.ScopeID != nil {
			scopeID = strconv.FormatInt(*v.ScopeID, 10)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.Key, v.Scope, scopeID, v.ValueType, displayValue(v.Value))
	}
	return w.Flush()
}

func displayValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
