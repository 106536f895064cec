package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/quinn/rolo/internal/config"
	"github.com/quinn/rolo/internal/features"
	"github.com/quinn/rolo/internal/output"
	"github.com/quinn/rolo/internal/syncconfig"
	"github.com/spf13/cobra"
)

// validConfigKeys lists the supported config keys for set/get.
var validConfigKeys = []string{
	"sync.url",
	"sync.enabled",
	"sync.auto.enabled",
	"sync.auto.debounce",
	"sync.auto.interval",
	"sync.auto.foreground_min",
	"sync.auto.on_start",
}

func isValidConfigKey(key string) bool {
	for _, k := range validConfigKeys {
		if k == key {
			return true
		}
	}
	return false
}

func parseBool(val string) (bool, error) {
	switch strings.ToLower(val) {
	case "true", "1", "on":
		return true, nil
	case "false", "0", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q (use true/false/1/0)", val)
	}
}

func boolPtr(b bool) *bool { return &b }

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage rolo configuration",
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]

		if !isValidConfigKey(key) {
			output.Error("unknown config key: %s", key)
			fmt.Println("Valid keys:", strings.Join(validConfigKeys, ", "))
			return fmt.Errorf("unknown config key: %s", key)
		}

		cfg, err := syncconfig.LoadConfig()
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}

		switch key {
		case "sync.url":
			cfg.Sync.URL = val
		case "sync.enabled":
			b, err := parseBool(val)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			cfg.Sync.Enabled = b
		case "sync.auto.enabled":
			b, err := parseBool(val)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			cfg.Sync.Auto.Enabled = boolPtr(b)
		case "sync.auto.debounce":
			cfg.Sync.Auto.Debounce = val
		case "sync.auto.interval":
			cfg.Sync.Auto.Interval = val
		case "sync.auto.foreground_min":
			cfg.Sync.Auto.ForegroundMin = val
		case "sync.auto.on_start":
			b, err := parseBool(val)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			cfg.Sync.Auto.OnStart = boolPtr(b)
		}

		if err := syncconfig.SaveConfig(cfg); err != nil {
			output.Error("save config: %v", err)
			return err
		}

		output.Success("set %s = %s", key, val)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		if !isValidConfigKey(key) {
			output.Error("unknown config key: %s", key)
			fmt.Println("Valid keys:", strings.Join(validConfigKeys, ", "))
			return fmt.Errorf("unknown config key: %s", key)
		}

		cfg, err := syncconfig.LoadConfig()
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}

		var val string
		switch key {
		case "sync.url":
			val = cfg.Sync.URL
		case "sync.enabled":
			val = strconv.FormatBool(cfg.Sync.Enabled)
		case "sync.auto.enabled":
			if cfg.Sync.Auto.Enabled != nil {
				val = strconv.FormatBool(*cfg.Sync.Auto.Enabled)
			} else {
				val = "true (default)"
			}
		case "sync.auto.debounce":
			val = cfg.Sync.Auto.Debounce
			if val == "" {
				val = "5s (default)"
			}
		case "sync.auto.interval":
			val = cfg.Sync.Auto.Interval
			if val == "" {
				val = "30m (default)"
			}
		case "sync.auto.foreground_min":
			val = cfg.Sync.Auto.ForegroundMin
			if val == "" {
				val = "5m (default)"
			}
		case "sync.auto.on_start":
			if cfg.Sync.Auto.OnStart != nil {
				val = strconv.FormatBool(*cfg.Sync.Auto.OnStart)
			} else {
				val = "true (default)"
			}
		}

		fmt.Println(val)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all config values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := syncconfig.LoadConfig()
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}

		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			output.Error("marshal config: %v", err)
			return err
		}

		fmt.Println(string(data))
		return nil
	},
}

var configFeatureCmd = &cobra.Command{
	Use:   "feature [name on|off]",
	Short: "List or toggle feature flags",
	Args:  cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getBaseDir()

		if len(args) == 0 {
			for _, f := range features.ListAll() {
				enabled, source := features.Resolve(dir, f.Name)
				state := "off"
				if enabled {
					state = "on"
				}
				fmt.Printf("%-18s %-4s %-8s %s\n", f.Name, state, output.Subtle("("+source+")"), f.Description)
			}
			return nil
		}
		if len(args) == 1 {
			return fmt.Errorf("usage: rolo config feature <name> on|off")
		}

		name := args[0]
		if !features.IsKnownFeature(name) {
			output.Error("unknown feature: %s", name)
			return fmt.Errorf("unknown feature: %s", name)
		}
		enabled, err := parseBool(args[1])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if err := config.SetFeatureFlag(dir, name, enabled); err != nil {
			output.Error("save config: %v", err)
			return err
		}
		state := "off"
		if enabled {
			state = "on"
		}
		output.Success("feature %s: %s", name, state)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd, configFeatureCmd)
	rootCmd.AddCommand(configCmd)
}
