package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/chatpilot/internal/config"
)

const (
	configLong = `Inspect and edit chatpilot settings.

Values shown by list are effective: the config file with DATABASE_URL,
ANTHROPIC_API_KEY, OPENAI_API_KEY, TELEGRAM_BOT_TOKEN, WHATSAPP_BRIDGE_URL,
PORT and LOG_LEVEL applied on top. get and set work on the file itself.`

	configSetLong = `Write one setting to the config file. The value is parsed as JSON when
possible, so numbers, booleans and arrays keep their type.

A running server reads its config at start; run "chatpilot restart" to apply.`

	configSetExample = `  chatpilot config set delivery.inter_chunk_delay_ms 1500
  chatpilot config set pipeline.realtime_autostart true
  chatpilot config set http.allowed_origins '["http://localhost:5173"]'`
)

var (
	listSection     string
	listShowSecrets bool
	setForce        bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd, configPathCmd)

	configListCmd.Flags().StringVar(&listSection, "section", "",
		"only show one group: "+strings.Join(config.Sections, ", "))
	configListCmd.Flags().BoolVar(&listShowSecrets, "show-secrets", false, "print API keys, bot token and DSN in full")
	configSetCmd.Flags().BoolVar(&setForce, "force", false, "write keys chatpilot does not read")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit chatpilot settings",
	Long:  configLong,
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List effective settings, optionally for one section",
	Example: "  chatpilot config list --section delivery",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		values, err := config.ListValues(cfg, !listShowSecrets)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}
		if listSection != "" {
			if values, err = config.FilterSection(values, listSection); err != nil {
				return err
			}
		}

		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 1, ' ', 0)
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t= %v\n", k, values[k])
		}
		return w.Flush()
	},
}

var configGetCmd = &cobra.Command{
	Use:     "get <key>",
	Short:   "Print one setting from the config file",
	Example: "  chatpilot config get delivery.chunk_size",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return err
		}
		if config.IsSecretKey(args[0]) {
			val = config.MaskSecrets(map[string]any{args[0]: val})[args[0]]
		}
		fmt.Fprintln(os.Stdout, val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Write one setting to the config file",
	Long:    configSetLong,
	Example: configSetExample,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if !setForce && !config.IsKnownKey(key) {
			return fmt.Errorf("unknown config key: %s (use --force to write it anyway)", key)
		}
		if err := config.SetValue(cfgPath, key, value); err != nil {
			return err
		}
		display := value
		if config.IsSecretKey(key) {
			display = "***"
		}
		fmt.Fprintf(os.Stdout, "Set %s = %s\n", key, display)
		if _, err := findServer(); err == nil {
			fmt.Fprintln(os.Stdout, `Server is running; "chatpilot restart" applies the change.`)
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stdout, cfgPath)
	},
}
