package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/chatpilot/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("chatpilot setup")
		fmt.Println("Press Enter to keep the value shown in brackets.")
		fmt.Println()

		cfg.WhatsApp.BridgeURL = prompt(scanner, "WhatsApp bridge URL", cfg.WhatsApp.BridgeURL)

		cfg.Database.Driver = prompt(scanner, "Database driver (sqlite or postgres)", cfg.Database.Driver)
		cfg.Database.DSN = prompt(scanner, "Database DSN", cfg.Database.DSN)

		cfg.LLM.Provider = prompt(scanner, "LLM provider (anthropic or openai)", cfg.LLM.Provider)
		cfg.LLM.BaseURL = prompt(scanner, "LLM base URL", cfg.LLM.BaseURL)
		cfg.LLM.APIKey = prompt(scanner, "LLM API key", cfg.LLM.APIKey)
		cfg.LLM.Model = prompt(scanner, "LLM model name", cfg.LLM.Model)

		chunk := prompt(scanner, "Max characters per chunk", strconv.Itoa(cfg.Delivery.ChunkSize))
		if n, err := strconv.Atoi(chunk); err == nil && n > 0 {
			cfg.Delivery.ChunkSize = n
		}

		// Optional
		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
