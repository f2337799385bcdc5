package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/genie/internal/config"
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

		fmt.Println(titleStyle.Render("Genie Setup"))
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Gemini.APIKey = prompt(scanner, "Gemini API key", cfg.Gemini.APIKey)
		cfg.OpenAI.APIKey = prompt(scanner, "OpenAI API key (optional)", cfg.OpenAI.APIKey)
		cfg.OpenAI.BaseURL = prompt(scanner, "OpenAI-compatible base URL", cfg.OpenAI.BaseURL)

		for {
			driver := prompt(scanner, "Storage driver (file or sqlite)", cfg.Store.Driver)
			if driver == "file" || driver == "sqlite" {
				cfg.Store.Driver = driver
				break
			}
			fmt.Println(errorStyle.Render("Please answer file or sqlite."))
		}

		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)
		if cfg.Telegram.Token != "" {
			current := ""
			if cfg.Telegram.AllowedChatID != 0 {
				current = strconv.FormatInt(cfg.Telegram.AllowedChatID, 10)
			}
			chatID := prompt(scanner, "Allowed Telegram chat id (0 for any)", current)
			if n, err := strconv.ParseInt(chatID, 10, 64); err == nil {
				cfg.Telegram.AllowedChatID = n
			}
		}

		cfg.HTTP.Listen = prompt(scanner, "HTTP API listen address", cfg.HTTP.Listen)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// Secrets are shown masked. If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	shown := defaultVal
	lower := strings.ToLower(label)
	if defaultVal != "" && (strings.Contains(lower, "key") || strings.Contains(lower, "token")) {
		shown = config.MaskValue(defaultVal)
	}
	if shown != "" {
		fmt.Printf("%s [%s]: ", label, shown)
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
