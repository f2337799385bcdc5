package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/user/genie/internal/config"
	"github.com/user/genie/internal/models"
)

var configReveal bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
	configGetCmd.Flags().BoolVar(&configReveal, "reveal", false, "print API keys and tokens unmasked")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Read and change ~/.genie/config.json (or the file given with --config).

Keys are dot-separated, e.g. store.driver or openai.base_url. Environment
variables (GEMINI_API_KEY, OPENAI_API_KEY, OPENAI_BASE_URL,
TELEGRAM_BOT_TOKEN, GENIE_DATA_DIR) override the file when set.`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the effective configuration, secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printConfig(cmd.OutOrStdout(), loadConfig())
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a value from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatValue(args[0], val, configReveal))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the config file",
	Example: `  genie config set store.driver sqlite
  genie config set openai.base_url http://localhost:11434/v1
  genie config set models '[{"id":"llama3.2","provider":"openai"}]'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Create the file with defaults on first use.
		loadConfig()
		if err := config.SetValue(cfgPath, args[0], args[1]); err != nil {
			return err
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config saved but invalid: %w", err)
		}

		out := cmd.OutOrStdout()
		if args[0] == "models" {
			fmt.Fprintf(out, "Set %d custom model(s).\n", len(cfg.Models))
			return nil
		}
		fmt.Fprintf(out, "Set %s = %s\n", args[0], formatValue(args[0], args[1], false))
		return nil
	},
}

// printConfig writes one key = value line per setting, then one line per
// custom model entry.
func printConfig(w io.Writer, cfg *config.Config) error {
	values, err := config.ListValues(cfg, true)
	if err != nil {
		return fmt.Errorf("list config: %w", err)
	}
	delete(values, "models")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s = %s\n", k, formatValue(k, values[k], true))
	}

	for _, d := range cfg.Models {
		fmt.Fprintf(w, "models.%s = %s\n", d.ID, describeModel(d))
	}
	return nil
}

func describeModel(d models.Descriptor) string {
	provider := d.Provider
	if provider == "" {
		provider = models.ProviderGemini
	}
	name := d.Name
	if name == "" {
		name = d.ID
	}
	s := fmt.Sprintf("%s (%s", name, provider)
	if d.SupportsImage {
		s += ", images"
	}
	return s + ")"
}

// formatValue renders a config value for the terminal. Secrets are masked
// unless reveal is set. Numbers print without an exponent; lists and
// objects print as JSON.
func formatValue(key string, v any, reveal bool) string {
	switch val := v.(type) {
	case string:
		if !reveal && val != "" && config.IsSecretKey(key) {
			return config.MaskValue(val)
		}
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any, map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
