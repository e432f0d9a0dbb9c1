package cmd

import (
	"encoding/json"

	"vkbacademy/cli/internal/config"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change CLI settings",
	Long: `Settings live in config.json under the XDG config directory. Environment
variables (VKBACADEMY_API_URL, VKBACADEMY_LOG_LEVEL, VKBACADEMY_REFRESH_TIMEOUT,
VKBACADEMY_KEYRING_BACKEND) and a .env file in the working directory override
the file; flags override everything. Secrets are never stored here.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		pterm.Println(string(b))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value (api_url, log_level, keyring_backend, refresh_timeout, request_timeout)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Start from the file alone so environment overrides are not persisted.
		cfg, err := config.LoadFile()
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		pterm.Printf("✅ %s updated\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
