// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"net/http"
	"time"

	"vkbacademy/cli/internal/backend"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	// Version holds the CLI version information.
	// This value is typically set at build time using -ldflags.
	Version = "0.0.0-dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI and backend version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		be := backend.New(cfg.APIURL, cfg.Endpoints, &http.Client{Timeout: cfg.RequestTimeout.Std()})
		backendVersion, err := be.Version(ctx)
		if err != nil || backendVersion == "" {
			backendVersion = "unknown"
		}
		pterm.Printf("vkbacademy %s\nbackend %s\n", Version, backendVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
