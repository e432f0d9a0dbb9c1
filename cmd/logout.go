// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// logoutCmd clears the local session and revokes the refresh token on the
// backend (best-effort).
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove saved tokens",
	Long: `The logout command asks the academy API to revoke the current refresh
token and then removes the access token, refresh token and cached profile
from the OS keychain. Local credentials are removed even when the API
cannot be reached.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.auth.Logout(cmd.Context()); err != nil {
			a.log.Debug().Err(err).Msg("remote logout")
			pterm.Println("⚠️  Could not reach the academy API; the session was only removed locally.")
		}
		pterm.Println("✅ All credentials and tokens have been removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
