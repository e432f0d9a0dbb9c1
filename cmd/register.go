// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"os"
	"time"

	apperrors "vkbacademy/cli/internal/errors"
	"vkbacademy/cli/internal/terminal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	registerName          string
	registerEmail         string
	registerPasswordStdin bool
)

var registerCmd = &cobra.Command{
	Use:     "register",
	Aliases: []string{"signup"},
	Short:   "Create a VKB Academy account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		p := terminal.NewPrompter()
		name := registerName
		if name == "" && registerPasswordStdin {
			return apperrors.New(apperrors.InvalidInput, "--password-stdin requires --name")
		}
		if name == "" {
			if name, err = p.Line("Name: "); err != nil {
				return err
			}
		}
		email, password, err := readCredentials(p, registerEmail, registerPasswordStdin)
		if err != nil {
			return err
		}
		if !registerPasswordStdin {
			confirm, err := p.Secret("Repeat password: ")
			if err != nil {
				return err
			}
			if confirm != password {
				return apperrors.New(apperrors.InvalidInput, "passwords do not match")
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		stop := startInlineSpinner(os.Stderr, "Creating your account", spinnerFrames, 120*time.Millisecond)
		user, err := a.auth.Register(ctx, name, email, password)
		stop()
		if err != nil {
			return present(err, "creating your account")
		}
		pterm.Println(loginGreeting(user))
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerName, "name", "", "Display name (prompted when empty)")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "Account email (prompted when empty)")
	registerCmd.Flags().BoolVar(&registerPasswordStdin, "password-stdin", false, "Read the password from stdin")
	rootCmd.AddCommand(registerCmd)
}
