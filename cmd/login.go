// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	apperrors "vkbacademy/cli/internal/errors"
	"vkbacademy/cli/internal/terminal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	loginEmail         string
	loginPasswordStdin bool
	loginForce         bool
)

// loginCmd signs in with email and password and stores the token pair in
// the OS keychain.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"signin"},
	Short:   "Sign in to VKB Academy",
	Long: `The login command signs in with your academy email and password. The
password is read without echo from the terminal, or from stdin with
--password-stdin. The issued access and refresh tokens are stored in the OS
keychain; nothing secret is written to the config file.

If you are already signed in, the command does nothing unless --force is set.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if a.sess.AccessToken() != "" && !loginForce {
			pterm.Printf("Already logged in as %s\n", displayName(a.sess.User()))
			return nil
		}

		p := terminal.NewPrompter()
		email, password, err := readCredentials(p, loginEmail, loginPasswordStdin)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		stop := startInlineSpinner(os.Stderr, "Signing in", spinnerFrames, 120*time.Millisecond)
		user, err := a.auth.Login(ctx, email, password)
		stop()
		if err != nil {
			if apperrors.Is(err, apperrors.Unauthorized) {
				return apperrors.New(apperrors.InvalidInput, "wrong email or password")
			}
			return present(err, "signing in")
		}
		pterm.Println(loginGreeting(user))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email (prompted when empty)")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "Read the password from stdin")
	loginCmd.Flags().BoolVar(&loginForce, "force", false, "Sign in again even if a session exists")
	rootCmd.AddCommand(loginCmd)
}

// readCredentials asks for whatever the flags did not supply. The email
// prompt is erased once answered so the screen stays tidy.
func readCredentials(p *terminal.Prompter, email string, passwordStdin bool) (string, string, error) {
	if passwordStdin {
		if email == "" {
			return "", "", apperrors.New(apperrors.InvalidInput, "--password-stdin requires --email")
		}
		password, err := p.Line("")
		if err != nil {
			return "", "", fmt.Errorf("read password: %w", err)
		}
		return email, password, requireFilled(email, password)
	}

	if email == "" {
		const prompt = "Email: "
		v, err := p.Line(prompt)
		if err != nil {
			return "", "", fmt.Errorf("read email: %w", err)
		}
		email = v
		if terminal.IsInteractive(os.Stderr) {
			terminal.ClearPreviousLines(os.Stderr, len(prompt)+len(email), terminal.Width(os.Stderr))
		}
	}
	password, err := p.Secret("Password: ")
	if err != nil {
		if err == terminal.ErrNotInteractive {
			return "", "", apperrors.Wrap(apperrors.InvalidInput, "no terminal for the password prompt; use --password-stdin", err)
		}
		return "", "", fmt.Errorf("read password: %w", err)
	}
	return email, password, requireFilled(email, password)
}

func requireFilled(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return apperrors.New(apperrors.InvalidInput, "email and password are required")
	}
	return nil
}
