// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the VKB Academy CLI.
// It implements subcommands for signing in and out, inspecting the session,
// calling the academy API with transparent token refresh, and managing
// configuration, using the Cobra CLI framework.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"vkbacademy/cli/internal/auth"
	"vkbacademy/cli/internal/backend"
	"vkbacademy/cli/internal/config"
	apperrors "vkbacademy/cli/internal/errors"
	"vkbacademy/cli/internal/httpclient"
	"vkbacademy/cli/internal/httperrors"
	"vkbacademy/cli/internal/keychain"
	"vkbacademy/cli/internal/logging"
	"vkbacademy/cli/internal/session"
	"vkbacademy/cli/internal/terminal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagVerbose bool
	flagAPIURL  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "vkbacademy",
	Short:         "VKB Academy command-line client",
	Long:          `vkbacademy signs you in to VKB Academy and talks to the academy API on your behalf, keeping your session fresh.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI application and exits with a non-zero status on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var shown *presentedError
		if !errors.As(err, &shown) {
			fmt.Fprintln(os.Stderr, "❌ "+logging.PresentError("", err))
			if hint := logging.Hint(err); hint != "" {
				fmt.Fprintln(os.Stderr, "   "+hint)
			}
		}
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "Override the academy API base URL")
}

func exitCode(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.Unauthorized, apperrors.RefreshFailed:
		return 2
	}
	return 1
}

// presentedError marks an error whose explanation was already printed.
type presentedError struct{ err error }

func (p *presentedError) Error() string { return p.err.Error() }
func (p *presentedError) Unwrap() error { return p.err }

// present prints a friendly explanation of err and returns it marked as shown.
func present(err error, action string) error {
	if err == nil {
		return nil
	}
	return &presentedError{err: httperrors.Present(os.Stderr, err, action)}
}

// loadConfig reads configuration and applies persistent flags on top.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if flagAPIURL != "" {
		cfg.APIURL = flagAPIURL
	}
	if flagVerbose {
		cfg.Verbose = true
	}
	return cfg, cfg.Validate()
}

// app holds everything a session-aware command needs. It is built per
// invocation; nothing here is a package-level singleton.
type app struct {
	cfg    config.Config
	log    zerolog.Logger
	sess   *session.Session
	be     *backend.HTTP
	client *httpclient.Client
	auth   *auth.Service
}

// newApp wires config, logging, the token store, the session and the
// authenticated client, and hydrates the session from storage.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Verbose: cfg.Verbose,
		JSON:    !terminal.IsInteractive(os.Stderr),
	})

	ring, err := keychain.Open(keychain.OpenOptions{Backend: keychain.Backend(cfg.KeyringBackend)})
	if err != nil {
		log.Warn().Err(err).Msg("secure storage unavailable, continuing signed out")
		ring = keychain.Unavailable(err)
	}
	sess := session.New(keychain.New(ring, log), log)
	sess.Hydrate()

	hc := &http.Client{Timeout: cfg.RequestTimeout.Std()}
	be := backend.New(cfg.APIURL, cfg.Endpoints, hc)
	client := httpclient.New(sess, be, httpclient.Options{
		BaseURL:        cfg.APIURL,
		HTTPClient:     hc,
		RefreshTimeout: cfg.RefreshTimeout.Std(),
		Logger:         log,
	})

	return &app{
		cfg:    cfg,
		log:    log,
		sess:   sess,
		be:     be,
		client: client,
		auth:   auth.NewService(be, sess, client, cfg.Endpoints.Me, log),
	}, nil
}
