// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package backend is the client for the academy's Auth API: login, register,
// refresh and logout. These calls are unauthenticated (they carry credentials
// in the body), so they bypass the bearer-attaching client in httpclient.
package backend

import (
	"context"

	"vkbacademy/cli/internal/keychain"
	"vkbacademy/cli/internal/session"
)

// AuthResult is what login and register return.
type AuthResult struct {
	Credentials keychain.Credentials
	User        *session.User
}

// API defines backend operations the CLI depends on.
// Implementations may call real HTTP endpoints or provide fakes for tests.
type API interface {
	Version(ctx context.Context) (string, error)
	Login(ctx context.Context, email, password string) (AuthResult, error)
	Register(ctx context.Context, name, email, password string) (AuthResult, error)
	// Refresh exchanges a refresh token for a new credential pair. The pair
	// is always replaced as a whole; a response without a refresh token is
	// an error.
	Refresh(ctx context.Context, refreshToken string) (keychain.Credentials, error)
	// Logout revokes the refresh token on the backend.
	Logout(ctx context.Context, refreshToken string) error
}
