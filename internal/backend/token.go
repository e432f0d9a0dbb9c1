// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"errors"
	"net/http"

	apperrors "vkbacademy/cli/internal/errors"
	"vkbacademy/cli/internal/keychain"
)

// ErrRefreshRejected is returned when the backend refuses the refresh token
// (expired, revoked or unknown).
var ErrRefreshRejected = errors.New("refresh token expired or invalid")

// Refresh calls POST /auth/refresh with {refreshToken}.
// The backend rotates the pair on every call, so both tokens must be present
// in the response.
func (h *HTTP) Refresh(ctx context.Context, refreshToken string) (keychain.Credentials, error) {
	if refreshToken == "" {
		return keychain.Credentials{}, apperrors.Wrap(apperrors.RefreshFailed, "no refresh token", ErrRefreshRejected)
	}
	raw, err := h.postJSON(ctx, h.endpoints.Refresh, map[string]string{
		"refreshToken": refreshToken,
	})
	if err != nil {
		var he *apperrors.HTTPError
		if errors.As(err, &he) && (he.Status == http.StatusUnauthorized || he.Status == http.StatusForbidden) {
			return keychain.Credentials{}, apperrors.Wrap(apperrors.RefreshFailed, "refresh", ErrRefreshRejected)
		}
		return keychain.Credentials{}, err
	}
	creds, err := extractCredentials(raw)
	if err != nil {
		return keychain.Credentials{}, apperrors.Wrap(apperrors.RefreshFailed, "refresh", err)
	}
	return creds, nil
}

// extractCredentials pulls the pair from a top-level, "data" or "tokens"
// object, accepting camelCase and snake_case names.
func extractCredentials(raw map[string]any) (keychain.Credentials, error) {
	for _, node := range candidates(raw) {
		c := keychain.Credentials{
			AccessToken:  extractAccessToken(node),
			RefreshToken: extractRefreshToken(node),
		}
		if c.Complete() {
			return c, nil
		}
	}
	return keychain.Credentials{}, errNoTokens
}

func candidates(raw map[string]any) []map[string]any {
	out := []map[string]any{raw}
	for _, k := range []string{"data", "tokens"} {
		if m, ok := raw[k].(map[string]any); ok {
			out = append(out, m)
			if t, ok := m["tokens"].(map[string]any); ok {
				out = append(out, t)
			}
		}
	}
	return out
}

// extractAccessToken extracts the access token from the response payload.
// It tries multiple common field names to be resilient to different response formats.
func extractAccessToken(result map[string]any) string {
	return stringField(result, "accessToken", "access_token", "token")
}

// extractRefreshToken extracts the refresh token from the response payload.
func extractRefreshToken(result map[string]any) string {
	return stringField(result, "refreshToken", "refresh_token")
}
