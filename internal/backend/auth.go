package backend

import (
	"context"
	"errors"
	"strings"

	apperrors "vkbacademy/cli/internal/errors"
	"vkbacademy/cli/internal/session"
)

// Login posts {email, password} to /auth/login.
// It returns the issued credential pair and the user summary.
func (h *HTTP) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return AuthResult{}, apperrors.New(apperrors.InvalidInput, "email and password are required")
	}
	raw, err := h.postJSON(ctx, h.endpoints.Login, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return AuthResult{}, err
	}
	return parseAuthResult(raw)
}

// Register posts {name, email, password} to /auth/register.
// A successful registration signs the user in, same as Login.
func (h *HTTP) Register(ctx context.Context, name, email, password string) (AuthResult, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return AuthResult{}, apperrors.New(apperrors.InvalidInput, "name, email and password are required")
	}
	raw, err := h.postJSON(ctx, h.endpoints.Register, map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return AuthResult{}, err
	}
	return parseAuthResult(raw)
}

// Logout posts {refreshToken} to /auth/logout so the backend revokes it.
func (h *HTTP) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	_, err := h.postJSON(ctx, h.endpoints.Logout, map[string]string{
		"refreshToken": refreshToken,
	})
	return err
}

func parseAuthResult(raw map[string]any) (AuthResult, error) {
	creds, err := extractCredentials(raw)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Credentials: creds, User: extractUser(raw)}, nil
}

// extractUser reads the user object, accepting both top-level and
// data-wrapped payloads.
func extractUser(raw map[string]any) *session.User {
	node, ok := raw["user"].(map[string]any)
	if !ok {
		if data, ok := raw["data"].(map[string]any); ok {
			node, _ = data["user"].(map[string]any)
		}
	}
	if node == nil {
		return nil
	}
	u := &session.User{
		ID:    stringField(node, "id", "_id", "user_id", "userId"),
		Name:  stringField(node, "name", "displayName", "display_name"),
		Email: stringField(node, "email"),
		Role:  stringField(node, "role"),
	}
	if u.ID == "" && u.Email == "" {
		return nil
	}
	return u
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var errNoTokens = errors.New("response carries no access/refresh token pair")
