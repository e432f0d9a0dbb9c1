package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vkbacademy/cli/internal/endpoints"
	apperrors "vkbacademy/cli/internal/errors"
)

const userAgent = "vkbacademy-cli/1.0"

// HTTP implements API over REST endpoints.
type HTTP struct {
	// baseURL is the base URL for all HTTP requests (e.g., "https://api.vkbacademy.com")
	baseURL string
	// endpoints contains the URL paths for the auth endpoints
	endpoints endpoints.HTTP
	// client is the underlying HTTP client with configured timeout
	client *http.Client
}

// newHTTP creates a new HTTP client with the given base URL and endpoints.
func newHTTP(baseURL string, paths endpoints.HTTP, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTP{
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: paths,
		client:    client,
	}
}

func (h *HTTP) setStandardHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
}

// postJSON sends body to path and decodes a JSON object response into a map.
// Non-2xx responses become *apperrors.HTTPError; transport failures become
// NetworkError.
func (h *HTTP) postJSON(ctx context.Context, path string, body any) (map[string]any, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	h.setStandardHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.NetworkError, "POST "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.NetworkError, "read "+path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := apperrors.RequestFailed
		if resp.StatusCode == http.StatusUnauthorized {
			kind = apperrors.Unauthorized
		}
		return nil, &apperrors.HTTPError{Kind: kind, Method: http.MethodPost, Path: path, Status: resp.StatusCode, Body: raw}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return out, nil
}

// Version calls GET /health/version and returns the version string when available.
// No authentication required. This can be used to check connectivity to the backend service.
func (h *HTTP) Version(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+h.endpoints.Version, nil)
	if err != nil {
		return "", err
	}
	h.setStandardHeaders(req)
	resp, err := h.client.Do(req)
	if err != nil {
		return "", apperrors.Wrap(apperrors.NetworkError, "GET "+h.endpoints.Version, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "unknown", nil
	}
	var out struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Version == "" {
		return "unknown", nil
	}
	return out.Version, nil
}
