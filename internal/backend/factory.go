// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"net/http"

	"vkbacademy/cli/internal/endpoints"
)

// New creates a backend API implementation for baseURL.
// A nil client gets a 10-second timeout client.
func New(baseURL string, paths endpoints.HTTP, client *http.Client) *HTTP {
	return newHTTP(baseURL, paths.Merge(), client)
}
