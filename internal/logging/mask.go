// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"regexp"
	"strconv"
)

var (
	rePassword = regexp.MustCompile(`(?i)("?password"?\s*[=:]\s*"?)([^\s;",}]+)`)
	reToken    = regexp.MustCompile(`(?i)(token=|bearer\s+)([A-Za-z0-9._~+/=-]+)`)
	reJSONTok  = regexp.MustCompile(`(?i)("(?:access_?token|refresh_?token|token)"\s*:\s*")([^"]+)(")`)
	reURLCreds = regexp.MustCompile(`(?i)(://)([^:/@\s]+):([^@\s]+)(@)`)
)

// Mask replaces sensitive values in the input string with "***".
// Covers bearer headers, token=... pairs, JSON token fields and passwords.
func Mask(s string) string {
	out := s
	out = rePassword.ReplaceAllString(out, "${1}***")
	out = reJSONTok.ReplaceAllString(out, "${1}***${3}")
	out = reToken.ReplaceAllString(out, "${1}***")
	out = reURLCreds.ReplaceAllString(out, "${1}*:*${4}")
	return out
}

// TokenHint returns a short, non-reversible hint of a token suitable for
// debug logs: the first six characters followed by the total length.
func TokenHint(token string) string {
	if token == "" {
		return "<none>"
	}
	if len(token) <= 6 {
		return "***"
	}
	return token[:6] + "…(" + strconv.Itoa(len(token)) + ")"
}
