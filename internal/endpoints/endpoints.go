// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package endpoints holds the academy API base URL and REST paths.
package endpoints

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is used when neither config nor environment provide one.
const DefaultBaseURL = "https://api.vkbacademy.com"

// HTTP contains REST API endpoint paths.
type HTTP struct {
	Login             string `json:"login"`              // e.g., "/auth/login"
	Register          string `json:"register"`           // e.g., "/auth/register"
	Refresh           string `json:"refresh"`            // e.g., "/auth/refresh"
	Logout            string `json:"logout"`             // e.g., "/auth/logout"
	Me                string `json:"me"`                 // e.g., "/auth/me"
	Version           string `json:"version"`            // e.g., "/health/version"
	ChallengeProgress string `json:"challenge_progress"` // e.g., "/challenges/progress"
	Quizzes           string `json:"quizzes"`            // e.g., "/quizzes"
}

// Defaults returns the paths served by the academy API.
func Defaults() HTTP {
	return HTTP{
		Login:             "/auth/login",
		Register:          "/auth/register",
		Refresh:           "/auth/refresh",
		Logout:            "/auth/logout",
		Me:                "/auth/me",
		Version:           "/health/version",
		ChallengeProgress: "/challenges/progress",
		Quizzes:           "/quizzes",
	}
}

// Merge returns e with every empty path filled from Defaults.
func (e HTTP) Merge() HTTP {
	d := Defaults()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&e.Login, d.Login)
	fill(&e.Register, d.Register)
	fill(&e.Refresh, d.Refresh)
	fill(&e.Logout, d.Logout)
	fill(&e.Me, d.Me)
	fill(&e.Version, d.Version)
	fill(&e.ChallengeProgress, d.ChallengeProgress)
	fill(&e.Quizzes, d.Quizzes)
	return e
}

// NormalizeBaseURL validates raw and strips trailing slashes.
// Only http and https schemes are accepted.
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultBaseURL, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("api url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("api url %q has no host", raw)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}

// QuizAttempts returns the path that accepts answers for quiz id.
func (e HTTP) QuizAttempts(id string) string {
	return strings.TrimRight(e.Quizzes, "/") + "/" + url.PathEscape(id) + "/attempts"
}
