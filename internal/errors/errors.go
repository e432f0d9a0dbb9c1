// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure the session core surfaces carries a machine-readable Kind so
// callers can tell a dead session apart from a flaky network without string
// matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// StorageUnavailable indicates the secure token storage could not be read or written.
	StorageUnavailable Kind = "storage_unavailable"
	// Unauthorized indicates a 401 answered before any refresh was attempted.
	Unauthorized Kind = "unauthorized"
	// RefreshFailed indicates the refresh token was missing, expired or rejected.
	RefreshFailed Kind = "refresh_failed"
	// NetworkError indicates a transport-level failure with no response.
	NetworkError Kind = "network_error"
	// RequestFailed indicates a non-2xx response other than an auth failure.
	RequestFailed Kind = "request_failed"
	// InvalidInput indicates the caller supplied unusable arguments.
	InvalidInput Kind = "invalid_input"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
	// AfterRefresh is set when the failure hit the replay that followed a
	// successful token refresh.
	AfterRefresh bool
}

func (e *E) Error() string {
	msg := e.Message
	if e.AfterRefresh {
		msg += " after token refresh"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// HTTPError is returned for every non-2xx response that reaches the caller.
type HTTPError struct {
	Kind   Kind
	Method string
	Path   string
	Status int
	Body   []byte
	// AfterRefresh is set when the request already went through a
	// successful refresh and was replayed once.
	AfterRefresh bool
}

func (e *HTTPError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s returned %d", e.Kind, e.Method, e.Path, e.Status)
	if e.AfterRefresh {
		b.WriteString(" after token refresh")
	}
	if body := strings.TrimSpace(string(e.Body)); body != "" {
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		b.WriteString(": ")
		b.WriteString(body)
	}
	return b.String()
}

// KindOf reports the Kind carried by err, or "" when err is untyped.
func KindOf(err error) Kind {
	var he *HTTPError
	if stderrors.As(err, &he) {
		return he.Kind
	}
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// AfterRefresh reports whether err was raised by a request replayed after a
// successful token refresh.
func AfterRefresh(err error) bool {
	var he *HTTPError
	if stderrors.As(err, &he) {
		return he.AfterRefresh
	}
	var e *E
	if stderrors.As(err, &e) {
		return e.AfterRefresh
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var he *HTTPError
	if stderrors.As(err, &he) {
		return he.Status
	}
	return 0
}
