// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors turns API and network failures into user-facing messages.
package httperrors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	apperrors "vkbacademy/cli/internal/errors"

	"github.com/pterm/pterm"
)

// Category classifies a failure for display.
type Category int

const (
	CategoryGeneric Category = iota
	CategoryTimeout
	CategoryDNS
	CategoryRefused
	CategoryTLS
	CategoryServer
	CategorySessionExpired
	CategoryNotSignedIn
	CategoryStorage
)

// Classify maps err to a display category.
func Classify(err error) Category {
	switch apperrors.KindOf(err) {
	case apperrors.RefreshFailed:
		return CategorySessionExpired
	case apperrors.Unauthorized:
		return CategoryNotSignedIn
	case apperrors.StorageUnavailable:
		return CategoryStorage
	case apperrors.RequestFailed:
		if apperrors.StatusOf(err) >= 500 {
			return CategoryServer
		}
		return CategoryGeneric
	}
	switch {
	case isTimeoutError(err):
		return CategoryTimeout
	case isDNSError(err):
		return CategoryDNS
	case isConnectionRefusedError(err):
		return CategoryRefused
	case isTLSError(err):
		return CategoryTLS
	}
	return CategoryGeneric
}

// Present writes a friendly explanation of err to w and returns err wrapped
// with the action that failed.
func Present(w io.Writer, err error, action string) error {
	if err == nil {
		return nil
	}
	p := writer{w}
	switch Classify(err) {
	case CategorySessionExpired:
		p.Println("🔒 Your session has expired while " + action + ".")
		p.Println("   Run 'vkbacademy login' to sign in again.")
	case CategoryNotSignedIn:
		p.Println("🔒 You're not signed in.")
		p.Println("   Run 'vkbacademy login' to get started.")
	case CategoryStorage:
		p.Println("🗝️  Secure storage is unavailable while " + action + ".")
		p.Println("   Unlock your keychain, or set VKBACADEMY_KEYRING_BACKEND=file")
		p.Println("   together with VKBACADEMY_KEYRING_PASSWORD.")
	case CategoryTimeout:
		p.Println("⏱️  Connection timeout while " + action + ".")
		p.Println("   The academy API took too long to respond. Please try again in a few moments.")
	case CategoryDNS:
		p.Println("🌐 Cannot resolve the academy API address while " + action + ".")
		p.Println("   Check your internet connection and the configured api_url.")
	case CategoryRefused:
		p.Println("🚫 Connection refused while " + action + ".")
		p.Println("   The API is not accepting connections; check api_url or try again later.")
	case CategoryTLS:
		p.Println("🔒 Secure connection failed while " + action + ".")
		p.Println("   Check your system clock and any HTTPS proxy settings.")
	case CategoryServer:
		p.Println("⚠️  The academy API returned a server error while " + action + ".")
		p.Println("   This is not a problem with your setup. Please try again in a few minutes.")
	default:
		p.Println("❌ Request failed while " + action + ".")
	}
	return fmt.Errorf("%s: %w", action, err)
}

type writer struct{ w io.Writer }

func (p writer) Println(s string) { pterm.Fprintln(p.w, s) }

// isTimeoutError checks if the error is a timeout error.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}

// isDNSError checks if the error is a DNS resolution error.
func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// isConnectionRefusedError checks if the error is a connection refused error.
func isConnectionRefusedError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

// isTLSError checks if the error is an SSL/TLS error.
func isTLSError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "x509") ||
		strings.Contains(errStr, "certificate")
}

// HostOf extracts the hostname from a URL for error messages.
func HostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
