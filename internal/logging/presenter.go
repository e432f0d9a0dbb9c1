// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"

	apperrors "vkbacademy/cli/internal/errors"
)

// PresentError formats an error for user display with masking.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Mask(err.Error())
	}
	return fmt.Sprintf("%s: %s", context, Mask(err.Error()))
}

// Hint returns a one-line suggestion for the error's kind, or "".
func Hint(err error) string {
	switch apperrors.KindOf(err) {
	case apperrors.RefreshFailed:
		return "Your session has expired. Run 'vkbacademy login' to sign in again."
	case apperrors.Unauthorized:
		return "You are not signed in. Run 'vkbacademy login'."
	case apperrors.StorageUnavailable:
		return "Secure storage is unavailable. Try VKBACADEMY_KEYRING_BACKEND=file."
	case apperrors.NetworkError:
		return "Check your connection and the configured api_url."
	}
	return ""
}
