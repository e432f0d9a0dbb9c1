// Package xdg provides helpers to resolve XDG Base Directory paths for vkbacademy.
// Config holds non-secret settings; state holds the encrypted keyring file
// used when no OS credential store is reachable.
package xdg

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under every XDG base directory.
const AppName = "vkbacademy"

// ConfigDir returns the XDG config directory for vkbacademy.
// The directory is created with private permissions (0700) if missing.
// It falls back to ~/.config/vkbacademy when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	return resolve("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for vkbacademy.
// It falls back to ~/.local/state/vkbacademy when XDG_STATE_HOME is unset.
func StateDir() (string, error) {
	return resolve("XDG_STATE_HOME", ".local", "state")
}

func resolve(env string, fallback ...string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(append([]string{home}, fallback...)...)
	}
	dir := filepath.Join(base, AppName)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}
