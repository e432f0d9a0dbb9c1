// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

package keychain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"vkbacademy/cli/internal/xdg"

	"github.com/99designs/keyring"
)

// EnvKeyringPassword unlocks the encrypted file backend.
const EnvKeyringPassword = "VKBACADEMY_KEYRING_PASSWORD"

// Backend selects where tokens are kept.
type Backend string

const (
	// BackendAuto tries the OS store and falls back to the file backend
	// when a keyring password is configured.
	BackendAuto Backend = ""
	BackendOS   Backend = "os"
	BackendFile Backend = "file"
)

// OpenOptions configures Open.
type OpenOptions struct {
	Backend Backend
	// FileDir overrides the file backend location; defaults to the XDG state dir.
	FileDir string
	// Password for the file backend; defaults to $VKBACADEMY_KEYRING_PASSWORD.
	Password string
}

// Open opens the keyring selected by opts.
func Open(opts OpenOptions) (keyring.Keyring, error) {
	if opts.Password == "" {
		opts.Password = os.Getenv(EnvKeyringPassword)
	}

	switch opts.Backend {
	case BackendOS:
		return openOS()
	case BackendFile:
		return openFile(opts)
	case BackendAuto:
		ring, err := openOS()
		if err == nil {
			return ring, nil
		}
		if opts.Password == "" {
			return nil, fmt.Errorf("%w (set %s to use the encrypted file store)", err, EnvKeyringPassword)
		}
		return openFile(opts)
	default:
		return nil, fmt.Errorf("unknown keyring backend %q", opts.Backend)
	}
}

// osBackends lists the native stores per platform, most preferred first.
func osBackends() []keyring.BackendType {
	switch runtime.GOOS {
	case "darwin":
		// pass is the fallback on machines where Keychain access is denied
		return []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		return []keyring.BackendType{keyring.WinCredBackend}
	default:
		return []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	}
}

func openOS() (keyring.Keyring, error) {
	cfg := keyring.Config{
		ServiceName:             ServiceName,
		AllowedBackends:         osBackends(),
		PassPrefix:              ServiceName,
		WinCredPrefix:           ServiceName,
		LibSecretCollectionName: ServiceName,
		KWalletAppID:            ServiceName,
		KWalletFolder:           ServiceName,
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("os credential store unavailable: %w", err)
	}
	return ring, nil
}

func openFile(opts OpenOptions) (keyring.Keyring, error) {
	if opts.Password == "" {
		return nil, errors.New("file keyring requires " + EnvKeyringPassword)
	}
	dir := opts.FileDir
	if dir == "" {
		state, err := xdg.StateDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(state, "keyring")
	}
	return keyring.Open(keyring.Config{
		ServiceName:      ServiceName,
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          dir,
		FilePasswordFunc: keyring.FixedStringPrompt(opts.Password),
	})
}

// unavailableRing fails every operation with the error that prevented opening
// the real store.
type unavailableRing struct{ err error }

// Unavailable returns a keyring that rejects every call with err. Wrapping it
// in a Store gives the usual degraded behavior: reads come back empty and
// writes report StorageUnavailable.
func Unavailable(err error) keyring.Keyring { return unavailableRing{err: err} }

func (u unavailableRing) Get(string) (keyring.Item, error)              { return keyring.Item{}, u.err }
func (u unavailableRing) GetMetadata(string) (keyring.Metadata, error) { return keyring.Metadata{}, u.err }
func (u unavailableRing) Set(keyring.Item) error                        { return u.err }
func (u unavailableRing) Remove(string) error                           { return u.err }
func (u unavailableRing) Keys() ([]string, error)                       { return nil, u.err }
