// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain is the Token Store: it owns the persisted credential pair
// and the cached user summary, kept in the OS keychain/credential store.
//
// Reads never fail from the caller's point of view: an unreachable or locked
// store degrades to "absent" and is logged. Writes replace the access and
// refresh token together or not at all.
package keychain

import (
	stderrors "errors"
	"fmt"
	"sync"

	apperrors "vkbacademy/cli/internal/errors"
	"vkbacademy/cli/internal/logging"

	"github.com/99designs/keyring"
	"github.com/rs/zerolog"
)

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "vkbacademy"

// Keys used for storing secrets in the OS keychain.
const (
	KeyAccessToken  = "auth_access_token"
	KeyRefreshToken = "auth_refresh_token"
	KeyUser         = "auth_user"
)

// ErrEmptyToken is returned by Write when either token is empty.
var ErrEmptyToken = stderrors.New("keychain: access and refresh token must both be set")

// Credentials is the access/refresh token pair issued together by the API.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Complete reports whether both tokens are present.
func (c Credentials) Complete() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// Store provides thread-safe operations on the credential pair.
type Store struct {
	mu   sync.RWMutex
	ring keyring.Keyring
	log  zerolog.Logger
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring, log zerolog.Logger) *Store {
	return &Store{ring: ring, log: log.With().Str("component", "keychain").Logger()}
}

// Read returns whatever credentials are persisted. Missing keys and storage
// failures both yield empty values; failures are logged, never returned.
func (s *Store) Read() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Credentials{
		AccessToken:  s.get(KeyAccessToken),
		RefreshToken: s.get(KeyRefreshToken),
	}
}

func (s *Store) get(key string) string {
	it, err := s.ring.Get(key)
	if err != nil {
		if !stderrors.Is(err, keyring.ErrKeyNotFound) {
			s.log.Warn().Err(err).Str("key", key).Str("kind", string(apperrors.StorageUnavailable)).Msg("read failed, treating as absent")
		}
		return ""
	}
	return string(it.Data)
}

// Write stores both tokens. If the refresh token cannot be written the
// previous access token is put back so the stored pair stays consistent.
func (s *Store) Write(c Credentials) error {
	if !c.Complete() {
		return ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, prevErr := s.ring.Get(KeyAccessToken)
	hadPrev := prevErr == nil

	if err := s.ring.Set(keyring.Item{Key: KeyAccessToken, Label: "VKB Academy access token", Data: []byte(c.AccessToken)}); err != nil {
		return apperrors.Wrap(apperrors.StorageUnavailable, "write access token", err)
	}
	if err := s.ring.Set(keyring.Item{Key: KeyRefreshToken, Label: "VKB Academy refresh token", Data: []byte(c.RefreshToken)}); err != nil {
		var rbErr error
		if hadPrev {
			rbErr = s.ring.Set(prev)
		} else {
			// The previous access token is unknown (absent or unreadable), so
			// the old refresh token cannot be kept without its partner.
			rbErr = s.remove(KeyAccessToken, KeyRefreshToken)
		}
		if rbErr != nil {
			s.log.Error().Err(rbErr).Msg("rollback of access token failed")
		}
		return apperrors.Wrap(apperrors.StorageUnavailable, "write refresh token", err)
	}

	s.log.Debug().Str("access", logging.TokenHint(c.AccessToken)).Msg("credentials stored")
	return nil
}

// Clear removes both tokens. Keys that were never set are not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.remove(KeyAccessToken, KeyRefreshToken)
}

// ClearAll removes the tokens and the cached user.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.remove(KeyAccessToken, KeyRefreshToken, KeyUser)
}

func (s *Store) remove(keys ...string) error {
	var errs []error
	for _, k := range keys {
		if err := s.ring.Remove(k); err != nil && !stderrors.Is(err, keyring.ErrKeyNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}
	if len(errs) > 0 {
		return apperrors.Wrap(apperrors.StorageUnavailable, "clear credentials", stderrors.Join(errs...))
	}
	return nil
}

// SaveUser stores the serialized user summary.
func (s *Store) SaveUser(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ring.Set(keyring.Item{Key: KeyUser, Label: "VKB Academy user", Data: data}); err != nil {
		return apperrors.Wrap(apperrors.StorageUnavailable, "write user", err)
	}
	return nil
}

// ClearUser removes the cached user summary. A missing key is not an error.
func (s *Store) ClearUser() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.remove(KeyUser)
}

// LoadUser returns the serialized user summary, or nil when absent or unreadable.
func (s *Store) LoadUser() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.get(KeyUser)
	if v == "" {
		return nil
	}
	return []byte(v)
}
