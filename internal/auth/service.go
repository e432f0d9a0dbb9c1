// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package auth provides authentication services for the VKB Academy CLI.
// It ties the Auth API, the Session and the authenticated HTTP client
// together: sign in, sign up, sign out and "who am I".
package auth

import (
	"context"

	"vkbacademy/cli/internal/backend"
	apperrors "vkbacademy/cli/internal/errors"
	"vkbacademy/cli/internal/httpclient"
	"vkbacademy/cli/internal/session"

	"github.com/rs/zerolog"
)

// Service centralizes authentication-related operations against the backend
// and local secure storage/state.
type Service struct {
	be     backend.API
	sess   *session.Session
	client *httpclient.Client
	mePath string
	log    zerolog.Logger
}

// NewService constructs an auth Service. mePath is the authenticated
// profile endpoint, e.g. "/auth/me".
func NewService(be backend.API, sess *session.Session, client *httpclient.Client, mePath string, log zerolog.Logger) *Service {
	return &Service{
		be:     be,
		sess:   sess,
		client: client,
		mePath: mePath,
		log:    log.With().Str("component", "auth").Logger(),
	}
}

// Login signs in with email and password and stores the new session.
func (s *Service) Login(ctx context.Context, email, password string) (*session.User, error) {
	res, err := s.be.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.establish(res)
}

// Register creates an account and signs in with it.
func (s *Service) Register(ctx context.Context, name, email, password string) (*session.User, error) {
	res, err := s.be.Register(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	return s.establish(res)
}

func (s *Service) establish(res backend.AuthResult) (*session.User, error) {
	if err := s.sess.SetSession(res.Credentials, res.User); err != nil {
		return nil, apperrors.Wrap(apperrors.StorageUnavailable, "save session", err)
	}
	s.log.Debug().Bool("has_user", res.User != nil).Msg("session established")
	return res.User, nil
}

// Logout revokes the refresh token on the backend (best-effort) and always
// clears the local session.
func (s *Service) Logout(ctx context.Context) error {
	var remoteErr error
	if rt := s.sess.RefreshToken(); rt != "" {
		remoteErr = s.be.Logout(ctx, rt)
		if remoteErr != nil {
			s.log.Warn().Err(remoteErr).Msg("remote logout failed, clearing local session anyway")
		}
	}
	s.sess.ClearSession()
	return remoteErr
}

// WhoAmI asks the backend for the current user, refreshing credentials if
// needed. When the backend is unreachable it falls back to the cached user
// and reports offline=true.
func (s *Service) WhoAmI(ctx context.Context) (user *session.User, offline bool, err error) {
	if s.sess.AccessToken() == "" {
		if s.sess.NeedsReauth() {
			return nil, false, apperrors.New(apperrors.RefreshFailed, "session expired")
		}
		return nil, false, apperrors.New(apperrors.Unauthorized, "not logged in")
	}

	var me struct {
		session.User
		Data *session.User `json:"data"`
	}
	err = s.client.GetJSON(ctx, s.mePath, &me)
	switch {
	case err == nil:
		u := me.User
		if me.Data != nil && me.Data.ID != "" {
			u = *me.Data
		}
		return &u, false, nil
	case apperrors.Is(err, apperrors.NetworkError):
		if cached := s.sess.User(); cached != nil {
			return cached, true, nil
		}
	}
	return nil, false, err
}

// Session exposes the underlying session for status checks.
func (s *Service) Session() *session.Session { return s.sess }
