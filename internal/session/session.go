// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package session holds the in-memory authentication state of the running
// CLI: the current credential pair, the signed-in user and the lifecycle
// status. It mirrors the Token Store and is the only writer other components
// observe.
//
// A Session is created once at startup and passed to whatever needs it.
// Lifecycle:
//
//	Uninitialized -> Hydrating -> {Authenticated, Unauthenticated}
//
// SetSession moves to Authenticated, ClearSession to Unauthenticated. Nothing
// returns to Hydrating.
package session

import (
	"encoding/json"
	"sync"

	"vkbacademy/cli/internal/keychain"
	"vkbacademy/cli/internal/logging"

	"github.com/rs/zerolog"
)

// Status is the lifecycle state of a Session.
type Status int

const (
	Uninitialized Status = iota
	Hydrating
	Authenticated
	Unauthenticated
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Hydrating:
		return "hydrating"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// User is the authenticated identity summary returned by the API.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TokenStore is the persistence the Session mirrors. *keychain.Store implements it.
type TokenStore interface {
	Read() keychain.Credentials
	Write(keychain.Credentials) error
	Clear() error
	ClearAll() error
	SaveUser([]byte) error
	ClearUser() error
	LoadUser() []byte
}

// State is a point-in-time copy of a Session.
type State struct {
	Status      Status
	Credentials keychain.Credentials
	User        *User
	IsLoading   bool
}

// Session is safe for concurrent use. Mutations hold the lock across the
// store I/O so a hydrate can never overwrite a newer SetSession.
type Session struct {
	store TokenStore
	log   zerolog.Logger

	hydrateOnce sync.Once

	mu      sync.RWMutex
	status  Status
	creds   keychain.Credentials
	user    *User
	loading bool

	subMu   sync.Mutex
	subs    map[int]chan Status
	nextSub int
}

// New returns an empty, uninitialized Session backed by store.
func New(store TokenStore, log zerolog.Logger) *Session {
	return &Session{
		store:   store,
		log:     log.With().Str("component", "session").Logger(),
		loading: true,
		subs:    make(map[int]chan Status),
	}
}

// Hydrate reads persisted credentials once. Later and concurrent calls wait
// for the first to finish and then return without touching state.
func (s *Session) Hydrate() {
	s.hydrateOnce.Do(func() {
		s.mu.Lock()
		if s.status != Uninitialized {
			// SetSession or ClearSession already ran.
			s.loading = false
			s.mu.Unlock()
			return
		}
		s.status = Hydrating
		s.notify(Hydrating)

		creds := s.store.Read()
		user := decodeUser(s.store.LoadUser(), s.log)

		s.creds = creds
		s.user = user
		s.loading = false
		if creds.AccessToken != "" {
			s.status = Authenticated
		} else {
			s.status = Unauthenticated
		}
		st := s.status
		s.mu.Unlock()

		s.log.Debug().Str("status", st.String()).Str("access", logging.TokenHint(creds.AccessToken)).Msg("hydrated")
		s.notify(st)
	})
}

// SetSession persists creds and then updates memory. When the write fails
// the previous session is left exactly as it was.
func (s *Session) SetSession(creds keychain.Credentials, user *User) error {
	s.mu.Lock()
	if err := s.store.Write(creds); err != nil {
		s.mu.Unlock()
		return err
	}
	if user != nil {
		if b, err := json.Marshal(user); err == nil {
			if err := s.store.SaveUser(b); err != nil {
				s.log.Warn().Err(err).Msg("user summary not persisted")
			}
		}
	} else if err := s.store.ClearUser(); err != nil {
		// A stale summary would be restored next to the new credentials.
		s.log.Warn().Err(err).Msg("previous user summary not cleared")
	}
	s.creds = creds
	s.user = cloneUser(user)
	s.loading = false
	s.status = Authenticated
	s.mu.Unlock()

	s.notify(Authenticated)
	return nil
}

// ClearSession wipes persisted and in-memory state. In-memory state always
// ends cleared; a failing store is only logged.
func (s *Session) ClearSession() {
	s.mu.Lock()
	if err := s.store.ClearAll(); err != nil {
		s.log.Warn().Err(err).Msg("clearing persisted session failed")
	}
	s.creds = keychain.Credentials{}
	s.user = nil
	s.loading = false
	s.status = Unauthenticated
	s.mu.Unlock()

	s.notify(Unauthenticated)
}

// ReplaceCredentials swaps in a refreshed pair, keeping the user.
func (s *Session) ReplaceCredentials(creds keychain.Credentials) error {
	s.mu.Lock()
	if err := s.store.Write(creds); err != nil {
		s.mu.Unlock()
		return err
	}
	s.creds = creds
	s.loading = false
	changed := s.status != Authenticated
	s.status = Authenticated
	s.mu.Unlock()

	if changed {
		s.notify(Authenticated)
	}
	return nil
}

// DropCredentials forgets the pair after an unrecoverable refresh failure.
// The user is kept so NeedsReauth can tell an expired session from a
// never-started one.
func (s *Session) DropCredentials() {
	s.mu.Lock()
	if err := s.store.Clear(); err != nil {
		s.log.Warn().Err(err).Msg("clearing credentials after refresh failure")
	}
	s.creds = keychain.Credentials{}
	s.status = Unauthenticated
	s.mu.Unlock()

	s.notify(Unauthenticated)
}

// Credentials returns the current pair. Before hydration it reads the
// Token Store directly.
func (s *Session) Credentials() keychain.Credentials {
	s.mu.RLock()
	if s.status == Uninitialized {
		s.mu.RUnlock()
		return s.store.Read()
	}
	defer s.mu.RUnlock()
	return s.creds
}

// AccessToken returns the bearer token to attach, or "".
func (s *Session) AccessToken() string { return s.Credentials().AccessToken }

// RefreshToken returns the refresh token, or "".
func (s *Session) RefreshToken() string { return s.Credentials().RefreshToken }

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.user)
}

// Status returns the lifecycle status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IsLoading is true until hydration (or the first SetSession/ClearSession) completes.
func (s *Session) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// NeedsReauth reports a user whose credentials were dropped by a failed refresh.
func (s *Session) NeedsReauth() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.creds.AccessToken == ""
}

// Snapshot returns a consistent copy of the whole state.
func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Status: s.status, Credentials: s.creds, User: cloneUser(s.user), IsLoading: s.loading}
}

// Subscribe delivers status transitions until cancel is called. Slow
// subscribers miss transitions rather than block the session.
func (s *Session) Subscribe() (<-chan Status, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Status, 8)
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) notify(st Status) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
			s.log.Debug().Str("status", st.String()).Msg("subscriber lagging, transition dropped")
		}
	}
}

func decodeUser(b []byte, log zerolog.Logger) *User {
	if len(b) == 0 {
		return nil
	}
	var u User
	if err := json.Unmarshal(b, &u); err != nil {
		log.Warn().Err(err).Msg("cached user is unreadable, ignoring")
		return nil
	}
	return &u
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
