// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"vkbacademy/cli/internal/keychain"
	"vkbacademy/cli/internal/logging"

	"github.com/99designs/keyring"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// fakeStore wraps a real keychain.Store and can fail writes or clears.
type fakeStore struct {
	*keychain.Store
	failWrite bool
	failClear bool
	reads     int
	mu        sync.Mutex
}

func newFakeStore() *fakeStore {
	return &fakeStore{Store: keychain.New(keyring.NewArrayKeyring(nil), logging.Nop())}
}

var errStorage = errors.New("storage down")

func (f *fakeStore) Read() keychain.Credentials {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	return f.Store.Read()
}

func (f *fakeStore) Write(c keychain.Credentials) error {
	if f.failWrite {
		return errStorage
	}
	return f.Store.Write(c)
}

func (f *fakeStore) ClearAll() error {
	if f.failClear {
		return errStorage
	}
	return f.Store.ClearAll()
}

func (f *fakeStore) Clear() error {
	if f.failClear {
		return errStorage
	}
	return f.Store.Clear()
}

var (
	pair1 = keychain.Credentials{AccessToken: "T1", RefreshToken: "R1"}
	pair2 = keychain.Credentials{AccessToken: "T2", RefreshToken: "R2"}
	alice = &User{ID: "u1", Name: "Alice", Email: "a@b.com", Role: "STUDENT"}
	bob   = &User{ID: "u2", Name: "Bob", Email: "bob@b.com", Role: "COACH"}
)

func TestHydrateEmptyStore(t *testing.T) {
	s := New(newFakeStore(), logging.Nop())
	require.True(t, s.IsLoading())
	require.Equal(t, Uninitialized, s.Status())

	s.Hydrate()
	require.False(t, s.IsLoading())
	require.Equal(t, Unauthenticated, s.Status())
	require.Nil(t, s.User())
}

func TestHydrateRestoresPersistedSession(t *testing.T) {
	store := newFakeStore()
	first := New(store, logging.Nop())
	require.NoError(t, first.SetSession(pair1, alice))

	s := New(store, logging.Nop())
	s.Hydrate()
	require.Equal(t, Authenticated, s.Status())
	require.Equal(t, pair1, s.Credentials())
	require.Equal(t, alice, s.User())
}

func TestHydrateIsOneShotUnderConcurrency(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Write(pair1))
	s := New(store, logging.Nop())
	updates, cancel := s.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Hydrate()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, store.reads)
	require.Equal(t, Authenticated, s.Status())
	require.False(t, s.IsLoading())
	require.Equal(t, Hydrating, <-updates)
	require.Equal(t, Authenticated, <-updates)
	select {
	case st := <-updates:
		t.Fatalf("unexpected extra transition %v", st)
	default:
	}
}

func TestHydrateAfterSetSessionDoesNotRegress(t *testing.T) {
	s := New(newFakeStore(), logging.Nop())
	require.NoError(t, s.SetSession(pair1, alice))
	s.Hydrate()
	require.Equal(t, Authenticated, s.Status())
	require.Equal(t, pair1, s.Credentials())
}

func TestSetSessionLatestWins(t *testing.T) {
	store := newFakeStore()
	s := New(store, logging.Nop())
	s.Hydrate()

	require.NoError(t, s.SetSession(pair1, alice))
	require.NoError(t, s.SetSession(pair2, bob))

	require.Equal(t, pair2, store.Read())
	require.Equal(t, pair2, s.Credentials())
	require.Equal(t, bob, s.User())
}

func TestSetSessionWithoutUserDropsCachedUser(t *testing.T) {
	store := newFakeStore()
	s := New(store, logging.Nop())
	s.Hydrate()

	require.NoError(t, s.SetSession(pair1, alice))
	require.NoError(t, s.SetSession(pair2, nil))
	require.Nil(t, s.User())

	restored := New(store, logging.Nop())
	restored.Hydrate()
	require.Equal(t, pair2, restored.Credentials())
	require.Nil(t, restored.User(), "user from the previous session restored next to newer credentials")
}

func TestSetSessionIsAllOrNothing(t *testing.T) {
	store := newFakeStore()
	s := New(store, logging.Nop())
	s.Hydrate()
	require.NoError(t, s.SetSession(pair1, alice))

	store.failWrite = true
	require.ErrorIs(t, s.SetSession(pair2, bob), errStorage)

	require.Equal(t, pair1, s.Credentials())
	require.Equal(t, alice, s.User())
	require.Equal(t, Authenticated, s.Status())
}

func TestClearSessionAlwaysClearsMemory(t *testing.T) {
	tests := []struct {
		name      string
		failClear bool
	}{
		{name: "store clears", failClear: false},
		{name: "store fails", failClear: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			s := New(store, logging.Nop())
			s.Hydrate()
			require.NoError(t, s.SetSession(pair1, alice))

			store.failClear = tt.failClear
			s.ClearSession()

			require.Equal(t, keychain.Credentials{}, s.Snapshot().Credentials)
			require.Nil(t, s.User())
			require.Equal(t, Unauthenticated, s.Status())
			require.False(t, s.NeedsReauth())
		})
	}
}

func TestDropCredentialsKeepsUser(t *testing.T) {
	store := newFakeStore()
	s := New(store, logging.Nop())
	s.Hydrate()
	require.NoError(t, s.SetSession(pair1, alice))

	s.DropCredentials()
	require.Equal(t, "", s.AccessToken())
	require.Equal(t, keychain.Credentials{}, store.Read())
	require.Equal(t, alice, s.User())
	require.True(t, s.NeedsReauth())
}

func TestReplaceCredentials(t *testing.T) {
	store := newFakeStore()
	s := New(store, logging.Nop())
	s.Hydrate()
	require.NoError(t, s.SetSession(pair1, alice))

	require.NoError(t, s.ReplaceCredentials(pair2))
	require.Equal(t, pair2, store.Read())
	require.Equal(t, pair2, s.Credentials())
	require.Equal(t, alice, s.User())

	store.failWrite = true
	require.Error(t, s.ReplaceCredentials(pair1))
	require.Equal(t, pair2, s.Credentials())
}

func TestCredentialsBeforeHydrateReadsStore(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Write(pair1))
	s := New(store, logging.Nop())

	require.Equal(t, "T1", s.AccessToken())
	require.Equal(t, Uninitialized, s.Status())
}

func TestUserIsCopied(t *testing.T) {
	s := New(newFakeStore(), logging.Nop())
	u := &User{ID: "u1", Name: "Alice"}
	require.NoError(t, s.SetSession(pair1, u))
	u.Name = "Mallory"
	got := s.User()
	got.Role = "ADMIN"
	require.Equal(t, "Alice", s.User().Name)
	require.Equal(t, "", s.User().Role)
}

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("irrelevant"))
	require.NoError(t, err)

	got, ok := ExpiresAt(tok)
	require.True(t, ok)
	require.True(t, got.Equal(exp))

	_, ok = ExpiresAt("opaque-token")
	require.False(t, ok)
	_, ok = ExpiresAt("")
	require.False(t, ok)
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	s := New(newFakeStore(), logging.Nop())
	ch, cancel := s.Subscribe()

	s.Hydrate()
	require.NoError(t, s.SetSession(keychain.Credentials{AccessToken: "a", RefreshToken: "r"}, &User{ID: "u-1"}))
	s.DropCredentials()

	want := []Status{Hydrating, Unauthenticated, Authenticated, Unauthenticated}
	for _, w := range want {
		select {
		case got := <-ch:
			require.Equal(t, w, got)
		case <-time.After(time.Second):
			t.Fatalf("no transition, want %s", w)
		}
	}
	require.True(t, s.NeedsReauth())

	cancel()
	_, open := <-ch
	require.False(t, open, "cancel closes the channel")
	cancel()
}
