// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vkbacademy/cli/internal/backend"
	"vkbacademy/cli/internal/endpoints"
	apperrors "vkbacademy/cli/internal/errors"
	"vkbacademy/cli/internal/keychain"
	"vkbacademy/cli/internal/logging"
	"vkbacademy/cli/internal/session"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-process academy API. Access tokens in valid are accepted
// by /protected; /auth/refresh rotates R<n> into T<n+1>/R<n+1>.
type fakeAPI struct {
	mu         sync.Mutex
	valid      map[string]bool
	refreshes  map[string]bool // refresh tokens the server still honours
	next       int
	seenAuth   []string
	seenBodies []string
	seenIDs    []string

	refreshCalls  atomic.Int32
	requestCalls  atomic.Int32
	refreshDelay  time.Duration
	rejectRefresh bool
	// alwaysUnauthorized makes /protected reject every token.
	alwaysUnauthorized bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{valid: map[string]bool{}, refreshes: map[string]bool{"R1": true}, next: 2}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/login":
		f.mu.Lock()
		f.refreshes["R1"] = true
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"accessToken":"T1","refreshToken":"R1","user":{"id":"u1","name":"Alice","email":"a@b.com","role":"STUDENT"}}`)
	case "/auth/refresh":
		f.refreshCalls.Add(1)
		if f.refreshDelay > 0 {
			time.Sleep(f.refreshDelay)
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.rejectRefresh || !f.refreshes[body.RefreshToken] {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"invalid refresh token"}`)
			return
		}
		delete(f.refreshes, body.RefreshToken)
		n := f.next
		f.next++
		access, refresh := "T"+strconv.Itoa(n), "R"+strconv.Itoa(n)
		f.valid[access] = true
		f.refreshes[refresh] = true
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": access, "refreshToken": refresh})
	case "/protected":
		f.requestCalls.Add(1)
		b, _ := io.ReadAll(r.Body)
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		f.mu.Lock()
		f.seenAuth = append(f.seenAuth, token)
		f.seenBodies = append(f.seenBodies, string(b))
		f.seenIDs = append(f.seenIDs, r.Header.Get("X-Request-ID"))
		ok := f.valid[token] && !f.alwaysUnauthorized
		f.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"jwt expired"}`)
			return
		}
		_, _ = io.WriteString(w, `{"token":"`+token+`"}`)
	case "/broken":
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `boom`)
	default:
		http.NotFound(w, r)
	}
}

type harness struct {
	api    *fakeAPI
	store  *keychain.Store
	sess   *session.Session
	client *Client
	be     *backend.HTTP
}

func newHarness(t *testing.T, api *fakeAPI, refreshTimeout time.Duration) *harness {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store := keychain.New(keyring.NewArrayKeyring(nil), logging.Nop())
	sess := session.New(store, logging.Nop())
	sess.Hydrate()
	be := backend.New(srv.URL, endpoints.HTTP{}, srv.Client())
	client := New(sess, be, Options{
		BaseURL:        srv.URL,
		HTTPClient:     srv.Client(),
		RefreshTimeout: refreshTimeout,
		Logger:         logging.Nop(),
	})
	return &harness{api: api, store: store, sess: sess, client: client, be: be}
}

func (h *harness) signIn(t *testing.T, access string) {
	t.Helper()
	require.NoError(t, h.sess.SetSession(
		keychain.Credentials{AccessToken: access, RefreshToken: "R1"},
		&session.User{ID: "u1", Name: "Alice", Email: "a@b.com", Role: "STUDENT"},
	))
}

func TestValidTokenNeverRefreshes(t *testing.T) {
	api := newFakeAPI()
	api.valid["T1"] = true
	h := newHarness(t, api, 0)
	h.signIn(t, "T1")

	var out struct{ Token string }
	require.NoError(t, h.client.GetJSON(context.Background(), "/protected", &out))
	require.Equal(t, "T1", out.Token)
	require.EqualValues(t, 0, api.refreshCalls.Load())
	require.EqualValues(t, 1, api.requestCalls.Load())
}

func TestSingle401RefreshesOnceAndRetries(t *testing.T) {
	api := newFakeAPI()
	h := newHarness(t, api, 0)
	h.signIn(t, "T1")

	resp, err := h.client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/protected"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	require.EqualValues(t, 1, api.refreshCalls.Load())
	require.Equal(t, []string{"T1", "T2"}, api.seenAuth)
	require.Equal(t, api.seenIDs[0], api.seenIDs[1], "the replay belongs to the same pending request")
	require.Equal(t, keychain.Credentials{AccessToken: "T2", RefreshToken: "R2"}, h.store.Read())
}

func TestRetried401DoesNotRefreshAgain(t *testing.T) {
	api := newFakeAPI()
	api.alwaysUnauthorized = true
	h := newHarness(t, api, 0)
	h.signIn(t, "T1")

	_, err := h.client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/protected"})
	require.Error(t, err)

	var he *apperrors.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusUnauthorized, he.Status)
	require.True(t, he.AfterRefresh)
	require.Equal(t, apperrors.Unauthorized, he.Kind)
	require.EqualValues(t, 1, api.refreshCalls.Load())
	require.EqualValues(t, 2, api.requestCalls.Load())
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	api := newFakeAPI()
	api.refreshDelay = 50 * time.Millisecond
	h := newHarness(t, api, 0)
	h.signIn(t, "T1")

	const n = 5
	var wg sync.WaitGroup
	start := make(chan struct{})
	tokens := make([]string, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			var out struct{ Token string }
			err := h.client.GetJSON(context.Background(), "/protected", &out)
			assert.NoError(t, err)
			tokens[i] = out.Token
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, api.refreshCalls.Load())
	for i, tok := range tokens {
		require.Equal(t, "T2", tok, "request %d", i)
	}
	require.Equal(t, keychain.Credentials{AccessToken: "T2", RefreshToken: "R2"}, h.store.Read())
}

func TestRefreshRejectedClearsCredentialsKeepsUser(t *testing.T) {
	api := newFakeAPI()
	api.rejectRefresh = true
	h := newHarness(t, api, 0)
	h.signIn(t, "T1")

	_, err := h.client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/protected"})
	var he *apperrors.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, apperrors.RefreshFailed, he.Kind)
	require.Equal(t, http.StatusUnauthorized, he.Status)
	require.False(t, he.AfterRefresh)
	require.Contains(t, string(he.Body), "jwt expired", "the original 401 is propagated")

	require.Equal(t, keychain.Credentials{}, h.store.Read())
	require.NotNil(t, h.sess.User())
	require.True(t, h.sess.NeedsReauth())
	require.EqualValues(t, 1, api.requestCalls.Load())
}

func TestConcurrentRequestsAfterFailedRefresh(t *testing.T) {
	api := newFakeAPI()
	api.rejectRefresh = true
	api.refreshDelay = 30 * time.Millisecond
	h := newHarness(t, api, 0)
	h.signIn(t, "T1")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/protected"})
			assert.Equal(t, http.StatusUnauthorized, apperrors.StatusOf(err))
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, api.refreshCalls.Load())
}

func TestMissingRefreshTokenPropagatesOriginal(t *testing.T) {
	api := newFakeAPI()
	h := newHarness(t, api, 0)

	_, err := h.client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/protected"})
	var he *apperrors.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, apperrors.Unauthorized, he.Kind)
	require.False(t, he.AfterRefresh)
	require.EqualValues(t, 0, api.refreshCalls.Load())
	require.Equal(t, []string{""}, api.seenAuth, "no Authorization header without a token")
}

func TestRefreshTimeoutIsRefreshFailure(t *testing.T) {
	api := newFakeAPI()
	api.refreshDelay = 300 * time.Millisecond
	h := newHarness(t, api, 30*time.Millisecond)
	h.signIn(t, "T1")

	began := time.Now()
	_, err := h.client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/protected"})
	require.Less(t, time.Since(began), 250*time.Millisecond)
	require.Equal(t, apperrors.RefreshFailed, apperrors.KindOf(err))
	require.Equal(t, keychain.Credentials{}, h.store.Read())
}

func TestOtherFailuresPropagateUnchanged(t *testing.T) {
	api := newFakeAPI()
	api.valid["T1"] = true
	h := newHarness(t, api, 0)
	h.signIn(t, "T1")

	_, err := h.client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/broken"})
	var he *apperrors.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, apperrors.RequestFailed, he.Kind)
	require.Equal(t, http.StatusInternalServerError, he.Status)
	require.Equal(t, "boom", string(he.Body))
	require.EqualValues(t, 0, api.refreshCalls.Load())
}

func TestNetworkError(t *testing.T) {
	store := keychain.New(keyring.NewArrayKeyring(nil), logging.Nop())
	sess := session.New(store, logging.Nop())
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := New(sess, backend.New(srv.URL, endpoints.HTTP{}, nil), Options{BaseURL: srv.URL, Logger: logging.Nop()})
	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/protected"})
	require.Equal(t, apperrors.NetworkError, apperrors.KindOf(err))
	require.False(t, apperrors.AfterRefresh(err))
}

func TestNetworkErrorOnReplayIsMarked(t *testing.T) {
	var protectedCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			_, _ = w.Write([]byte(`{"accessToken":"T2","refreshToken":"R2"}`))
		case "/protected":
			if protectedCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
		}
	}))
	defer srv.Close()

	store := keychain.New(keyring.NewArrayKeyring(nil), logging.Nop())
	sess := session.New(store, logging.Nop())
	sess.Hydrate()
	require.NoError(t, sess.SetSession(keychain.Credentials{AccessToken: "T1", RefreshToken: "R1"}, nil))

	c := New(sess, backend.New(srv.URL, endpoints.HTTP{}, srv.Client()), Options{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Logger:     logging.Nop(),
	})
	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/protected"})
	require.Error(t, err)
	require.Equal(t, apperrors.NetworkError, apperrors.KindOf(err))
	require.True(t, apperrors.AfterRefresh(err), "got %v", err)
	require.Equal(t, keychain.Credentials{AccessToken: "T2", RefreshToken: "R2"}, sess.Credentials())
	// The transport may retry a GET once on a reused connection.
	require.GreaterOrEqual(t, protectedCalls.Load(), int32(2))
}

func TestBodyIsReplayed(t *testing.T) {
	api := newFakeAPI()
	h := newHarness(t, api, 0)
	h.signIn(t, "T1")

	in := map[string]any{"quizId": "q1", "answers": []int{1, 3}}
	require.NoError(t, h.client.PostJSON(context.Background(), "/protected", in, nil))
	require.Len(t, api.seenBodies, 2)
	require.Equal(t, api.seenBodies[0], api.seenBodies[1])
	require.JSONEq(t, `{"quizId":"q1","answers":[1,3]}`, api.seenBodies[1])
}

func TestInvalidRequest(t *testing.T) {
	h := newHarness(t, newFakeAPI(), 0)
	_, err := h.client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "protected"})
	require.Equal(t, apperrors.InvalidInput, apperrors.KindOf(err))
}

// Login, expired token, refresh, replay: the full happy path end to end.
func TestLoginExpireRefreshScenario(t *testing.T) {
	api := newFakeAPI()
	h := newHarness(t, api, 0)

	res, err := h.be.Login(context.Background(), "a@b.com", "secret123")
	require.NoError(t, err)
	require.Equal(t, keychain.Credentials{AccessToken: "T1", RefreshToken: "R1"}, res.Credentials)
	require.NoError(t, h.sess.SetSession(res.Credentials, res.User))

	// T1 was never marked valid: the server treats it as expired.
	resp, err := h.client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/protected"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.JSONEq(t, `{"token":"T2"}`, string(resp.Body))

	require.Equal(t, []string{"T1", "T2"}, api.seenAuth)
	require.Equal(t, keychain.Credentials{AccessToken: "T2", RefreshToken: "R2"}, h.store.Read())
	require.Equal(t, session.Authenticated, h.sess.Status())
}
