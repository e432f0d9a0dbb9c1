// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httpclient sends authenticated requests to the academy API and
// transparently recovers from access-token expiry.
//
// Every request carries "Authorization: Bearer <access token>". A 401 on the
// first attempt triggers one refresh of the credential pair followed by one
// replay of the request. Refreshes are serialized process-wide: concurrent
// 401s wait on the refresh already in flight instead of starting their own,
// and a 401 for a token that has since been replaced is replayed with the
// current token without refreshing again.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	apperrors "vkbacademy/cli/internal/errors"
	"vkbacademy/cli/internal/keychain"
	"vkbacademy/cli/internal/logging"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshTimeout bounds a single refresh call.
const DefaultRefreshTimeout = 10 * time.Second

const maxBodyBytes = 4 << 20

// Session is the credential state the client reads and updates.
// *session.Session implements it.
type Session interface {
	Credentials() keychain.Credentials
	ReplaceCredentials(keychain.Credentials) error
	DropCredentials()
}

// Refresher exchanges a refresh token for a new pair. *backend.HTTP implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (keychain.Credentials, error)
}

// Options configures New.
type Options struct {
	BaseURL string
	// HTTPClient defaults to a client with a 15-second timeout.
	HTTPClient     *http.Client
	RefreshTimeout time.Duration
	Logger         zerolog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL        string
	hc             *http.Client
	sess           Session
	refresher      Refresher
	refreshTimeout time.Duration
	log            zerolog.Logger

	flight    singleflight.Group
	refreshMu sync.Mutex
}

// New returns a client that authenticates with sess and refreshes via refresher.
func New(sess Session, refresher Refresher, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	timeout := opts.RefreshTimeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		hc:             hc,
		sess:           sess,
		refresher:      refresher,
		refreshTimeout: timeout,
		log:            opts.Logger.With().Str("component", "httpclient").Logger(),
	}
}

// Request describes one API call. Body is kept as bytes so the request can
// be replayed after a refresh.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is a settled 2xx response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// pending is the per-call context threaded through the retry path. It is
// never mutated; retry returns a new value.
type pending struct {
	id      string
	attempt int
	retried bool
	// token is the access token attached to this attempt.
	token string
}

func (p pending) retry(token string) pending {
	return pending{id: p.id, attempt: p.attempt + 1, retried: true, token: token}
}

// Do sends req and returns the 2xx response. Failures are
// *apperrors.HTTPError (with status and body) or a NetworkError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.Method == "" || !strings.HasPrefix(req.Path, "/") {
		return nil, apperrors.New(apperrors.InvalidInput, "request needs a method and a path starting with /")
	}

	p := pending{id: uuid.NewString(), attempt: 1, token: c.sess.Credentials().AccessToken}
	resp, err := c.send(ctx, req, p)
	if err != nil {
		return nil, err
	}
	if isSuccess(resp.Status) {
		return resp, nil
	}
	if resp.Status != http.StatusUnauthorized {
		return nil, newHTTPError(apperrors.RequestFailed, req, resp, false)
	}

	original := newHTTPError(apperrors.Unauthorized, req, resp, false)
	if c.sess.Credentials().RefreshToken == "" {
		return nil, original
	}

	token, err := c.refresh(ctx, p.token)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Info().Err(err).Str("request_id", p.id).Msg("refresh failed, credentials cleared")
		original.Kind = apperrors.RefreshFailed
		return nil, original
	}

	p = p.retry(token)
	resp, err = c.send(ctx, req, p)
	if err != nil {
		var e *apperrors.E
		if errors.As(err, &e) {
			e.AfterRefresh = true
		}
		return nil, err
	}
	if isSuccess(resp.Status) {
		return resp, nil
	}
	kind := apperrors.RequestFailed
	if resp.Status == http.StatusUnauthorized {
		kind = apperrors.Unauthorized
	}
	return nil, newHTTPError(kind, req, resp, true)
}

// refresh returns an access token newer than failed, joining any refresh
// already running for the same failed token.
func (c *Client) refresh(ctx context.Context, failed string) (string, error) {
	ch := c.flight.DoChan(failed, func() (any, error) {
		return c.refreshLocked(failed)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refreshLocked runs at most one refresh at a time. It does not use any
// caller's context: the refresh is shared and bounded by refreshTimeout.
func (c *Client) refreshLocked(failed string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current := c.sess.Credentials()
	if current.AccessToken != "" && current.AccessToken != failed {
		c.log.Debug().Str("access", logging.TokenHint(current.AccessToken)).Msg("token already refreshed, reusing")
		return current.AccessToken, nil
	}
	if current.RefreshToken == "" {
		return "", apperrors.New(apperrors.RefreshFailed, "no refresh token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	start := time.Now()
	creds, err := c.refresher.Refresh(ctx, current.RefreshToken)
	if err == nil && !creds.Complete() {
		err = errors.New("refresh returned an incomplete credential pair")
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("refresh timed out after %s: %w", c.refreshTimeout, err)
		}
		c.sess.DropCredentials()
		return "", apperrors.Wrap(apperrors.RefreshFailed, "refresh", err)
	}
	if err := c.sess.ReplaceCredentials(creds); err != nil {
		// The server already rotated the pair; without persisting it the
		// old refresh token is useless.
		c.sess.DropCredentials()
		return "", apperrors.Wrap(apperrors.RefreshFailed, "persist refreshed credentials", err)
	}

	c.log.Debug().Dur("took", time.Since(start)).Str("access", logging.TokenHint(creds.AccessToken)).Msg("credentials refreshed")
	return creds.AccessToken, nil
}

func (c *Client) send(ctx context.Context, req *Request, p pending) (*Response, error) {
	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.InvalidInput, "build request", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	hreq.Header.Set("User-Agent", "vkbacademy-cli/1.0")
	hreq.Header.Set("X-Request-ID", p.id)
	if hreq.Header.Get("Accept") == "" {
		hreq.Header.Set("Accept", "application/json")
	}
	if req.Body != nil && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if p.token != "" {
		hreq.Header.Set("Authorization", "Bearer "+p.token)
	}

	start := time.Now()
	resp, err := c.hc.Do(hreq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Wrap(apperrors.NetworkError, req.Method+" "+req.Path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.NetworkError, "read "+req.Path, err)
	}

	c.log.Debug().
		Str("request_id", p.id).
		Str("method", req.Method).
		Str("path", req.Path).
		Int("attempt", p.attempt).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("request")

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: b}, nil
}

func isSuccess(status int) bool { return status >= 200 && status <= 299 }

func newHTTPError(kind apperrors.Kind, req *Request, resp *Response, afterRefresh bool) *apperrors.HTTPError {
	return &apperrors.HTTPError{
		Kind:         kind,
		Method:       req.Method,
		Path:         req.Path,
		Status:       resp.Status,
		Body:         resp.Body,
		AfterRefresh: afterRefresh,
	}
}

// GetJSON issues GET path and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// PostJSON encodes in as the request body, issues POST path and decodes the
// response into out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return apperrors.Wrap(apperrors.InvalidInput, "encode body", err)
	}
	resp, err := c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: b})
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func decode(resp *Response, out any) error {
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
