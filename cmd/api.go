// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	apperrors "vkbacademy/cli/internal/errors"
	"vkbacademy/cli/internal/httpclient"

	"github.com/spf13/cobra"
)

var (
	apiData    string
	apiQuery   []string
	apiHeaders []string
	apiRaw     bool
)

// apiCmd sends an arbitrary authenticated request, refreshing the session
// on the way if needed.
var apiCmd = &cobra.Command{
	Use:   "api <METHOD> <PATH>",
	Short: "Send an authenticated request to the academy API",
	Long: `The api command sends one request to the academy API with your access
token attached. If the token has expired it is refreshed once and the request
is replayed. The response body is printed to stdout; JSON is pretty-printed
unless --raw is set.

--data takes a JSON literal, @file to read a file, or @- to read stdin.

Examples:
  vkbacademy api GET /courses
  vkbacademy api POST /bookings --data '{"slotId":"s-1"}'
  vkbacademy api GET /lessons -q course=go-101 -q page=2`,
	Args: cobra.ExactArgs(2),

	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildAPIRequest(args[0], args[1], apiData, apiQuery, apiHeaders, os.Stdin)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		resp, err := a.client.Do(cmd.Context(), req)
		if err != nil {
			var he *apperrors.HTTPError
			if apperrors.KindOf(err) == apperrors.RequestFailed && errors.As(err, &he) {
				// Surface the API's own error body; it is usually the useful part.
				writeBody(cmd.OutOrStdout(), he.Body, apiRaw)
			}
			return present(err, fmt.Sprintf("calling %s %s", req.Method, req.Path))
		}
		writeBody(cmd.OutOrStdout(), resp.Body, apiRaw)
		return nil
	},
}

func init() {
	apiCmd.Flags().StringVarP(&apiData, "data", "d", "", "Request body: JSON, @file or @-")
	apiCmd.Flags().StringArrayVarP(&apiQuery, "query", "q", nil, "Query parameter key=value (repeatable)")
	apiCmd.Flags().StringArrayVarP(&apiHeaders, "header", "H", nil, "Extra header 'Name: value' (repeatable)")
	apiCmd.Flags().BoolVar(&apiRaw, "raw", false, "Print the response body unmodified")
	rootCmd.AddCommand(apiCmd)
}

func buildAPIRequest(method, path, data string, query, headers []string, stdin io.Reader) (*httpclient.Request, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, apperrors.New(apperrors.InvalidInput, "unsupported method "+method)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req := &httpclient.Request{Method: method, Path: path}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		q, err := url.ParseQuery(path[i+1:])
		if err != nil {
			return nil, apperrors.Wrap(apperrors.InvalidInput, "parse query", err)
		}
		req.Path, req.Query = path[:i], q
	}
	for _, kv := range query {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, apperrors.New(apperrors.InvalidInput, "query must be key=value, got "+kv)
		}
		if req.Query == nil {
			req.Query = url.Values{}
		}
		req.Query.Add(k, v)
	}
	for _, h := range headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, apperrors.New(apperrors.InvalidInput, "header must be 'Name: value', got "+h)
		}
		if strings.EqualFold(strings.TrimSpace(k), "Authorization") {
			return nil, apperrors.New(apperrors.InvalidInput, "Authorization is managed by the session")
		}
		if req.Header == nil {
			req.Header = http.Header{}
		}
		req.Header.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}

	body, err := readData(data, stdin)
	if err != nil {
		return nil, err
	}
	req.Body = body
	return req, nil
}

func readData(data string, stdin io.Reader) ([]byte, error) {
	var b []byte
	switch {
	case data == "":
		return nil, nil
	case data == "@-":
		v, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		b = v
	case strings.HasPrefix(data, "@"):
		v, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, apperrors.Wrap(apperrors.InvalidInput, "read body file", err)
		}
		b = v
	default:
		b = []byte(data)
	}
	if !json.Valid(b) {
		return nil, apperrors.New(apperrors.InvalidInput, "request body is not valid JSON")
	}
	return b, nil
}

func writeBody(w io.Writer, body []byte, raw bool) {
	if len(body) == 0 {
		return
	}
	if !raw {
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err == nil {
			body = buf.Bytes()
		}
	}
	w.Write(body)
	if body[len(body)-1] != '\n' {
		fmt.Fprintln(w)
	}
}
