// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package panelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultRequestTimeout is the ceiling for every non-streaming
// request. The event stream bypasses it. Everything else, snapshot,
// pairing and token refresh included, is aborted at this deadline so a hung
// request can never wedge the display.
const defaultRequestTimeout = 30 * time.Second

// maxResponseSize bounds response body reads: 8 MB. Snapshot payloads
// are a few kilobytes; the bound exists only so a misbehaving server
// cannot exhaust kiosk memory.
const maxResponseSize int64 = 8 << 20

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the FastLine API origin (e.g. "https://api.fastline.app").
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used. The client's own Timeout should be zero: per-request
	// deadlines are applied here, and a transport-level timeout would
	// kill the long-lived event stream.
	HTTPClient *http.Client
	// RequestTimeout overrides the per-request ceiling. Zero means the
	// 30-second default.
	RequestTimeout time.Duration
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// Client talks to the FastLine server API. One Client is constructed
// at process start and passed by reference to every component that
// needs it; there is no package-level instance.
//
// Request URLs are built by string concatenation on the validated base
// URL rather than url.URL assembly, matching how path segments that
// already contain encoded characters (device keys) must pass through
// untouched.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewClient creates a Client for the given server.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("panelapi: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("panelapi: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	requestTimeout := config.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		logger:         logger,
	}, nil
}

// CloseIdleConnections drops idle HTTP connections in the underlying
// transport's pool. Called after a network disruption so the next
// request opens a fresh TCP connection instead of reusing a poisoned
// pooled one.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// doRequest performs a JSON API request with the per-request deadline
// applied. bearer is the session access token for admin calls; device
// endpoints authenticate via the key in the URL path and pass "".
//
// Non-2xx responses become *APIError with a best-effort decode of the
// server's error body, so status-based classification works even when
// the body is not JSON.
func (c *Client) doRequest(ctx context.Context, method, path, bearer string, requestBody any, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("panelapi: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("panelapi: creating request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("panelapi: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("panelapi: reading response body for %s %s: %w", method, path, err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	apiErr := &APIError{StatusCode: response.StatusCode}
	var parsed errorBody
	if jsonErr := json.Unmarshal(responseBody, &parsed); jsonErr == nil {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.message()
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(responseBody))
	}
	return nil, apiErr
}
