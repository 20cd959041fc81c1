// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package panelapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// APIError is a structured error response from the FastLine server.
// Every non-2xx response becomes an *APIError so callers can classify
// by status code even when the server body is not JSON:
//
//	var apiErr *APIError
//	if errors.As(err, &apiErr) {
//	    if apiErr.StatusCode == http.StatusUnauthorized { ... }
//	}
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// Code is the machine-readable error code, when the server sent one.
	Code string
	// Message is the human-readable description. When the body was not
	// JSON, this holds the raw body text.
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("panelapi: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("panelapi: %d: %s", e.StatusCode, e.Message)
}

// errorBody is the JSON shape of server error responses. The server
// is inconsistent about which of "error" and "message" carries the
// description, so both are accepted.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (b errorBody) message() string {
	if b.Error != "" {
		return b.Error
	}
	return b.Message
}

// IsUnauthorized reports whether err is a server 401. A 401 means the
// credential is invalid or revoked; retrying with the same key is
// futile and callers must route into the credential-wipe path.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsStatus reports whether err is a server response with the given
// HTTP status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// IsTimeout reports whether err is a request that exceeded its
// deadline, either through the per-request context or at the
// transport level. Timeouts are recoverable: the caller keeps the last
// known good state and relies on reconnect plus periodic resync.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
