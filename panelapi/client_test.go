// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package panelapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("NewClient accepted an empty BaseURL")
	}
}

func TestNewClientTrimsTrailingSlash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		w.Write([]byte(`{"status":"ok","db":true}`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{
		BaseURL:    server.URL + "/",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestErrorResponseBecomesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"device not found","code":"DEVICE_NOT_FOUND"}`))
	}))
	defer server.Close()
	client := testClient(t, server)

	_, err := client.Snapshot(context.Background(), "k_0000000000000000000000", 15, 10)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
	if apiErr.Code != "DEVICE_NOT_FOUND" || apiErr.Message != "device not found" {
		t.Errorf("parsed error = %+v", apiErr)
	}
	if !IsStatus(err, http.StatusNotFound) {
		t.Error("IsStatus(404) = false")
	}
}

func TestNonJSONErrorBodyPreserved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}))
	defer server.Close()
	client := testClient(t, server)

	_, err := client.Snapshot(context.Background(), "k_0000000000000000000000", 15, 10)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v, want *APIError", err)
	}
	if apiErr.Message != "Bad Gateway" {
		t.Errorf("Message = %q, want raw body text", apiErr.Message)
	}
}

func TestUnauthorizedClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid device key"}`))
	}))
	defer server.Close()
	client := testClient(t, server)

	_, err := client.Snapshot(context.Background(), "k_0000000000000000000000", 15, 10)
	if !IsUnauthorized(err) {
		t.Fatalf("IsUnauthorized(%v) = false", err)
	}
	if IsUnauthorized(errors.New("plain")) {
		t.Error("IsUnauthorized(plain error) = true")
	}
}

func TestRequestTimeout(t *testing.T) {
	blocked := make(chan struct{})
	defer close(blocked)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-blocked:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{
		BaseURL:        server.URL,
		HTTPClient:     server.Client(),
		RequestTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Snapshot(context.Background(), "k_0000000000000000000000", 15, 10)
	if err == nil {
		t.Fatal("hung request did not time out")
	}
	if !IsTimeout(err) {
		t.Fatalf("IsTimeout(%v) = false", err)
	}
}

func TestHealthDegraded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"degraded","db":false}`))
	}))
	defer server.Close()
	client := testClient(t, server)

	if err := client.Health(context.Background()); err == nil {
		t.Fatal("degraded health reported as healthy")
	}
}
