// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fastline-hq/display/credstore"
	"github.com/fastline-hq/display/display"
	"github.com/fastline-hq/display/lib/clock"
	"github.com/fastline-hq/display/lib/config"
	"github.com/fastline-hq/display/panelapi"
)

// testAgent builds an agent against a stub FastLine server.
func testAgent(t *testing.T, backend http.Handler) *agent {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	api, err := panelapi.NewClient(panelapi.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatal(err)
	}
	creds, err := credstore.Open(filepath.Join(t.TempDir(), "credentials.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { creds.Close() })

	pairing, err := display.NewPairing(context.Background(), api, creds, nil)
	if err != nil {
		t.Fatal(err)
	}
	return &agent{
		config:  config.Default(),
		api:     api,
		creds:   creds,
		pairing: pairing,
		clk:     clock.Real(),
		paired:  make(chan struct{}, 1),
	}
}

func TestStatusUnpaired(t *testing.T) {
	agent := testAgent(t, http.NotFoundHandler())
	recorder := httptest.NewRecorder()
	agent.router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var body struct {
		Identity string `json:"identity"`
		Sync     string `json:"sync"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Identity != "UNPAIRED" || body.Sync != "" {
		t.Fatalf("body %+v", body)
	}
}

func TestViewWithoutEngine(t *testing.T) {
	agent := testAgent(t, http.NotFoundHandler())
	recorder := httptest.NewRecorder()
	agent.router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/view", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", recorder.Code)
	}
}

func TestAnnouncementsWithoutEngine(t *testing.T) {
	agent := testAgent(t, http.NotFoundHandler())
	recorder := httptest.NewRecorder()
	agent.router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/announcements?after=0", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if got := strings.TrimSpace(recorder.Body.String()); got != "[]" {
		t.Fatalf("body = %q, want empty array", got)
	}
}

func TestAnnouncementsBadCursor(t *testing.T) {
	agent := testAgent(t, http.NotFoundHandler())
	recorder := httptest.NewRecorder()
	agent.router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/announcements?after=banana", nil))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}

func TestPairRejectsShortCode(t *testing.T) {
	agent := testAgent(t, http.NotFoundHandler())
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/pair", strings.NewReader(`{"code":"AB"}`))
	agent.router().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", recorder.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error == "" {
		t.Fatal("no user-facing error message")
	}
}

func TestPairSuccessSignalsSupervisor(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(panelapi.PairDeviceResponse{
			DeviceID: "dev-1",
			APIKey:   "k_3f9c2d8a41b6e07f5a12c9d4",
		})
	})
	agent := testAgent(t, backend)
	agent.pairing.OnChange(func(state display.IdentityState) {
		if state == display.StatePaired {
			select {
			case agent.paired <- struct{}{}:
			default:
			}
		}
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/pair", strings.NewReader(`{"code":"ABC123"}`))
	agent.router().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	select {
	case <-agent.paired:
	default:
		t.Fatal("supervisor not signalled after pairing")
	}
	if agent.pairing.State() != display.StatePaired {
		t.Fatalf("identity = %s", agent.pairing.State())
	}
}

// A renderer surface failure cancels the root context; the supervisor
// only notices if runOnce honors that cancellation while it is parked
// waiting for a pairing code.
func TestRunOnceReturnsOnCancelWhileUnpaired(t *testing.T) {
	agent := testAgent(t, http.NotFoundHandler())
	agent.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.runOnce(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("runOnce returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runOnce did not return after cancellation")
	}
}
