// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fastline-hq/display/credstore"
	"github.com/fastline-hq/display/display"
	"github.com/fastline-hq/display/lib/clock"
	"github.com/fastline-hq/display/lib/config"
	"github.com/fastline-hq/display/panelapi"
)

// agent ties the long-lived pieces of the process together and backs
// the renderer-facing HTTP surface. The surface binds to loopback; it
// is the boundary between this process and the on-device renderer, not
// a network API.
type agent struct {
	config  config.Config
	api     *panelapi.Client
	creds   *credstore.Store
	pairing *display.Pairing
	clk     clock.Clock
	logger  *slog.Logger

	// paired wakes the supervisor loop when a pairing completes.
	paired chan struct{}

	mu     sync.Mutex
	engine *display.Engine
}

func (a *agent) setEngine(engine *display.Engine) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.engine = engine
}

func (a *agent) currentEngine() *display.Engine {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine
}

func (a *agent) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/v1/status", a.handleStatus)
	r.Get("/v1/view", a.handleView)
	r.Get("/v1/announcements", a.handleAnnouncements)
	r.Post("/v1/pair", a.handlePair)
	r.Post("/v1/unpair", a.handleUnpair)
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleStatus reports the identity state and, when the engine is
// running, its connection status. The renderer polls this to choose
// between the pairing screen, the offline badge, and the live panel.
func (a *agent) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := struct {
		Identity  string `json:"identity"`
		Sync      string `json:"sync,omitempty"`
		LastError string `json:"lastError,omitempty"`
	}{
		Identity: string(a.pairing.State()),
	}
	if engine := a.currentEngine(); engine != nil {
		status, lastError := engine.Status()
		response.Sync = string(status)
		response.LastError = lastError
	}
	writeJSON(w, http.StatusOK, response)
}

// handleView returns the synchronized device view. 404 until the
// first snapshot (live or cached) lands.
func (a *agent) handleView(w http.ResponseWriter, r *http.Request) {
	engine := a.currentEngine()
	if engine == nil {
		writeError(w, http.StatusNotFound, "not paired")
		return
	}
	view, ok := engine.View()
	if !ok {
		writeError(w, http.StatusNotFound, "no snapshot yet")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleAnnouncements returns announcements after the given sequence
// number. The renderer remembers the last sequence it spoke and polls
// with ?after=N.
func (a *agent) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	engine := a.currentEngine()
	if engine == nil {
		writeJSON(w, http.StatusOK, []display.Announcement{})
		return
	}
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after parameter")
			return
		}
		after = parsed
	}
	announcements := engine.Announcements(after)
	if announcements == nil {
		announcements = []display.Announcement{}
	}
	writeJSON(w, http.StatusOK, announcements)
}

// handlePair submits a pairing code typed on the renderer's pairing
// screen. User-facing failure text comes back in the error body.
func (a *agent) handlePair(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.pairing.SubmitPairingCode(r.Context(), body.Code); err != nil {
		var pairErr *display.PairingError
		if errors.As(err, &pairErr) {
			writeError(w, http.StatusUnprocessableEntity, pairErr.Reason)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"identity": string(a.pairing.State())})
}

func (a *agent) handleUnpair(w http.ResponseWriter, r *http.Request) {
	if err := a.pairing.Unpair(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"identity": string(a.pairing.State())})
}
