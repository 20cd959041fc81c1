// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fastline-hq/display/credstore"
	"github.com/fastline-hq/display/panelapi"
)

const testDeviceKey = "k_9a4f72c1e8b35d06a1f4c7e2d9b08356"

func testCredStore(t *testing.T) *credstore.Store {
	t.Helper()
	store, err := credstore.Open(filepath.Join(t.TempDir(), "credentials.db"), nil)
	if err != nil {
		t.Fatalf("opening credential store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testAPIClient(t *testing.T, server *httptest.Server) *panelapi.Client {
	t.Helper()
	client, err := panelapi.NewClient(panelapi.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("creating API client: %v", err)
	}
	return client
}

// pairServer answers the pairing endpoint, recording the codes it saw.
func pairServer(t *testing.T, status int, response any) (*httptest.Server, *[]string) {
	t.Helper()
	var codes []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/devices/pair" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var body struct {
			PairingCode string `json:"pairingCode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding pair request: %v", err)
		}
		codes = append(codes, body.PairingCode)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)
	return server, &codes
}

func TestPairingStartsUnpaired(t *testing.T) {
	ctx := context.Background()
	server, _ := pairServer(t, http.StatusOK, nil)

	pairing, err := NewPairing(ctx, testAPIClient(t, server), testCredStore(t), nil)
	if err != nil {
		t.Fatalf("NewPairing: %v", err)
	}
	if state := pairing.State(); state != StateUnpaired {
		t.Fatalf("state = %s, want UNPAIRED", state)
	}
}

func TestPairingStartsPairedWithStoredKey(t *testing.T) {
	ctx := context.Background()
	server, _ := pairServer(t, http.StatusOK, nil)
	creds := testCredStore(t)
	if err := creds.SetDeviceKey(ctx, testDeviceKey); err != nil {
		t.Fatal(err)
	}

	pairing, err := NewPairing(ctx, testAPIClient(t, server), creds, nil)
	if err != nil {
		t.Fatalf("NewPairing: %v", err)
	}
	if state := pairing.State(); state != StatePaired {
		t.Fatalf("state = %s, want PAIRED", state)
	}
}

func TestSubmitPairingCodeSuccess(t *testing.T) {
	ctx := context.Background()
	server, codes := pairServer(t, http.StatusOK, panelapi.PairDeviceResponse{
		DeviceID: "dev-1",
		APIKey:   testDeviceKey,
	})
	creds := testCredStore(t)

	pairing, err := NewPairing(ctx, testAPIClient(t, server), creds, nil)
	if err != nil {
		t.Fatal(err)
	}

	var transitions []IdentityState
	pairing.OnChange(func(s IdentityState) { transitions = append(transitions, s) })

	// Lowercase with surrounding whitespace normalizes before sending.
	if err := pairing.SubmitPairingCode(ctx, "  abc123 "); err != nil {
		t.Fatalf("SubmitPairingCode: %v", err)
	}
	if len(*codes) != 1 || (*codes)[0] != "ABC123" {
		t.Fatalf("server saw codes %v, want [ABC123]", *codes)
	}
	if state := pairing.State(); state != StatePaired {
		t.Fatalf("state = %s, want PAIRED", state)
	}

	key, present, err := creds.DeviceKey(ctx)
	if err != nil || !present || key != testDeviceKey {
		t.Fatalf("stored key = (%q, %t, %v)", key, present, err)
	}

	want := []IdentityState{StatePairing, StatePaired}
	if len(transitions) != len(want) || transitions[0] != want[0] || transitions[1] != want[1] {
		t.Fatalf("transitions %v, want %v", transitions, want)
	}
}

func TestSubmitPairingCodeLengthValidation(t *testing.T) {
	ctx := context.Background()
	server, codes := pairServer(t, http.StatusOK, nil)
	pairing, err := NewPairing(ctx, testAPIClient(t, server), testCredStore(t), nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, code := range []string{"", "ABC12", "ABC1234"} {
		err := pairing.SubmitPairingCode(ctx, code)
		var pairErr *PairingError
		if !errors.As(err, &pairErr) {
			t.Fatalf("code %q: error %v, want *PairingError", code, err)
		}
		if pairErr.Err != nil {
			t.Fatalf("code %q rejected with a wrapped cause, want local-only rejection", code)
		}
	}
	if len(*codes) != 0 {
		t.Fatalf("server saw %d requests for invalid codes, want 0", len(*codes))
	}
	if state := pairing.State(); state != StateUnpaired {
		t.Fatalf("state = %s after local rejections, want UNPAIRED", state)
	}
}

func TestSubmitPairingCodeRejectedByServer(t *testing.T) {
	ctx := context.Background()
	server, _ := pairServer(t, http.StatusNotFound, map[string]string{"error": "pairing code not found"})
	creds := testCredStore(t)
	pairing, err := NewPairing(ctx, testAPIClient(t, server), creds, nil)
	if err != nil {
		t.Fatal(err)
	}

	err = pairing.SubmitPairingCode(ctx, "ABC123")
	var pairErr *PairingError
	if !errors.As(err, &pairErr) {
		t.Fatalf("error %v, want *PairingError", err)
	}
	if !panelapi.IsStatus(pairErr.Err, http.StatusNotFound) {
		t.Fatalf("wrapped error %v, want 404 APIError", pairErr.Err)
	}
	if state := pairing.State(); state != StateUnpaired {
		t.Fatalf("state = %s after rejection, want UNPAIRED", state)
	}
	if _, present, _ := creds.DeviceKey(ctx); present {
		t.Fatal("key persisted despite rejected pairing")
	}
}

func TestSubmitPairingCodeAlreadyPaired(t *testing.T) {
	ctx := context.Background()
	server, codes := pairServer(t, http.StatusOK, nil)
	creds := testCredStore(t)
	if err := creds.SetDeviceKey(ctx, testDeviceKey); err != nil {
		t.Fatal(err)
	}
	pairing, err := NewPairing(ctx, testAPIClient(t, server), creds, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := pairing.SubmitPairingCode(ctx, "ABC123"); err == nil {
		t.Fatal("pairing accepted while already paired")
	}
	if len(*codes) != 0 {
		t.Fatal("request sent while already paired")
	}
}

func TestUnpairWipesLocallyEvenWhenServerFails(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	creds := testCredStore(t)
	if err := creds.SetDeviceKey(ctx, testDeviceKey); err != nil {
		t.Fatal(err)
	}
	pairing, err := NewPairing(ctx, testAPIClient(t, server), creds, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := pairing.Unpair(ctx); err != nil {
		t.Fatalf("Unpair: %v", err)
	}
	if state := pairing.State(); state != StateUnpaired {
		t.Fatalf("state = %s, want UNPAIRED", state)
	}
	if _, present, _ := creds.DeviceKey(ctx); present {
		t.Fatal("key survived unpair with failing server")
	}
}

func TestHandleUnauthorizedWipesAndNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	server, _ := pairServer(t, http.StatusOK, nil)
	creds := testCredStore(t)
	if err := creds.SetDeviceKey(ctx, testDeviceKey); err != nil {
		t.Fatal(err)
	}
	pairing, err := NewPairing(ctx, testAPIClient(t, server), creds, nil)
	if err != nil {
		t.Fatal(err)
	}

	var notifications int
	pairing.OnChange(func(IdentityState) { notifications++ })

	if err := pairing.HandleUnauthorized(ctx); err != nil {
		t.Fatalf("HandleUnauthorized: %v", err)
	}
	if state := pairing.State(); state != StateUnpaired {
		t.Fatalf("state = %s, want UNPAIRED", state)
	}
	if _, present, _ := creds.DeviceKey(ctx); present {
		t.Fatal("revoked key still stored")
	}

	// Second 401 arriving before re-pairing is a no-op.
	if err := pairing.HandleUnauthorized(ctx); err != nil {
		t.Fatalf("second HandleUnauthorized: %v", err)
	}
	if notifications != 1 {
		t.Fatalf("observer fired %d times, want 1", notifications)
	}
}
