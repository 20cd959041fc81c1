// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fastline-hq/display/credstore"
	"github.com/fastline-hq/display/panelapi"
)

// pairingCodeLength is the exact length of a human-typed pairing code.
// The issuing side generates 6-character codes valid for 15 minutes;
// anything else is rejected before a network call is made.
const pairingCodeLength = 6

// IdentityState is the device identity lifecycle.
type IdentityState string

const (
	// StateUnpaired means the device holds no key and shows the
	// pairing entry screen.
	StateUnpaired IdentityState = "UNPAIRED"
	// StatePairing means a pairing exchange is in flight.
	StatePairing IdentityState = "PAIRING"
	// StatePaired means the device holds a durable key.
	StatePaired IdentityState = "PAIRED"
)

// PairingError is a user-facing pairing failure. Reason is suitable
// for direct display on the pairing screen; the wrapped error carries
// the technical cause.
type PairingError struct {
	Reason string
	Err    error
}

func (e *PairingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("display: pairing failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("display: pairing failed: %s", e.Reason)
}

func (e *PairingError) Unwrap() error { return e.Err }

// Pairing owns the device identity lifecycle: UNPAIRED → PAIRING →
// PAIRED, and back to UNPAIRED on explicit unpair or server-side key
// revocation (401). Revocation never dead-ends — the device can
// re-pair immediately without a restart.
type Pairing struct {
	api    *panelapi.Client
	creds  *credstore.Store
	logger *slog.Logger

	mu       sync.Mutex
	state    IdentityState
	deviceID string

	// onChange observes identity transitions. Called outside the
	// lock; must not call back into Pairing methods that mutate.
	onChange func(IdentityState)
}

// NewPairing creates the pairing manager and loads the persisted
// identity: a stored key that passes the credential store's length
// check starts the device PAIRED, everything else UNPAIRED.
func NewPairing(ctx context.Context, api *panelapi.Client, creds *credstore.Store, logger *slog.Logger) (*Pairing, error) {
	if api == nil || creds == nil {
		return nil, fmt.Errorf("display: pairing requires an API client and a credential store")
	}
	if logger == nil {
		logger = slog.Default()
	}

	_, present, err := creds.DeviceKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("display: loading device identity: %w", err)
	}

	state := StateUnpaired
	if present {
		state = StatePaired
	}

	return &Pairing{
		api:    api,
		creds:  creds,
		logger: logger,
		state:  state,
	}, nil
}

// OnChange registers the identity observer. At most one; set before
// concurrent use.
func (p *Pairing) OnChange(observer func(IdentityState)) {
	p.onChange = observer
}

// State returns the current identity state.
func (p *Pairing) State() IdentityState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// DeviceKey returns the stored device key, if the device is paired
// with a valid one.
func (p *Pairing) DeviceKey(ctx context.Context) (string, bool, error) {
	return p.creds.DeviceKey(ctx)
}

// SubmitPairingCode exchanges a pairing code for a durable device key
// and persists it. The code is trimmed and uppercased first, matching
// how the issuing side prints it. A code that is not exactly 6
// characters is rejected locally; no request is made.
//
// On any failure the device remains UNPAIRED with nothing persisted,
// and the returned *PairingError carries a message for the pairing
// screen.
func (p *Pairing) SubmitPairingCode(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != pairingCodeLength {
		return &PairingError{Reason: fmt.Sprintf("o código deve ter %d caracteres", pairingCodeLength)}
	}

	p.mu.Lock()
	if p.state == StatePairing {
		p.mu.Unlock()
		return &PairingError{Reason: "um emparelhamento já está em andamento"}
	}
	if p.state == StatePaired {
		p.mu.Unlock()
		return &PairingError{Reason: "o dispositivo já está emparelhado"}
	}
	p.state = StatePairing
	p.mu.Unlock()
	p.notify(StatePairing)

	response, err := p.api.PairDevice(ctx, code)
	if err != nil {
		p.setState(StateUnpaired)
		var apiErr *panelapi.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return &PairingError{Reason: "código inválido ou expirado", Err: err}
		}
		return &PairingError{Reason: "falha de conexão com o servidor", Err: err}
	}

	if err := p.creds.SetDeviceKey(ctx, response.APIKey); err != nil {
		// The key never reached disk, so claiming PAIRED would leave
		// the device unable to survive a restart. Treat as not paired.
		p.setState(StateUnpaired)
		return &PairingError{Reason: "falha ao gravar a credencial do dispositivo", Err: err}
	}

	p.mu.Lock()
	p.state = StatePaired
	p.deviceID = response.DeviceID
	p.mu.Unlock()
	p.notify(StatePaired)

	p.logger.Info("device paired", "device_id", response.DeviceID)
	return nil
}

// Unpair revokes the key server-side (best effort) and wipes it
// locally (unconditionally). The local wipe happens even when the
// server call fails, so a device never stays stuck displaying data it
// is no longer authorized to see.
func (p *Pairing) Unpair(ctx context.Context) error {
	key, present, err := p.creds.DeviceKey(ctx)
	if err != nil {
		return fmt.Errorf("display: reading device key for unpair: %w", err)
	}

	if present {
		if err := p.api.Unpair(ctx, key); err != nil {
			p.logger.Warn("server-side unpair failed, wiping locally anyway", "error", err)
		}
	}

	if err := p.creds.ClearDeviceKey(ctx); err != nil {
		return fmt.Errorf("display: wiping device key: %w", err)
	}

	p.setState(StateUnpaired)
	p.logger.Info("device unpaired")
	return nil
}

// HandleUnauthorized is the single funnel for 401 responses from any
// component. The key is dead — the server revoked it — so it is wiped
// and the device returns to the pairing screen. Idempotent.
func (p *Pairing) HandleUnauthorized(ctx context.Context) error {
	if err := p.creds.ClearDeviceKey(ctx); err != nil {
		return fmt.Errorf("display: wiping revoked device key: %w", err)
	}

	p.mu.Lock()
	wasPaired := p.state == StatePaired
	p.state = StateUnpaired
	p.deviceID = ""
	p.mu.Unlock()

	if wasPaired {
		p.logger.Warn("device key revoked by server, re-pairing required")
		p.notify(StateUnpaired)
	}
	return nil
}

func (p *Pairing) setState(state IdentityState) {
	p.mu.Lock()
	changed := p.state != state
	p.state = state
	p.mu.Unlock()
	if changed {
		p.notify(state)
	}
}

func (p *Pairing) notify(state IdentityState) {
	if p.onChange != nil {
		p.onChange(state)
	}
}
