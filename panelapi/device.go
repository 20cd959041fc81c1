// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package panelapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// PairDevice exchanges a short-lived pairing code for a durable device
// key. No credential accompanies the call; the code is the credential.
//
// The caller validates the code's shape before calling — the server's
// only answers to a malformed code are the same 4xx it gives an
// expired one.
func (c *Client) PairDevice(ctx context.Context, pairingCode string) (*PairDeviceResponse, error) {
	requestBody := struct {
		PairingCode string `json:"pairingCode"`
	}{PairingCode: pairingCode}

	body, err := c.doRequest(ctx, http.MethodPost, "/v1/devices/pair", "", requestBody, nil)
	if err != nil {
		return nil, fmt.Errorf("panelapi: pairing device: %w", err)
	}

	var response PairDeviceResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("panelapi: parsing pair response: %w", err)
	}
	if response.APIKey == "" {
		return nil, fmt.Errorf("panelapi: pair response carried no API key")
	}

	c.logger.Info("device paired", "device_id", response.DeviceID)
	return &response, nil
}

// Unpair asks the server to revoke the device key. Callers treat this
// as best-effort: local credential wipe proceeds whether or not the
// server acknowledged the revocation.
func (c *Client) Unpair(ctx context.Context, deviceKey string) error {
	path := "/v1/device/" + url.PathEscape(deviceKey) + "/unpair"
	if _, err := c.doRequest(ctx, http.MethodPost, path, "", nil, nil); err != nil {
		return fmt.Errorf("panelapi: unpairing device: %w", err)
	}
	return nil
}

// Snapshot fetches the full, server-consistent view of every queue
// assigned to the device. Stateless and idempotent; safe to call at
// any time. The device key authenticates via the URL path, not a
// bearer header.
func (c *Client) Snapshot(ctx context.Context, deviceKey string, waitingLimit, recentLimit int) (*DeviceSnapshot, error) {
	path := "/v1/device/" + url.PathEscape(deviceKey) + "/snapshot"
	query := url.Values{
		"waitingLimit": []string{strconv.Itoa(waitingLimit)},
		"recentLimit":  []string{strconv.Itoa(recentLimit)},
	}

	body, err := c.doRequest(ctx, http.MethodGet, path, "", nil, query)
	if err != nil {
		return nil, fmt.Errorf("panelapi: fetching snapshot: %w", err)
	}

	var snapshot DeviceSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("panelapi: parsing snapshot: %w", err)
	}
	return &snapshot, nil
}
