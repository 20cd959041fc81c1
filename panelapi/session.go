// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package panelapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Login authenticates an admin user with email and password. Device
// display flows never call this; it exists for the authenticated admin
// views that share this HTTP client, whose session the token refresher
// keeps alive.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	requestBody := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	body, err := c.doRequest(ctx, http.MethodPost, "/v1/login", "", requestBody, nil)
	if err != nil {
		return nil, fmt.Errorf("panelapi: login: %w", err)
	}

	var response LoginResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("panelapi: parsing login response: %w", err)
	}
	return &response, nil
}

// RefreshSession exchanges a refresh token for a new access token.
// A failure here means the refresh token itself is invalid or expired;
// callers terminate the session rather than retry.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	requestBody := struct {
		RefreshToken string `json:"refreshToken"`
	}{RefreshToken: refreshToken}

	body, err := c.doRequest(ctx, http.MethodPost, "/v1/refresh", "", requestBody, nil)
	if err != nil {
		return nil, fmt.Errorf("panelapi: refreshing session: %w", err)
	}

	var response RefreshResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("panelapi: parsing refresh response: %w", err)
	}
	return &response, nil
}

// Health checks server liveness. Used by the pairing CLI to give a
// clear "server unreachable" diagnostic before submitting a code.
func (c *Client) Health(ctx context.Context) error {
	body, err := c.doRequest(ctx, http.MethodGet, "/health", "", nil, nil)
	if err != nil {
		return fmt.Errorf("panelapi: health check: %w", err)
	}

	var response struct {
		Status string `json:"status"`
		DB     bool   `json:"db"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("panelapi: parsing health response: %w", err)
	}
	if response.Status != "ok" {
		return fmt.Errorf("panelapi: server unhealthy: status=%q db=%t", response.Status, response.DB)
	}
	return nil
}
