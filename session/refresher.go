// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastline-hq/display/credstore"
	"github.com/fastline-hq/display/lib/clock"
	"github.com/fastline-hq/display/panelapi"
)

const (
	// defaultInterval is how often the stored session is examined.
	defaultInterval = time.Minute
	// defaultThreshold is how close to expiry the access token may get
	// before it is exchanged. Five minutes leaves room for a couple of
	// check cycles plus the request itself.
	defaultThreshold = 5 * time.Minute
)

// Config carries the dependencies of a Refresher. API, Store and Clock
// are required.
type Config struct {
	API   *panelapi.Client
	Store *credstore.Store
	Clock clock.Clock

	// Logger receives refresher diagnostics. nil means slog.Default().
	Logger *slog.Logger

	// Interval between expiry checks. Zero means one minute.
	Interval time.Duration
	// Threshold is the remaining lifetime below which the access
	// token is refreshed. Zero means five minutes.
	Threshold time.Duration

	// OnLogout fires when a refresh attempt fails and the session is
	// terminated. Optional.
	OnLogout func()
}

// Refresher keeps a stored admin session's access token from expiring.
// It checks the stored expiry on a fixed interval and exchanges the
// refresh token when the access token is inside the threshold. A
// failed exchange means the refresh token itself is dead; the session
// is wiped rather than retried, and the operator logs in again.
type Refresher struct {
	api       *panelapi.Client
	store     *credstore.Store
	clk       clock.Clock
	logger    *slog.Logger
	interval  time.Duration
	threshold time.Duration
	onLogout  func()
}

// New creates a Refresher. It does nothing until Run is called.
func New(config Config) (*Refresher, error) {
	if config.API == nil || config.Store == nil || config.Clock == nil {
		return nil, fmt.Errorf("session: refresher requires API, Store and Clock")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := config.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	threshold := config.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Refresher{
		api:       config.API,
		store:     config.Store,
		clk:       config.Clock,
		logger:    logger,
		interval:  interval,
		threshold: threshold,
		onLogout:  config.OnLogout,
	}, nil
}

// Run checks immediately, then on every interval tick, until ctx is
// cancelled. Returns ctx.Err().
func (r *Refresher) Run(ctx context.Context) error {
	r.check(ctx)

	ticker := r.clk.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.check(ctx)
		}
	}
}

// check refreshes the stored session if its access token is inside the
// expiry threshold. No stored session is not an error; the operator
// simply is not logged in.
func (r *Refresher) check(ctx context.Context) {
	tokens, present, err := r.store.SessionTokens(ctx)
	if err != nil {
		r.logger.Error("reading stored session", "error", err)
		return
	}
	if !present {
		return
	}

	remaining := tokens.ExpiresAt.Sub(r.clk.Now())
	if remaining >= r.threshold {
		return
	}

	response, err := r.api.RefreshSession(ctx, tokens.RefreshToken)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// The refresh token is dead. Keeping the session around would
		// only produce a 401 on the next admin request.
		r.logger.Warn("session refresh failed, logging out", "error", err)
		if clearErr := r.store.ClearSessionTokens(ctx); clearErr != nil {
			r.logger.Error("clearing dead session", "error", clearErr)
		}
		if r.onLogout != nil {
			r.onLogout()
		}
		return
	}

	expiresAt := time.Unix(response.ExpiresAt, 0)
	if err := r.store.UpdateAccessToken(ctx, response.AccessToken, expiresAt); err != nil {
		r.logger.Error("persisting refreshed access token", "error", err)
		return
	}
	r.logger.Info("session refreshed", "expires_at", expiresAt, "remaining_was", remaining.Round(time.Second).String())
}
