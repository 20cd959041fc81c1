// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fastline-hq/display/lib/clock"
	"github.com/fastline-hq/display/panelapi"
)

// ErrNotPaired is returned by Engine.Run when the device has no stored
// credential. The caller pairs first, then starts the engine.
var ErrNotPaired = errors.New("device is not paired")

// ErrDeviceRevoked is returned by Engine.Run when the server rejects
// the device key. The stored credential has already been wiped by the
// time Run returns; the caller drops back to the pairing flow.
var ErrDeviceRevoked = errors.New("device credential revoked by server")

// SyncStatus describes the engine's connection to the server as shown
// to the operator.
type SyncStatus string

const (
	// StatusConnecting is the initial state before the first
	// successful snapshot.
	StatusConnecting SyncStatus = "CONNECTING"
	// StatusConnected means the event stream is up and the view is
	// current.
	StatusConnected SyncStatus = "CONNECTED"
	// StatusReconnecting means the stream dropped or a snapshot
	// failed; the last accepted view stays on screen while the
	// engine retries.
	StatusReconnecting SyncStatus = "RECONNECTING"
)

// EngineConfig carries the dependencies of an Engine. API, Pairing and
// Clock are required.
type EngineConfig struct {
	API     *panelapi.Client
	Pairing *Pairing
	Clock   clock.Clock

	// Logger receives engine diagnostics. nil means slog.Default().
	Logger *slog.Logger

	// WaitingLimit and RecentLimit bound the per-queue lists
	// requested from the server. Zero means the server default.
	WaitingLimit int
	RecentLimit  int

	// ResyncInterval is the period of the safety-net full refresh
	// that runs even when the stream is healthy. Zero disables it.
	ResyncInterval time.Duration

	// StreamBackoffInitial and StreamBackoffMax shape the event
	// stream's reconnect delays. Zero means the client defaults.
	StreamBackoffInitial time.Duration
	StreamBackoffMax     time.Duration

	// Cache persists the last accepted view across restarts.
	// Optional.
	Cache *ViewCache

	// OnAnnounce fires for every new announcement. Optional.
	OnAnnounce func(Announcement)

	// OnViewChange fires after every accepted view update. Optional.
	OnViewChange func()
}

// Engine keeps the device view synchronized with the server: it runs
// the event stream, refetches the snapshot whenever the stream hints
// that something changed, applies updates through the generation
// guard, and routes newly current tickets to the announcer.
//
// Events carry no payload the engine trusts; every event is only a
// trigger to refetch the authoritative snapshot. Multiple triggers
// arriving while a fetch is in flight coalesce into a single refetch.
type Engine struct {
	api       *panelapi.Client
	pairing   *Pairing
	clk       clock.Clock
	logger    *slog.Logger
	config    EngineConfig
	view      *View
	announcer *Announcer

	// resyncCh coalesces refetch triggers. Capacity one: a trigger
	// arriving while one is pending is already covered by it.
	resyncCh chan struct{}

	mu        sync.Mutex
	status    SyncStatus
	lastError string
	streamUp  bool
}

// NewEngine creates an Engine. It does not touch the network; call Run.
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.API == nil {
		return nil, errors.New("engine config: API is required")
	}
	if config.Pairing == nil {
		return nil, errors.New("engine config: Pairing is required")
	}
	if config.Clock == nil {
		return nil, errors.New("engine config: Clock is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	engine := &Engine{
		api:       config.API,
		pairing:   config.Pairing,
		clk:       config.Clock,
		logger:    logger,
		config:    config,
		view:      NewView(),
		announcer: NewAnnouncer(config.OnAnnounce),
		resyncCh:  make(chan struct{}, 1),
		status:    StatusConnecting,
	}
	return engine, nil
}

// Status returns the current sync status and, when reconnecting, a
// short description of the last error.
func (e *Engine) Status() (SyncStatus, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.lastError
}

// View returns a copy of the current device view and whether any
// snapshot (live or cached) has been installed.
func (e *Engine) View() (DeviceView, bool) {
	return e.view.Current()
}

// Announcements returns retained announcements with sequence numbers
// greater than seq, oldest first.
func (e *Engine) Announcements(seq uint64) []Announcement {
	return e.announcer.Since(seq)
}

// Resync requests a snapshot refetch. Safe from any goroutine; calls
// made while a refetch is already pending coalesce.
func (e *Engine) Resync() {
	select {
	case e.resyncCh <- struct{}{}:
	default:
	}
}

// Run drives the engine until ctx is cancelled or the device
// credential is revoked. It returns ErrNotPaired without touching the
// network if no credential is stored, ErrDeviceRevoked after wiping a
// rejected credential, and ctx.Err() on cancellation.
func (e *Engine) Run(ctx context.Context) error {
	deviceKey, ok, err := e.pairing.DeviceKey(ctx)
	if err != nil {
		return fmt.Errorf("loading device credential: %w", err)
	}
	if !ok {
		return ErrNotPaired
	}

	e.restoreCache()

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		e.runStream(streamCtx, deviceKey)
	}()
	defer func() {
		cancelStream()
		<-streamDone
	}()

	var resyncTick <-chan time.Time
	if e.config.ResyncInterval > 0 {
		ticker := e.clk.NewTicker(e.config.ResyncInterval)
		defer ticker.Stop()
		resyncTick = ticker.C
	}

	// Initial fetch before any event arrives.
	e.Resync()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resyncTick:
			e.Resync()
		case <-e.resyncCh:
			if err := e.resync(ctx, deviceKey); err != nil {
				if errors.Is(err, ErrDeviceRevoked) {
					return err
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.setStatus(StatusReconnecting, err.Error())
				e.logger.Warn("snapshot fetch failed", "error", err)
			}
		}
	}
}

// restoreCache seeds the view and announcer from the persisted cache
// so the previous state is on screen, silently, before the first live
// snapshot.
func (e *Engine) restoreCache() {
	if e.config.Cache == nil {
		return
	}
	cached, ok, err := e.config.Cache.Load()
	if err != nil {
		e.logger.Warn("view cache unreadable, starting empty", "error", err)
		return
	}
	if !ok {
		return
	}
	e.view.Seed(cached)
	e.announcer.Prime(cached)
	e.logger.Info("restored cached view",
		"device_id", cached.DeviceID,
		"queues", len(cached.Queues),
		"cached_at", cached.UpdatedAt)
	if e.config.OnViewChange != nil {
		e.config.OnViewChange()
	}
}

// runStream owns the event stream for the life of Run. State changes
// and events both funnel into Resync: the snapshot is the only source
// of truth.
func (e *Engine) runStream(ctx context.Context, deviceKey string) {
	stream, err := e.api.NewEventStream(panelapi.StreamConfig{
		DeviceKey:      deviceKey,
		InitialBackoff: e.config.StreamBackoffInitial,
		MaxBackoff:     e.config.StreamBackoffMax,
		Clock:          e.clk,
		Logger:         e.logger,
		OnState: func(state panelapi.StreamState) {
			switch state {
			case panelapi.StreamConnected:
				// Anything changed while disconnected is
				// invisible to the stream; refetch.
				e.setStreamState(true, StatusConnected, "")
				e.Resync()
			case panelapi.StreamDisconnected:
				// Refetch here too: while the stream is down the
				// snapshot endpoint may still be healthy, and each
				// reconnect attempt is a chance to narrow the
				// staleness window.
				e.setStreamState(false, StatusReconnecting, "event stream disconnected")
				e.Resync()
			}
		},
		OnEvent: func(event panelapi.StreamEvent) {
			if event.Malformed {
				e.logger.Warn("malformed stream event", "type", event.Type)
			}
			e.Resync()
		},
	})
	if err != nil {
		e.logger.Error("event stream setup failed", "error", err)
		return
	}
	if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Warn("event stream stopped", "error", err)
	}
}

// resync fetches the authoritative snapshot and applies it. A 401
// means the server revoked the credential: the pairing state is wiped
// and ErrDeviceRevoked returned so Run terminates.
func (e *Engine) resync(ctx context.Context, deviceKey string) error {
	generation := e.view.BeginFetch()
	snapshot, err := e.api.Snapshot(ctx, deviceKey, e.config.WaitingLimit, e.config.RecentLimit)
	if err != nil {
		if panelapi.IsUnauthorized(err) {
			e.logger.Warn("device credential rejected by server")
			if wipeErr := e.pairing.HandleUnauthorized(ctx); wipeErr != nil {
				e.logger.Error("wiping revoked credential failed", "error", wipeErr)
			}
			return ErrDeviceRevoked
		}
		return fmt.Errorf("fetching snapshot: %w", err)
	}

	now := e.clk.Now()
	if !e.view.Apply(generation, snapshot, now) {
		// A newer fetch already landed.
		return nil
	}
	current, _ := e.view.Current()
	e.announcer.Observe(current, now)
	e.noteSnapshotApplied()
	if e.config.OnViewChange != nil {
		e.config.OnViewChange()
	}

	if e.config.Cache != nil {
		if err := e.config.Cache.Store(current); err != nil {
			e.logger.Warn("persisting view cache failed", "error", err)
		}
	}
	return nil
}

func (e *Engine) setStatus(status SyncStatus, lastError string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = status
	e.lastError = lastError
}

func (e *Engine) setStreamState(up bool, status SyncStatus, lastError string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streamUp = up
	e.status = status
	e.lastError = lastError
}

// noteSnapshotApplied records a successful fetch. A good snapshot
// proves the REST side is healthy, not that the stream is up, so it
// clears the last error but only the stream callback promotes the
// status to CONNECTED.
func (e *Engine) noteSnapshotApplied() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastError = ""
	if e.streamUp {
		e.status = StatusConnected
	}
}
