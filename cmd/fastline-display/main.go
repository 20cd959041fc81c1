// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

// Fastline-display is the display device agent. It pairs the device
// with a FastLine server, keeps a local copy of the device's queue
// snapshot synchronized over the server's event stream, and exposes
// the synchronized view to the on-device renderer over a loopback HTTP
// surface.
//
// On startup:
//  1. Loads configuration (FASTLINE_DISPLAY_CONFIG or defaults).
//  2. Opens the credential store in the state directory.
//  3. Starts the renderer-facing HTTP surface.
//  4. If paired, runs the sync engine; otherwise waits for a pairing
//     code to arrive via the HTTP surface (or the fastline-pair CLI).
//  5. On server-side key revocation, drops back to the pairing screen
//     without restarting.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/fastline-hq/display/credstore"
	"github.com/fastline-hq/display/display"
	"github.com/fastline-hq/display/lib/clock"
	"github.com/fastline-hq/display/lib/config"
	"github.com/fastline-hq/display/lib/version"
	"github.com/fastline-hq/display/panelapi"
	"github.com/fastline-hq/display/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		listen      string
		serverURL   string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "configuration file (overrides FASTLINE_DISPLAY_CONFIG)")
	pflag.StringVar(&listen, "listen", "", "renderer HTTP address (overrides config)")
	pflag.StringVar(&serverURL, "server", "", "FastLine server base URL (overrides config)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Println(version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	api, err := panelapi.NewClient(panelapi.ClientConfig{
		BaseURL:        cfg.Server.BaseURL,
		RequestTimeout: cfg.Server.RequestTimeout(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	creds, err := credstore.Open(filepath.Join(cfg.StateDir, "credentials.db"), logger)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	defer creds.Close()

	pairing, err := display.NewPairing(ctx, api, creds, logger)
	if err != nil {
		return err
	}

	agent := &agent{
		config:  cfg,
		api:     api,
		creds:   creds,
		pairing: pairing,
		clk:     clock.Real(),
		logger:  logger,
		paired:  make(chan struct{}, 1),
	}
	pairing.OnChange(func(state display.IdentityState) {
		logger.Info("identity state changed", "state", string(state))
		if state == display.StatePaired {
			select {
			case agent.paired <- struct{}{}:
			default:
			}
		}
	})

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("binding renderer surface: %w", err)
	}
	server := &http.Server{Handler: agent.router()}
	serverErr := make(chan error, 1)
	go func() {
		// A failed renderer surface takes the whole agent down:
		// cancelling the root context unblocks the supervisor loop
		// wherever it is waiting.
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			cancel()
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()
	logger.Info("renderer surface listening", "address", listener.Addr().String(), "version", version.Info())

	refresher, err := session.New(session.Config{
		API:    api,
		Store:  creds,
		Clock:  agent.clk,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	go refresher.Run(ctx)

	for {
		if err := agent.runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if ctx.Err() != nil {
			select {
			case err := <-serverErr:
				return fmt.Errorf("renderer surface: %w", err)
			default:
				return nil
			}
		}
	}
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// runOnce runs one engine lifetime: waits for pairing if needed, then
// syncs until the credential is revoked or the process stops. A
// revocation returns nil so the supervisor loop drops back to waiting
// for a new pairing.
func (a *agent) runOnce(ctx context.Context) error {
	if a.pairing.State() != display.StatePaired {
		a.logger.Info("waiting for pairing code")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.paired:
		}
	}

	engine, err := display.NewEngine(display.EngineConfig{
		API:                  a.api,
		Pairing:              a.pairing,
		Clock:                a.clk,
		Logger:               a.logger,
		WaitingLimit:         a.config.Panel.WaitingLimit,
		RecentLimit:          a.config.Panel.RecentLimit,
		ResyncInterval:       a.config.Panel.ResyncInterval(),
		StreamBackoffInitial: a.config.Server.StreamBackoffInitial(),
		StreamBackoffMax:     a.config.Server.StreamBackoffMax(),
		Cache:                display.NewViewCache(filepath.Join(a.config.StateDir, "view.cache")),
		OnAnnounce: func(announcement display.Announcement) {
			a.logger.Info("announcing ticket",
				"queue_id", announcement.QueueID,
				"display_code", announcement.DisplayCode,
				"seq", announcement.Seq,
			)
		},
	})
	if err != nil {
		return err
	}
	a.setEngine(engine)
	defer a.setEngine(nil)

	err = engine.Run(ctx)
	switch {
	case errors.Is(err, display.ErrDeviceRevoked):
		a.logger.Warn("device revoked, returning to pairing screen")
		return nil
	case errors.Is(err, display.ErrNotPaired):
		// Raced with an unpair between the wait and the engine start.
		return nil
	default:
		return err
	}
}
