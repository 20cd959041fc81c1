// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

// Fastline-pair pairs (or unpairs) a display device from the command
// line, for provisioning devices whose renderer has no input attached.
// It operates on the same credential store as the fastline-display
// agent; stop the agent or let it pick the new identity up via its
// supervisor loop.
//
//	fastline-pair --server https://api.fastline.app ABC123
//	fastline-pair --unpair
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/fastline-hq/display/credstore"
	"github.com/fastline-hq/display/display"
	"github.com/fastline-hq/display/lib/config"
	"github.com/fastline-hq/display/lib/version"
	"github.com/fastline-hq/display/panelapi"
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
		serverURL   string
		stateDir    string
		unpair      bool
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "configuration file (overrides FASTLINE_DISPLAY_CONFIG)")
	pflag.StringVar(&serverURL, "server", "", "FastLine server base URL (overrides config)")
	pflag.StringVar(&stateDir, "state-dir", "", "state directory shared with fastline-display (overrides config)")
	pflag.BoolVar(&unpair, "unpair", false, "revoke and forget the stored device credential")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Println(version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if !unpair && pflag.NArg() != 1 {
		return errors.New("usage: fastline-pair [flags] CODE")
	}

	// Quiet structured logs on stderr; the human-facing result goes
	// to stdout.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

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

	if unpair {
		if pairing.State() != display.StatePaired {
			fmt.Println("device is not paired")
			return nil
		}
		if err := pairing.Unpair(ctx); err != nil {
			return err
		}
		fmt.Println("device unpaired")
		return nil
	}

	// A clear "server unreachable" beats a pairing failure that could
	// also mean a bad code.
	if err := api.Health(ctx); err != nil {
		return fmt.Errorf("server %s is not reachable: %w", cfg.Server.BaseURL, err)
	}

	if err := pairing.SubmitPairingCode(ctx, pflag.Arg(0)); err != nil {
		var pairErr *display.PairingError
		if errors.As(err, &pairErr) {
			return fmt.Errorf("%s", pairErr.Reason)
		}
		return err
	}
	fmt.Println("device paired")
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
