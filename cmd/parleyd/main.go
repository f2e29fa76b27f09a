// parleyd - the parley chat API server.
//
// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/respond"
	"github.com/parley-chat/parley/internal/server"
	"github.com/parley-chat/parley/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.parley/config.toml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("parleyd %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return err
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	log.Printf("STORAGE_READY | path=%s", dbPath)

	responder := respond.New(store, respond.NewPlaceholderGenerator()).
		WithFragmentSize(cfg.Server.FragmentRunes).
		WithPace(cfg.Server.Pace())

	srv := server.NewServer(cfg.Server.Port, store, responder)
	if cfg.Server.AuthToken != "" {
		srv = srv.WithAuth(&server.AuthConfig{
			Enabled:     true,
			BearerToken: cfg.Server.AuthToken,
		})
	}
	if cfg.Server.RateLimitRPS > 0 {
		srv = srv.WithRateLimiter(server.NewRateLimiter(
			cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("SIGNAL_RECEIVED | signal=%v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	log.Printf("SERVER_STOPPED | clean shutdown")
	return nil
}
