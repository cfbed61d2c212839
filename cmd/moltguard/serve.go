// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thomasdehartcpa/moltguard/pkg/logging"
	"github.com/thomasdehartcpa/moltguard/services/gateway/config"
	"github.com/thomasdehartcpa/moltguard/services/gateway/detect"
	"github.com/thomasdehartcpa/moltguard/services/gateway/observability"
	"github.com/thomasdehartcpa/moltguard/services/gateway/proxy"
	"github.com/thomasdehartcpa/moltguard/services/gateway/sanitize"
	"github.com/thomasdehartcpa/moltguard/services/gateway/toolguard"
	"github.com/thomasdehartcpa/moltguard/services/gateway/vault"
)

// runServe starts the gateway: config, vault, proxy pipeline, and the
// graceful shutdown path that drains requests before flushing the vault.
func runServe(cmd *cobra.Command, args []string) error {
	path := configPath
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	level := logging.LevelInfo
	if logDebug {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		Service: "gateway",
		JSON:    logJSON || !isatty.IsTerminal(os.Stderr.Fd()),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("startup failed", "error", err)
		return err
	}

	tokenVault, err := vault.Open(vault.Options{})
	if err != nil {
		slog.Error("could not open the token vault", "error", err)
		return err
	}
	defer tokenVault.Close()

	policy := toolguard.DefaultPolicy()
	if policyPath, perr := toolguard.DefaultPolicyPath(); perr == nil {
		policy, perr = toolguard.LoadPolicy(policyPath)
		if perr != nil {
			slog.Warn("toolguard policy failed to load, using defaults", "error", perr)
		}
	}

	detector := detect.New(nil)
	sanitizer := sanitize.New(detector)
	guard := toolguard.New(policy, sanitizer)
	metrics := observability.NewGatewayMetrics(prometheus.DefaultRegisterer)
	server := proxy.NewServer(cfg, tokenVault, sanitizer, guard, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing, shutdownTracing := initTracer(ctx)
	if shutdownTracing != nil {
		defer shutdownTracing(context.Background())
	}

	if err := config.Watch(ctx, path, server.Reload); err != nil {
		slog.Warn("config hot reload disabled", "error", err)
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler: server.Routes(tracing),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("gateway listening", "addr", httpServer.Addr, "backends", len(cfg.Backends))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("shutting down, draining requests")
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(drainCtx); err != nil {
			slog.Warn("drain incomplete", "error", err)
		}
		tokenVault.DestroySession(server.GatewaySession())
		return nil
	})

	if err := group.Wait(); err != nil {
		slog.Error("gateway failed", "error", err)
		return err
	}
	slog.Info("gateway stopped")
	return nil
}
