// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/docksideai/dockside/pkg/conversation"
	"github.com/docksideai/dockside/pkg/mention"
	"github.com/docksideai/dockside/pkg/session"
	"github.com/docksideai/dockside/pkg/transport"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChatCommand,
}

func init() {
	chatCmd.Flags().Bool("no-stream", false, "request complete answers instead of streaming")
	rootCmd.AddCommand(chatCmd)
}

// components bundles everything a chat session needs.
type components struct {
	store    *conversation.Store
	client   *transport.Client
	resolver *mention.Resolver
	engine   *session.Engine
}

func buildComponents(noStream bool) *components {
	var metrics *transport.Metrics
	if config.Metrics.Addr != "" {
		registry := prometheus.NewRegistry()
		metrics = transport.NewMetrics(registry)
		go serveMetrics(config.Metrics.Addr, registry)
	}

	var httpClient transport.HTTPClient
	if config.Backend.TimeoutSeconds > 0 {
		httpClient = &http.Client{Timeout: time.Duration(config.Backend.TimeoutSeconds) * time.Second}
	}

	client := transport.NewClient(transport.Config{
		BaseURL: config.Backend.BaseURL,
		HTTP:    httpClient,
		Breaker: transport.NewBreaker(transport.BreakerConfig{
			Threshold:    config.Breaker.Threshold,
			ResetTimeout: time.Duration(config.Breaker.ResetTimeoutSeconds) * time.Second,
		}),
		Retry: transport.RetryPolicy{
			MaxAttempts: config.Retry.MaxAttempts,
			BaseDelay:   time.Duration(config.Retry.BaseDelayMS) * time.Millisecond,
		},
		Logger:  logger,
		Metrics: metrics,
	})

	resolver := mention.NewResolver(mention.ResolverConfig{
		Lookup: mention.NewHTTPLookup(mention.LookupConfig{
			BaseURL:        config.Backend.SearchURL,
			OrganizationID: config.Identity.OrganizationID,
			Logger:         logger,
		}),
		MaxAttachments: config.Attachments.Max,
		Logger:         logger,
	})

	store := conversation.NewStore(config.Identity.OrganizationID, config.Identity.UserID)

	engine := session.NewEngine(session.Config{
		Store:     store,
		Client:    client,
		Resolver:  resolver,
		Logger:    logger,
		Metrics:   metrics,
		RevealMin: time.Duration(config.Reveal.MinMS) * time.Millisecond,
		RevealMax: time.Duration(config.Reveal.MaxMS) * time.Millisecond,
		NoStream:  noStream || config.NoStream,
	})

	return &components{store: store, client: client, resolver: resolver, engine: engine}
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", "addr", addr, "error", err.Error())
	}
}

func runChatCommand(cmd *cobra.Command, args []string) error {
	noStream, _ := cmd.Flags().GetBool("no-stream")
	parts := buildComponents(noStream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		parts.engine.Cancel()
		cancel()
	}()

	var err error
	if isatty.IsTerminal(os.Stdin.Fd()) && !plainFlag {
		model := newChatModel(parts)
		program := tea.NewProgram(model, tea.WithAltScreen())
		_, err = program.Run()
	} else {
		err = runPlainChat(ctx, parts)
	}

	stats := parts.engine.Stats()
	if stats.TurnsStarted > 0 {
		fmt.Printf("Session: %d turns, %d delivered, %d failed, %d cancelled, %d characters\n",
			stats.TurnsStarted, stats.Delivered, stats.Failed, stats.Cancelled, stats.CharsRevealed)
	}
	return err
}
