// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/hashicorp/oidc-webapp/attempt"
	"github.com/hashicorp/oidc-webapp/config"
	"github.com/hashicorp/oidc-webapp/handler"
	"github.com/hashicorp/oidc-webapp/oidc"
	"github.com/hashicorp/oidc-webapp/session"
	"github.com/hashicorp/oidc-webapp/storage/sqlite"
	"github.com/hashicorp/oidc-webapp/storage/valkey"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.envFiles...)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	const op = "serve"
	logger := cfg.Logger("oidc-webapp")
	routes, cleanup, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer cleanup()
	return listenAndServe(ctx, logger.Named("http"), cfg.ListenAddr, routes)
}

// newApp wires the provider, stores, managers and handler described by cfg.
// Each component logs through its own named sub-logger.  The returned func
// releases the provider and stores.
func newApp(ctx context.Context, cfg *config.Config, logger hclog.Logger) (http.Handler, func(), error) {
	const op = "newApp"
	oc, err := cfg.OIDCConfig(logger)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := oidc.NewProvider(oc)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	attempts, sessions, closeStores, err := openStores(ctx, cfg, logger.Named("store"))
	if err != nil {
		p.Done()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	cleanup := func() {
		closeStores()
		p.Done()
	}

	attemptMgr, err := attempt.NewManager(attempts,
		attempt.WithTTL(cfg.LoginAttemptTTL),
		attempt.WithLogger(logger.Named("attempt")),
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	sessionOpts := []session.Option{
		session.WithMaxLifetime(cfg.SessionMaxLifetime),
		session.WithLogger(logger.Named("session")),
	}
	if cfg.EnableRefresh {
		sessionOpts = append(sessionOpts, session.WithRefresher(p))
	}
	sessionMgr, err := session.NewManager(sessions, sessionOpts...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	hashKey := cfg.HashKey()
	if hashKey == nil {
		logger.Warn("SESSION_HASH_KEY is not set, generated a key: sessions won't survive a restart")
		hashKey = session.GenerateHashKey()
	}
	cookies, err := session.NewCookies(cfg.SessionCookieName, hashKey,
		session.WithSecure(cfg.SessionCookieSecure),
		session.WithBlockKey(cfg.BlockKey()),
		session.WithMaxLifetime(cfg.SessionMaxLifetime),
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if !cfg.SessionCookieSecure {
		logger.Warn("session cookie is not marked Secure")
	}

	h, err := handler.NewHandler(p, attemptMgr, sessionMgr, cookies,
		handler.WithLogger(logger.Named("handler")),
		handler.WithFetchUserInfo(cfg.FetchUserInfo),
		handler.WithResourceServerURL(cfg.ResourceServerURL),
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return h.Routes(), cleanup, nil
}

// openStores returns the attempt and session stores named by cfg.Store and a
// func releasing them.
func openStores(ctx context.Context, cfg *config.Config, logger hclog.Logger) (attempt.Store, session.Store, func(), error) {
	const op = "openStores"
	switch cfg.Store {
	case config.StoreValkey:
		s, err := valkey.NewStore(valkey.Options{
			Addrs:     cfg.ValkeyAddrs,
			Username:  cfg.ValkeyUsername,
			Password:  cfg.ValkeyPassword,
			KeyPrefix: cfg.ValkeyKeyPrefix,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Info("using valkey store", "addrs", cfg.ValkeyAddrs)
		return s, s, s.Close, nil
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Info("using sqlite store", "path", cfg.SQLitePath)
		return s, s, func() {
			if err := s.Close(); err != nil {
				logger.Error("unable to close sqlite store", "error", err)
			}
		}, nil
	default:
		logger.Info("using in-memory store")
		return attempt.NewMemoryStore(), session.NewMemoryStore(), func() {}, nil
	}
}
