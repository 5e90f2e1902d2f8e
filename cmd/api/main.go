/* Copyright (c) 2025 A. Karpov
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akarpov/planboard/internal/absence"
	"github.com/akarpov/planboard/internal/adapters/gitlab"
	"github.com/akarpov/planboard/internal/adapters/telegram"
	"github.com/akarpov/planboard/internal/config"
	httpx "github.com/akarpov/planboard/internal/http"
	"github.com/akarpov/planboard/internal/jobs"
	"github.com/akarpov/planboard/internal/logger"
	"github.com/akarpov/planboard/internal/planning"
	"github.com/akarpov/planboard/internal/repo"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence: postgres when a DSN is set, in-memory otherwise.
	var kv repo.KV
	if cfg.DBDSN != "" {
		db := repo.MustOpen(ctx, cfg, log)
		defer db.Close()
		store := repo.NewStore(db, log)
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("schema init failed")
		}
		kv = store
	} else {
		log.Warn().Msg("no DB_DSN set, using in-memory store")
		kv = repo.NewMemory()
	}

	abs := absence.NewStore(kv, cfg.ProjectKey, log)

	var src planning.IssueSource
	if cfg.GitLabToken != "" && (cfg.GitLabProjectID != "" || cfg.GitLabGroupID != "") {
		src = gitlab.NewClient(cfg, log)
	}
	var tg planning.Notifier
	if cfg.TelegramToken != "" {
		tg = telegram.NewClient(cfg, log)
	}

	svc := planning.New(cfg, log, kv, abs, src, tg)
	if err := svc.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("service init failed")
	}
	if src != nil {
		ctx2, cancel2 := context.WithTimeout(ctx, 2*time.Minute)
		if err := svc.RefreshSnapshot(ctx2); err != nil {
			log.Error().Err(err).Msg("initial snapshot refresh failed; continuing with persisted roster")
		}
		cancel2()
	}

	router := httpx.NewRouter(cfg, log, svc)

	cron := jobs.NewCron(cfg, log, svc, kv)
	cron.Start()
	defer cron.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- router.Run(cfg.HTTPAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutting down...")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	time.Sleep(500 * time.Millisecond)
}
