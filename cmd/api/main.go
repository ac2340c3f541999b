/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/netavenir/redmine-backlogs/internal/adapters/jira"
    "github.com/netavenir/redmine-backlogs/internal/adapters/kafka"
    "github.com/netavenir/redmine-backlogs/internal/config"
    apihttp "github.com/netavenir/redmine-backlogs/internal/http"
    "github.com/netavenir/redmine-backlogs/internal/jobs"
    "github.com/netavenir/redmine-backlogs/internal/logger"
    "github.com/netavenir/redmine-backlogs/internal/repo"
    "github.com/netavenir/redmine-backlogs/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB
    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()
    if err := db.Migrate(ctx); err != nil { log.Fatal().Err(err).Msg("migrate failed") }
    repository := repo.NewRepository(db, log)

    // Burndown touches go to Postgres, and to Kafka when brokers are configured.
    agg, closeAgg := kafka.Fanout(cfg, log, repository)
    defer closeAgg()

    svc := services.New(cfg, log, repository, jira.NewClient(cfg, log), agg)

    // Cron
    cron, err := jobs.NewCron(cfg, log, svc)
    if err != nil { log.Fatal().Err(err).Str("schedule", cfg.RebuildCron).Msg("bad rebuild schedule") }
    cron.Start()
    defer cron.Stop()

    // HTTP server (Gin)
    srv := &http.Server{Addr: cfg.HTTPAddr, Handler: apihttp.NewRouter(cfg, log, svc)}
    errCh := make(chan error, 1)
    go func() { errCh <- srv.ListenAndServe() }()
    log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")

    // graceful shutdown
    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil && !errors.Is(err, http.ErrServerClosed) { log.Error().Err(err).Msg("http server error") }
    }

    sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer scancel()
    if err := srv.Shutdown(sctx); err != nil { log.Error().Err(err).Msg("http shutdown failed") }
}
