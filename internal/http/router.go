/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "github.com/gin-gonic/gin"
    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/rs/zerolog"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc service) *gin.Engine {
    if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(func(c *gin.Context){
        c.Next()
        log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
    })

    h := NewHandlers(cfg, log, svc)

    r.GET("/healthz", h.Healthz)
    r.GET("/metrics", gin.WrapH(promhttp.Handler()))
    r.GET("/admin/last-run", h.LastRun)
    r.POST("/admin/rebuild", h.RebuildAll)

    r.POST("/issues/:id/sync", h.SyncIssue)
    r.POST("/issues/:id/rebuild", h.RebuildIssue)
    r.GET("/issues/:id/timeline", h.Timeline)
    r.POST("/jira/issues/:key", h.IngestIssue)
    r.GET("/sprints/:id/burndown", h.Burndown)

    return r
}
