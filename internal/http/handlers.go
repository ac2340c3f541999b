/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"
    "strconv"

    "github.com/gin-gonic/gin"
    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/netavenir/redmine-backlogs/internal/domain"
    "github.com/netavenir/redmine-backlogs/internal/history"
    "github.com/netavenir/redmine-backlogs/internal/repo"
    "github.com/netavenir/redmine-backlogs/internal/services"
    "github.com/rs/zerolog"
)

type service interface {
    RebuildAll(ctx context.Context) (int, error)
    RebuildIssue(ctx context.Context, id int64) (domain.Record, error)
    SyncIssue(ctx context.Context, id int64) (domain.Record, error)
    IngestIssue(ctx context.Context, key string) (domain.Record, error)
    Timeline(ctx context.Context, id int64) ([]domain.Snapshot, error)
    Burndown(ctx context.Context, sprintID int64) (*services.Burndown, error)
    GetLastRun(ctx context.Context) (*repo.LastRun, error)
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc}
}

func (h *Handlers) fail(c *gin.Context, err error) {
    code := http.StatusInternalServerError
    var perr *history.ParseError
    switch {
    case errors.Is(err, services.ErrNotFound):
        code = http.StatusNotFound
    case errors.Is(err, services.ErrRebuildRunning):
        code = http.StatusConflict
    case errors.As(err, &perr):
        code = http.StatusUnprocessableEntity
    }
    if code == http.StatusInternalServerError { h.log.Error().Err(err).Str("p", c.FullPath()).Msg("request failed") }
    c.JSON(code, gin.H{"error": err.Error()})
}

func idParam(c *gin.Context) (int64, bool) {
    id, err := strconv.ParseInt(c.Param("id"), 10, 64)
    if err != nil || id <= 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
        return 0, false
    }
    return id, true
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr, err := h.svc.GetLastRun(c.Request.Context())
    if err != nil { h.fail(c, err); return }
    if lr == nil { c.JSON(http.StatusOK, gin.H{}); return }
    c.JSON(http.StatusOK, lr)
}

// RebuildAll starts a full rebuild detached from the request.
func (h *Handlers) RebuildAll(c *gin.Context) {
    go func() {
        n, err := h.svc.RebuildAll(context.Background())
        if err != nil { h.log.Error().Err(err).Int("issues", n).Msg("admin rebuild failed"); return }
        h.log.Info().Int("issues", n).Msg("admin rebuild done")
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) RebuildIssue(c *gin.Context) {
    id, ok := idParam(c)
    if !ok { return }
    rec, err := h.svc.RebuildIssue(c.Request.Context(), id)
    if err != nil { h.fail(c, err); return }
    c.JSON(http.StatusOK, rec)
}

func (h *Handlers) SyncIssue(c *gin.Context) {
    id, ok := idParam(c)
    if !ok { return }
    rec, err := h.svc.SyncIssue(c.Request.Context(), id)
    if err != nil { h.fail(c, err); return }
    c.JSON(http.StatusOK, rec)
}

func (h *Handlers) IngestIssue(c *gin.Context) {
    key := c.Param("key")
    rec, err := h.svc.IngestIssue(c.Request.Context(), key)
    if err != nil { h.fail(c, err); return }
    c.JSON(http.StatusOK, rec)
}

func (h *Handlers) Timeline(c *gin.Context) {
    id, ok := idParam(c)
    if !ok { return }
    days, err := h.svc.Timeline(c.Request.Context(), id)
    if err != nil { h.fail(c, err); return }
    c.JSON(http.StatusOK, gin.H{"issue_id": id, "days": days})
}

func (h *Handlers) Burndown(c *gin.Context) {
    id, ok := idParam(c)
    if !ok { return }
    bd, err := h.svc.Burndown(c.Request.Context(), id)
    if err != nil { h.fail(c, err); return }
    c.JSON(http.StatusOK, bd)
}
