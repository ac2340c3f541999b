package jobs

import (
    "context"
    "errors"
    "time"

    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/netavenir/redmine-backlogs/internal/services"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type service interface { RebuildAll(ctx context.Context) (int, error) }

type Cron struct {
    cfg config.Config
    log zerolog.Logger
    svc service
    c   *cron.Cron
}

// NewCron schedules the nightly full rebuild on cfg.RebuildCron, evaluated in
// the configured time zone.
func NewCron(cfg config.Config, log zerolog.Logger, svc service) (*Cron, error) {
    loc, err := time.LoadLocation(cfg.TZ)
    if err != nil { loc = time.Local }
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, c: c}
    if _, err := c.AddFunc(cfg.RebuildCron, cr.rebuild); err != nil { return nil, err }
    return cr, nil
}

func (cr *Cron) Start(){ cr.c.Start() }

// Stop waits for a running rebuild to return.
func (cr *Cron) Stop(){ <-cr.c.Stop().Done() }

func (cr *Cron) rebuild(){
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour); defer cancel()
    cr.log.Info().Msg("cron: nightly rebuild")
    n, err := cr.svc.RebuildAll(ctx)
    switch {
    case errors.Is(err, services.ErrRebuildRunning):
        cr.log.Info().Msg("cron: already running elsewhere")
    case err != nil:
        cr.log.Error().Err(err).Int("issues", n).Msg("cron: rebuild failed")
    default:
        cr.log.Info().Int("issues", n).Msg("cron: rebuild done")
    }
}
