package jobs

import (
    "context"
    "testing"

    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/netavenir/redmine-backlogs/internal/services"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type countingService struct {
    calls int
    err   error
}

func (s *countingService) RebuildAll(context.Context) (int, error) {
    s.calls++
    return 0, s.err
}

func TestNewCron_RejectsBadSpec(t *testing.T) {
    _, err := NewCron(config.Config{TZ: "UTC", RebuildCron: "every night"}, zerolog.Nop(), &countingService{})
    assert.Error(t, err)
}

func TestCron_RebuildRuns(t *testing.T) {
    svc := &countingService{}
    cr, err := NewCron(config.Config{TZ: "UTC", RebuildCron: "0 3 * * *"}, zerolog.Nop(), svc)
    require.NoError(t, err)
    require.Len(t, cr.c.Entries(), 1)

    cr.rebuild()
    svc.err = services.ErrRebuildRunning
    cr.rebuild()
    assert.Equal(t, 2, svc.calls)
}
