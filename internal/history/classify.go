package history

import (
    "context"
    "errors"
    "strconv"
    "strings"

    "github.com/netavenir/redmine-backlogs/internal/domain"
    "github.com/netavenir/redmine-backlogs/internal/metrics"
    "github.com/rs/zerolog"
)

var ErrNoDefaultStatus = errors.New("no default status configured")

type StatusInfo struct {
    ID      int64
    Open    bool
    Success bool
}

func statusInfo(s domain.Status) StatusInfo {
    success := false
    if s.IsClosed { success = s.DefaultDoneRatio == nil || *s.DefaultDoneRatio == 100 }
    return StatusInfo{ID: s.ID, Open: !s.IsClosed, Success: success}
}

// StatusClassifier memoizes status lookups for the duration of one operation.
// Codes that do not resolve are answered with the default status and cached
// under the code as given.
type StatusClassifier struct {
    reg   StatusRegistry
    log   zerolog.Logger
    cache map[string]StatusInfo
}

func NewStatusClassifier(reg StatusRegistry, log zerolog.Logger) *StatusClassifier {
    return &StatusClassifier{reg: reg, log: log, cache: map[string]StatusInfo{}}
}

func (c *StatusClassifier) Classify(ctx context.Context, raw *string) (StatusInfo, error) {
    key := ""
    if raw != nil { key = *raw }
    if info, ok := c.cache[key]; ok { return info, nil }

    var st *domain.Status
    if id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64); err == nil && id > 0 {
        if st, err = c.reg.Status(ctx, id); err != nil { return StatusInfo{}, err }
    }
    if st == nil {
        def, err := c.reg.DefaultStatus(ctx)
        if err != nil { return StatusInfo{}, err }
        if def == nil { return StatusInfo{}, ErrNoDefaultStatus }
        c.log.Warn().Str("status", key).Int64("default", def.ID).Msg("status not found, using default")
        metrics.StatusFallbacks.Inc()
        st = def
    }
    info := statusInfo(*st)
    c.cache[key] = info
    return info, nil
}

// ClassifyID classifies a status id held by a live issue.
func (c *StatusClassifier) ClassifyID(ctx context.Context, id int64) (StatusInfo, error) {
    raw := strconv.FormatInt(id, 10)
    return c.Classify(ctx, &raw)
}

// TrackerClassifier maps tracker ids onto story/task/none.
type TrackerClassifier struct {
    stories map[int64]struct{}
    task    int64
}

func NewTrackerClassifier(storyTrackers []int64, taskTracker int64) TrackerClassifier {
    m := make(map[int64]struct{}, len(storyTrackers))
    for _, id := range storyTrackers { m[id] = struct{}{} }
    return TrackerClassifier{stories: m, task: taskTracker}
}

func (c TrackerClassifier) Classify(raw *string) domain.Tracker {
    if raw == nil || strings.TrimSpace(*raw) == "" { return domain.TrackerNone }
    id, err := strconv.ParseInt(strings.TrimSpace(*raw), 10, 64)
    if err != nil { return domain.TrackerNone }
    return c.ClassifyID(&id)
}

func (c TrackerClassifier) ClassifyID(id *int64) domain.Tracker {
    if id == nil || *id == 0 { return domain.TrackerNone }
    if _, ok := c.stories[*id]; ok { return domain.TrackerStory }
    if *id == c.task { return domain.TrackerTask }
    return domain.TrackerNone
}
