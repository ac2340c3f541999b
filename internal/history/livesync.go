package history

import (
    "context"
    "fmt"
    "time"

    "github.com/netavenir/redmine-backlogs/internal/domain"
    "github.com/netavenir/redmine-backlogs/internal/metrics"
    "github.com/rs/zerolog"
)

// LiveSyncer keeps the tail of an issue's stored history in step with the
// issue between full rebuilds. Call Sync after every save of the issue.
type LiveSyncer struct {
    store    Store
    statuses StatusRegistry
    trackers TrackerClassifier
    agg      Aggregator
    log      zerolog.Logger
    now      func() time.Time
}

func NewLiveSyncer(store Store, statuses StatusRegistry, trackers TrackerClassifier, agg Aggregator, log zerolog.Logger) *LiveSyncer {
    return &LiveSyncer{store: store, statuses: statuses, trackers: trackers, agg: agg, log: log, now: time.Now}
}

func (l *LiveSyncer) Sync(ctx context.Context, issue domain.Issue) (domain.Record, error) {
    rec, err := l.sync(ctx, issue)
    if err != nil {
        metrics.LiveSyncs.WithLabelValues("error").Inc()
        return domain.Record{}, err
    }
    metrics.LiveSyncs.WithLabelValues("ok").Inc()
    return rec, nil
}

func (l *LiveSyncer) sync(ctx context.Context, issue domain.Issue) (domain.Record, error) {
    stored, err := l.store.History(ctx, issue.ID)
    if err != nil { return domain.Record{}, fmt.Errorf("load history: %w", err) }
    rec := domain.Record{IssueID: issue.ID}
    if stored != nil { rec.History = stored.History }

    current, err := l.current(ctx, issue)
    if err != nil { return domain.Record{}, err }

    today := domain.DayOf(l.now())
    if len(rec.History) == 0 { rec.History = append(rec.History, dated(current, today.AddDate(0, 0, -1))) }
    // a last snapshot dated after today (clock skew, zone change) is overwritten in place
    if rec.History[len(rec.History)-1].Date.Before(today) { rec.History = append(rec.History, dated(current, today)) }

    last := &rec.History[len(rec.History)-1]
    *last = dated(current, last.Date)
    deriveEdgeHours(rec.History)

    if err := l.store.SaveHistory(ctx, rec); err != nil { return domain.Record{}, fmt.Errorf("save history: %w", err) }
    if last := rec.History[len(rec.History)-1]; last.Sprint != nil && last.Tracker == domain.TrackerStory {
        touch(ctx, l.agg, *last.Sprint, issue.ID)
    }
    return rec, nil
}

// current builds a complete snapshot of the issue's live values.
func (l *LiveSyncer) current(ctx context.Context, issue domain.Issue) (domain.Snapshot, error) {
    st, err := NewStatusClassifier(l.statuses, l.log).ClassifyID(ctx, issue.StatusID)
    if err != nil { return domain.Snapshot{}, err }
    s := domain.Snapshot{Origin: domain.OriginDefault}
    s.Set(domain.AttrEstimatedHours, issue.EstimatedHours)
    s.Set(domain.AttrStoryPoints, issue.StoryPoints)
    s.Set(domain.AttrRemainingHours, issue.RemainingHours)
    s.Set(domain.AttrTracker, l.trackers.ClassifyID(issue.TrackerID))
    s.Set(domain.AttrSprint, issue.SprintID)
    s.Set(domain.AttrStatusID, issue.StatusID)
    s.Set(domain.AttrStatusOpen, st.Open)
    s.Set(domain.AttrStatusSuccess, st.Success)
    s.Set(domain.AttrHours, firstSet(s.RemainingHours, s.EstimatedHours))
    return s, nil
}

func dated(s domain.Snapshot, day time.Time) domain.Snapshot {
    c := s.Clone()
    c.Date = day
    return c
}

func touch(ctx context.Context, agg Aggregator, sprintID, issueID int64) {
    if agg == nil { return }
    agg.Touch(ctx, sprintID, issueID)
    metrics.Touches.Inc()
}
