package history

import (
    "context"
    "fmt"
    "time"

    "github.com/netavenir/redmine-backlogs/internal/domain"
    "github.com/rs/zerolog"
)

// Builder reconstructs an issue's day-by-day attribute history from its
// change log.
type Builder struct {
    store    Store
    events   EventSource
    statuses StatusRegistry
    trackers TrackerClassifier
    agg      Aggregator
    log      zerolog.Logger
}

func NewBuilder(store Store, events EventSource, statuses StatusRegistry, trackers TrackerClassifier, agg Aggregator, log zerolog.Logger) *Builder {
    return &Builder{store: store, events: events, statuses: statuses, trackers: trackers, agg: agg, log: log}
}

// RebuildIssue replaces the stored history of issue and touches every sprint
// the issue was ever planned into when it has been a story. sc may be shared
// across a batch; nil gets a fresh cache.
func (b *Builder) RebuildIssue(ctx context.Context, issue domain.Issue, sc *StatusClassifier) error {
    if sc == nil { sc = NewStatusClassifier(b.statuses, b.log) }
    events, err := b.events.Events(ctx, issue.ID)
    if err != nil { return fmt.Errorf("load events: %w", err) }
    rec, err := b.Build(ctx, issue, events, sc)
    if err != nil { return err }
    if err := b.store.SaveHistory(ctx, rec); err != nil { return fmt.Errorf("save history: %w", err) }
    touchSprints(ctx, b.agg, rec)
    return nil
}

// Build folds the change log, followed by the issue's current state, into a
// completed snapshot sequence starting the day before the issue was created.
func (b *Builder) Build(ctx context.Context, issue domain.Issue, events []domain.Event, sc *StatusClassifier) (domain.Record, error) {
    hist := []domain.Snapshot{{Date: domain.DayOf(issue.CreatedOn).AddDate(0, 0, -1), Origin: domain.OriginRebuild}}

    entries := make([]domain.Event, 0, len(events)+6)
    entries = append(append(entries, events...), currentState(issue)...)
    for _, ev := range entries {
        if ev.Kind != domain.EventKindAttr { continue }
        changes, err := deriveChanges(ctx, ev, sc, b.trackers)
        if err != nil { return domain.Record{}, fmt.Errorf("issue %d: %w", issue.ID, err) }
        day := domain.DayOf(ev.At)
        for _, c := range changes { hist = apply(hist, day, c) }
    }

    cur, err := sc.ClassifyID(ctx, issue.StatusID)
    if err != nil { return domain.Record{}, err }
    tracker := b.trackers.ClassifyID(issue.TrackerID)
    for i := range hist {
        h := &hist[i]
        fill := func(a domain.Attr, v any) { if !h.Has(a) { h.Set(a, v) } }
        fill(domain.AttrEstimatedHours, issue.EstimatedHours)
        fill(domain.AttrStoryPoints, issue.StoryPoints)
        fill(domain.AttrRemainingHours, issue.RemainingHours)
        fill(domain.AttrTracker, tracker)
        fill(domain.AttrSprint, issue.SprintID)
        fill(domain.AttrStatusID, cur.ID)
        fill(domain.AttrStatusOpen, cur.Open)
        fill(domain.AttrStatusSuccess, cur.Success)
        h.Set(domain.AttrHours, firstSet(h.RemainingHours, h.EstimatedHours))
    }
    deriveEdgeHours(hist)
    return domain.Record{IssueID: issue.ID, History: hist}, nil
}

// apply records one change made on day. The baseline keeps the value the
// attribute had before its first change; every snapshot that has not seen
// the attribute yet takes the new value.
func apply(hist []domain.Snapshot, day time.Time, c Change) []domain.Snapshot {
    if !hist[0].Has(c.Attr) { hist[0].Set(c.Attr, c.Old) }
    if !hist[len(hist)-1].Date.Equal(day) {
        next := hist[len(hist)-1].Clone()
        next.Date = day
        hist = append(hist, next)
    }
    hist[len(hist)-1].Set(c.Attr, c.New)
    for i := range hist {
        if !hist[i].Has(c.Attr) { hist[i].Set(c.Attr, c.New) }
    }
    return hist
}

// deriveEdgeHours settles hours on the sequence ends: the last snapshot
// prefers remaining hours, the baseline prefers the original estimate.
func deriveEdgeHours(hist []domain.Snapshot) {
    if len(hist) == 0 { return }
    last := &hist[len(hist)-1]
    last.Set(domain.AttrHours, firstSet(last.RemainingHours, last.EstimatedHours))
    first := &hist[0]
    first.Set(domain.AttrHours, firstSet(first.EstimatedHours, first.RemainingHours))
}

func firstSet(vals ...*float64) *float64 {
    for _, v := range vals {
        if v != nil { return v }
    }
    return nil
}

// touchSprints signals every sprint a story-typed history was planned into.
func touchSprints(ctx context.Context, agg Aggregator, rec domain.Record) {
    story := false
    for _, h := range rec.History {
        if h.Tracker == domain.TrackerStory { story = true; break }
    }
    if !story { return }
    seen := map[int64]bool{}
    for _, h := range rec.History {
        if h.Sprint == nil || seen[*h.Sprint] { continue }
        seen[*h.Sprint] = true
        touch(ctx, agg, *h.Sprint, rec.IssueID)
    }
}
