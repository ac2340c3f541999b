package history

import (
    "context"
    "fmt"
    "sort"
    "time"

    "github.com/google/uuid"
    "github.com/netavenir/redmine-backlogs/internal/domain"
    "github.com/netavenir/redmine-backlogs/internal/metrics"
    "github.com/rs/zerolog"
)

// Rebuilder drops every stored history and rebuilds them all, one issue at a
// time. A failure aborts the batch; rerunning starts from scratch.
type Rebuilder struct {
    issues   IssueSource
    store    Store
    statuses StatusRegistry
    agg      Aggregator
    builder  *Builder
    log      zerolog.Logger
}

func NewRebuilder(issues IssueSource, store Store, statuses StatusRegistry, agg Aggregator, builder *Builder, log zerolog.Logger) *Rebuilder {
    return &Rebuilder{issues: issues, store: store, statuses: statuses, agg: agg, builder: builder, log: log}
}

// RebuildAll returns the number of issues rebuilt, which on failure is the
// number rebuilt before the failing one.
func (r *Rebuilder) RebuildAll(ctx context.Context) (int, error) {
    log := r.log.With().Str("run", uuid.NewString()).Logger()
    started := time.Now()

    if err := r.store.DeleteAllHistories(ctx); err != nil { return 0, fmt.Errorf("delete histories: %w", err) }
    if r.agg != nil {
        if err := r.agg.Reset(ctx); err != nil { return 0, fmt.Errorf("reset aggregator: %w", err) }
    }
    issues, err := r.issues.Issues(ctx)
    if err != nil { return 0, fmt.Errorf("list issues: %w", err) }
    SortForRebuild(issues)

    sc := NewStatusClassifier(r.statuses, log)
    log.Info().Int("total", len(issues)).Msg("rebuild: start")
    for n, issue := range issues {
        log.Info().Int64("issue", issue.ID).Int("n", n+1).Int("total", len(issues)).Msg("rebuild: issue")
        if err := r.builder.RebuildIssue(ctx, issue, sc); err != nil {
            metrics.RebuildIssues.WithLabelValues("error").Inc()
            return n, fmt.Errorf("rebuild issue %d: %w", issue.ID, err)
        }
        metrics.RebuildIssues.WithLabelValues("ok").Inc()
    }
    metrics.RebuildDuration.Observe(time.Since(started).Seconds())
    log.Info().Dur("took", time.Since(started)).Msg("rebuild: done")
    return len(issues), nil
}

// SortForRebuild orders issues by hierarchy root ascending, deepest first
// within a root.
func SortForRebuild(issues []domain.Issue) {
    sort.SliceStable(issues, func(i, j int) bool {
        a, b := issues[i], issues[j]
        if a.RootID != b.RootID { return a.RootID < b.RootID }
        if a.Depth != b.Depth { return a.Depth > b.Depth }
        return a.ID < b.ID
    })
}
