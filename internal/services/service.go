/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "fmt"
    "slices"

    "github.com/netavenir/redmine-backlogs/internal/adapters/jira"
    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/netavenir/redmine-backlogs/internal/domain"
    "github.com/netavenir/redmine-backlogs/internal/history"
    "github.com/netavenir/redmine-backlogs/internal/repo"
    "github.com/rs/zerolog"
    "golang.org/x/sync/errgroup"
)

var (
    ErrNotFound       = errors.New("not found")
    ErrRebuildRunning = errors.New("rebuild already running")
)

const rebuildLockKey int64 = 424242

type JiraClient interface {
    IssueWithChangelog(ctx context.Context, key string) (*jira.Issue, error)
    SearchKeys(ctx context.Context, jql string) ([]string, error)
    Statuses(ctx context.Context) ([]jira.Status, error)
}

// Repository is the storage the service runs on; repo.Repository implements it.
type Repository interface {
    history.Store
    history.EventSource
    history.IssueSource
    history.StatusRegistry

    UpsertIssue(ctx context.Context, i domain.Issue) (int64, error)
    IssueByID(ctx context.Context, id int64) (*domain.Issue, error)
    IssueByKey(ctx context.Context, key string) (*domain.Issue, error)
    IssuesByID(ctx context.Context, ids []int64) ([]domain.Issue, error)
    BulkInsertEvents(ctx context.Context, ev []domain.Event) error
    UpsertStatuses(ctx context.Context, statuses []domain.Status) error
    UpsertSprint(ctx context.Context, s domain.Sprint) error
    Sprint(ctx context.Context, id int64) (*domain.Sprint, error)
    TouchedIssues(ctx context.Context, sprintID int64) ([]int64, error)

    WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) (bool, error)
    StartJobRun(ctx context.Context, kind string) (int64, error)
    FinishJobRun(ctx context.Context, id int64, issues int, success bool, errStr string) error
    GetLastRun(ctx context.Context) (*repo.LastRun, error)
}

type Service struct {
    cfg    config.Config
    log    zerolog.Logger
    repo   Repository
    jira   JiraClient
    mapper jira.Mapper

    builder   *history.Builder
    syncer    *history.LiveSyncer
    rebuilder *history.Rebuilder
}

// New wires the history engine onto r. agg receives burndown touches; pass
// the repository itself, or a history.Aggregators fan-out.
func New(cfg config.Config, log zerolog.Logger, r Repository, jc JiraClient, agg history.Aggregator) *Service {
    trackers := history.NewTrackerClassifier(cfg.StoryTrackers, cfg.TaskTracker)
    builder := history.NewBuilder(r, r, r, trackers, agg, log)
    return &Service{
        cfg:       cfg,
        log:       log,
        repo:      r,
        jira:      jc,
        mapper:    jira.Mapper{StoryPointsField: cfg.JiraStoryPointsField, SprintField: cfg.JiraSprintField},
        builder:   builder,
        syncer:    history.NewLiveSyncer(r, r, trackers, agg, log),
        rebuilder: history.NewRebuilder(r, r, r, agg, builder, log),
    }
}

func (s *Service) issue(ctx context.Context, id int64) (domain.Issue, error) {
    is, err := s.repo.IssueByID(ctx, id)
    if err != nil { return domain.Issue{}, err }
    if is == nil { return domain.Issue{}, fmt.Errorf("issue %d: %w", id, ErrNotFound) }
    return *is, nil
}

// SaveIssue is the save hook: it brings the issue's stored history up to
// date with its current values. A malformed stored history is rebuilt first.
func (s *Service) SaveIssue(ctx context.Context, issue domain.Issue) (domain.Record, error) {
    if _, err := s.loadHistory(ctx, issue); err != nil { return domain.Record{}, err }
    return s.syncer.Sync(ctx, issue)
}

func (s *Service) SyncIssue(ctx context.Context, id int64) (domain.Record, error) {
    issue, err := s.issue(ctx, id)
    if err != nil { return domain.Record{}, err }
    return s.SaveIssue(ctx, issue)
}

// RebuildIssue replaces one issue's history with a fresh build from its
// change log.
func (s *Service) RebuildIssue(ctx context.Context, id int64) (domain.Record, error) {
    issue, err := s.issue(ctx, id)
    if err != nil { return domain.Record{}, err }
    return s.rebuildIssue(ctx, issue)
}

func (s *Service) rebuildIssue(ctx context.Context, issue domain.Issue) (domain.Record, error) {
    if err := s.builder.RebuildIssue(ctx, issue, nil); err != nil { return domain.Record{}, fmt.Errorf("rebuild issue %d: %w", issue.ID, err) }
    rec, err := s.repo.History(ctx, issue.ID)
    if err != nil { return domain.Record{}, err }
    if rec == nil { return domain.Record{}, fmt.Errorf("issue %d: history missing after rebuild", issue.ID) }
    return *rec, nil
}

// loadHistory returns the stored history of issue. A missing history is
// returned as nil; a malformed one is rebuilt and the rebuilt one returned.
func (s *Service) loadHistory(ctx context.Context, issue domain.Issue) (*domain.Record, error) {
    rec, err := s.repo.History(ctx, issue.ID)
    if err != nil { return nil, err }
    if rec == nil { return nil, nil }
    if err := rec.Validate(); err != nil {
        if !errors.Is(err, domain.ErrMalformedHistory) { return nil, err }
        s.log.Error().Err(err).Int64("issue", issue.ID).Msg("malformed history, rebuilding issue")
        fresh, err := s.rebuildIssue(ctx, issue)
        if err != nil { return nil, err }
        return &fresh, nil
    }
    return rec, nil
}

// RebuildAll rebuilds every history under a cluster-wide lock and records the
// run in job_runs.
func (s *Service) RebuildAll(ctx context.Context) (int, error) {
    var n int
    ok, err := s.repo.WithAdvisoryLock(ctx, rebuildLockKey, func(ctx context.Context) error {
        runID, err := s.repo.StartJobRun(ctx, "rebuild_all")
        if err != nil { s.log.Error().Err(err).Msg("start job run failed") }
        var runErr error
        n, runErr = s.rebuilder.RebuildAll(ctx)
        if runID != 0 {
            errStr := ""
            if runErr != nil { errStr = runErr.Error() }
            if err := s.repo.FinishJobRun(context.WithoutCancel(ctx), runID, n, runErr == nil, errStr); err != nil {
                s.log.Error().Err(err).Msg("finish job run failed")
            }
        }
        return runErr
    })
    if err != nil { return n, err }
    if !ok { return 0, ErrRebuildRunning }
    return n, nil
}

// Timeline expands the issue's history to one snapshot per day. An issue
// without a history gets one built.
func (s *Service) Timeline(ctx context.Context, id int64) ([]domain.Snapshot, error) {
    issue, err := s.issue(ctx, id)
    if err != nil { return nil, err }
    rec, err := s.loadHistory(ctx, issue)
    if err != nil { return nil, err }
    if rec == nil {
        fresh, err := s.rebuildIssue(ctx, issue)
        if err != nil { return nil, err }
        rec = &fresh
    }
    return slices.Collect(history.Expand(rec.History)), nil
}

type BurndownRow struct {
    IssueID int64             `json:"issue_id"`
    Key     string            `json:"key"`
    Days    []domain.Snapshot `json:"days"`
}

type Burndown struct {
    Sprint domain.Sprint `json:"sprint"`
    Rows   []BurndownRow `json:"rows"`
}

// Burndown projects the history of every issue touched for the sprint onto
// the sprint's days. Rows are per issue; nothing is summed.
func (s *Service) Burndown(ctx context.Context, sprintID int64) (*Burndown, error) {
    sp, err := s.repo.Sprint(ctx, sprintID)
    if err != nil { return nil, err }
    if sp == nil { return nil, fmt.Errorf("sprint %d: %w", sprintID, ErrNotFound) }
    ids, err := s.repo.TouchedIssues(ctx, sprintID)
    if err != nil { return nil, err }
    issues, err := s.repo.IssuesByID(ctx, ids)
    if err != nil { return nil, err }

    out := &Burndown{Sprint: *sp, Rows: make([]BurndownRow, 0, len(issues))}
    for _, issue := range issues {
        rec, err := s.loadHistory(ctx, issue)
        if err != nil { return nil, err }
        var hist []domain.Snapshot
        if rec != nil { hist = rec.History }
        out.Rows = append(out.Rows, BurndownRow{IssueID: issue.ID, Key: issue.Key, Days: history.Filter(*sp, hist)})
    }
    return out, nil
}

// SyncStatuses imports Jira's workflow statuses into the registry.
func (s *Service) SyncStatuses(ctx context.Context) (int, error) {
    raw, err := s.jira.Statuses(ctx)
    if err != nil { return 0, fmt.Errorf("jira statuses: %w", err) }
    st, err := jira.Statuses(raw)
    if err != nil { return 0, err }
    if err := s.repo.UpsertStatuses(ctx, st); err != nil { return 0, err }
    return len(st), nil
}

// IngestIssue copies one Jira issue and its change log into storage. A first
// ingest builds the history from the change log; later ones run the save hook.
func (s *Service) IngestIssue(ctx context.Context, key string) (domain.Record, error) {
    raw, err := s.jira.IssueWithChangelog(ctx, key)
    if err != nil { return domain.Record{}, fmt.Errorf("jira issue %s: %w", key, err) }
    m, err := s.mapper.Issue(raw)
    if err != nil { return domain.Record{}, err }

    issue := m.Issue
    if m.ParentKey != "" {
        parent, err := s.repo.IssueByKey(ctx, m.ParentKey)
        if err != nil { return domain.Record{}, err }
        if parent != nil {
            issue.RootID, issue.Depth = parent.RootID, parent.Depth+1
        } else {
            s.log.Warn().Str("issue", key).Str("parent", m.ParentKey).Msg("parent not ingested yet, treating issue as root")
        }
    }
    for _, sp := range m.Sprints {
        if err := s.repo.UpsertSprint(ctx, sp); err != nil { return domain.Record{}, err }
    }
    id, err := s.repo.UpsertIssue(ctx, issue)
    if err != nil { return domain.Record{}, err }
    issue.ID = id
    if issue.RootID == 0 { issue.RootID = id }
    if err := s.repo.BulkInsertEvents(ctx, s.mapper.Events(id, raw.Changelog.Histories)); err != nil { return domain.Record{}, err }

    rec, err := s.loadHistory(ctx, issue)
    if err != nil { return domain.Record{}, err }
    if rec == nil {
        if _, err := s.rebuildIssue(ctx, issue); err != nil { return domain.Record{}, err }
    }
    return s.syncer.Sync(ctx, issue)
}

// IngestJQL ingests every issue matching jql with a bounded worker pool. It
// stops at the first failure.
func (s *Service) IngestJQL(ctx context.Context, jql string) (int, error) {
    keys, err := s.jira.SearchKeys(ctx, jql)
    if err != nil { return 0, err }
    workers := s.cfg.WorkersJira
    if workers <= 0 { workers = 6 }

    g, gctx := errgroup.WithContext(ctx)
    g.SetLimit(workers)
    for _, key := range keys {
        g.Go(func() error {
            if _, err := s.IngestIssue(gctx, key); err != nil { return err }
            s.log.Debug().Str("issue", key).Msg("ingested")
            return nil
        })
    }
    if err := g.Wait(); err != nil { return 0, err }
    return len(keys), nil
}

func (s *Service) GetLastRun(ctx context.Context) (*repo.LastRun, error) { return s.repo.GetLastRun(ctx) }
