package repo

import (
    "context"
    _ "embed"
    "errors"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/netavenir/redmine-backlogs/internal/domain"
    "github.com/rs/zerolog"
)

//go:embed schema.sql
var schema string

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

// Migrate creates missing tables.
func (d *DB) Migrate(ctx context.Context) error {
    _, err := d.Pool.Exec(ctx, schema)
    return err
}

// Repository is the Postgres side of the history engine: issue and change-log
// source, status registry, history store and sprint burndown aggregator.
type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

// WithAdvisoryLock runs fn while holding the session advisory lock key. It
// returns false without running fn when another session holds the lock. Lock
// and unlock use the same pooled connection.
func (r *Repository) WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) (bool, error) {
    conn, err := r.db.Pool.Acquire(ctx)
    if err != nil { return false, err }
    defer conn.Release()
    var ok bool
    if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil { return false, err }
    if !ok { return false, nil }
    defer func() {
        var unlocked bool
        if err := conn.QueryRow(context.Background(), "SELECT pg_advisory_unlock($1)", key).Scan(&unlocked); err != nil || !unlocked {
            r.log.Error().Err(err).Int64("key", key).Msg("advisory unlock failed")
        }
    }()
    return true, fn(ctx)
}

// ---- Issues ----

const issueCols = `id, key, COALESCE(project,''), COALESCE(root_id, id), depth, tracker_id, status_id, sprint_id,
    estimated_hours, story_points, remaining_hours, created_on, updated_on`

func scanIssue(row pgx.Row) (domain.Issue, error) {
    var i domain.Issue
    err := row.Scan(&i.ID, &i.Key, &i.Project, &i.RootID, &i.Depth, &i.TrackerID, &i.StatusID, &i.SprintID,
        &i.EstimatedHours, &i.StoryPoints, &i.RemainingHours, &i.CreatedOn, &i.UpdatedOn)
    return i, err
}

// UpsertIssue stores the issue by key and returns its id. A zero RootID makes
// the issue its own root.
func (r *Repository) UpsertIssue(ctx context.Context, i domain.Issue) (int64, error) {
    const q = `
        INSERT INTO issues(key, project, root_id, depth, tracker_id, status_id, sprint_id,
            estimated_hours, story_points, remaining_hours, created_on, updated_on)
        VALUES($1,$2,NULLIF($3::bigint,0),$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT(key) DO UPDATE SET
            project=EXCLUDED.project,
            root_id=EXCLUDED.root_id,
            depth=EXCLUDED.depth,
            tracker_id=EXCLUDED.tracker_id,
            status_id=EXCLUDED.status_id,
            sprint_id=EXCLUDED.sprint_id,
            estimated_hours=EXCLUDED.estimated_hours,
            story_points=EXCLUDED.story_points,
            remaining_hours=EXCLUDED.remaining_hours,
            created_on=EXCLUDED.created_on,
            updated_on=EXCLUDED.updated_on
        RETURNING id`
    var id int64
    row := r.db.Pool.QueryRow(ctx, q, i.Key, i.Project, i.RootID, i.Depth, i.TrackerID, i.StatusID, i.SprintID,
        i.EstimatedHours, i.StoryPoints, i.RemainingHours, i.CreatedOn, i.UpdatedOn)
    if err := row.Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) IssueByID(ctx context.Context, id int64) (*domain.Issue, error) {
    i, err := scanIssue(r.db.Pool.QueryRow(ctx, `SELECT `+issueCols+` FROM issues WHERE id=$1`, id))
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return &i, nil
}

func (r *Repository) IssueByKey(ctx context.Context, key string) (*domain.Issue, error) {
    i, err := scanIssue(r.db.Pool.QueryRow(ctx, `SELECT `+issueCols+` FROM issues WHERE key=$1`, key))
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return &i, nil
}

// Issues lists every issue in rebuild order.
func (r *Repository) Issues(ctx context.Context) ([]domain.Issue, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT `+issueCols+` FROM issues ORDER BY COALESCE(root_id, id) ASC, depth DESC, id ASC`)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Issue
    for rows.Next() {
        i, err := scanIssue(rows)
        if err != nil { return nil, err }
        out = append(out, i)
    }
    return out, rows.Err()
}

func (r *Repository) IssuesByID(ctx context.Context, ids []int64) ([]domain.Issue, error) {
    if len(ids) == 0 { return nil, nil }
    rows, err := r.db.Pool.Query(ctx, `SELECT `+issueCols+` FROM issues WHERE id = ANY($1) ORDER BY id`, ids)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Issue
    for rows.Next() {
        i, err := scanIssue(rows)
        if err != nil { return nil, err }
        out = append(out, i)
    }
    return out, rows.Err()
}

// ---- Change log ----

func (r *Repository) BulkInsertEvents(ctx context.Context, ev []domain.Event) error {
    if len(ev) == 0 { return nil }
    batch := &pgx.Batch{}
    const q = `INSERT INTO events(issue_id, kind, field, from_val, to_val, at)
        VALUES($1,$2,$3,$4,$5,$6)
        ON CONFLICT (issue_id, field, from_val, to_val, at) DO NOTHING`
    for _, e := range ev {
        batch.Queue(q, e.IssueID, e.Kind, e.Field, e.FromVal, e.ToVal, e.At)
    }
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    for range ev { if _, err := br.Exec(); err != nil { return err } }
    return nil
}

// Events returns the issue's change log oldest first.
func (r *Repository) Events(ctx context.Context, issueID int64) ([]domain.Event, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT id, issue_id, kind, field, from_val, to_val, at
        FROM events WHERE issue_id=$1 ORDER BY at, id`, issueID)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Event
    for rows.Next() {
        var e domain.Event
        if err := rows.Scan(&e.ID, &e.IssueID, &e.Kind, &e.Field, &e.FromVal, &e.ToVal, &e.At); err != nil { return nil, err }
        out = append(out, e)
    }
    return out, rows.Err()
}

// ---- Statuses ----

func (r *Repository) UpsertStatuses(ctx context.Context, statuses []domain.Status) error {
    if len(statuses) == 0 { return nil }
    batch := &pgx.Batch{}
    const q = `INSERT INTO statuses(id, name, is_closed, default_done_ratio, is_default) VALUES($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, is_closed=EXCLUDED.is_closed,
            default_done_ratio=EXCLUDED.default_done_ratio, is_default=EXCLUDED.is_default`
    for _, s := range statuses { batch.Queue(q, s.ID, s.Name, s.IsClosed, s.DefaultDoneRatio, s.IsDefault) }
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    for range statuses { if _, err := br.Exec(); err != nil { return err } }
    return nil
}

func (r *Repository) scanStatus(row pgx.Row) (*domain.Status, error) {
    var s domain.Status
    err := row.Scan(&s.ID, &s.Name, &s.IsClosed, &s.DefaultDoneRatio, &s.IsDefault)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return &s, nil
}

func (r *Repository) Status(ctx context.Context, id int64) (*domain.Status, error) {
    return r.scanStatus(r.db.Pool.QueryRow(ctx,
        `SELECT id, name, is_closed, default_done_ratio, is_default FROM statuses WHERE id=$1`, id))
}

// DefaultStatus returns the status flagged default, else the lowest id.
func (r *Repository) DefaultStatus(ctx context.Context) (*domain.Status, error) {
    return r.scanStatus(r.db.Pool.QueryRow(ctx,
        `SELECT id, name, is_closed, default_done_ratio, is_default FROM statuses ORDER BY is_default DESC, id ASC LIMIT 1`))
}

// ---- Sprints ----

func (r *Repository) UpsertSprint(ctx context.Context, s domain.Sprint) error {
    _, err := r.db.Pool.Exec(ctx, `INSERT INTO sprints(id, name, start_date, effective_date) VALUES($1,$2,$3,$4)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, start_date=EXCLUDED.start_date, effective_date=EXCLUDED.effective_date`,
        s.ID, s.Name, s.StartDate, s.EffectiveDate)
    return err
}

func (r *Repository) Sprint(ctx context.Context, id int64) (*domain.Sprint, error) {
    var s domain.Sprint
    err := r.db.Pool.QueryRow(ctx, `SELECT id, name, start_date, effective_date FROM sprints WHERE id=$1`, id).
        Scan(&s.ID, &s.Name, &s.StartDate, &s.EffectiveDate)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return &s, nil
}

// ---- Histories ----

func (r *Repository) History(ctx context.Context, issueID int64) (*domain.Record, error) {
    var b []byte
    err := r.db.Pool.QueryRow(ctx, `SELECT history FROM issue_history WHERE issue_id=$1`, issueID).Scan(&b)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    rec, err := DecodeHistory(b)
    if err != nil { return nil, fmt.Errorf("decode history of issue %d: %w", issueID, err) }
    rec.IssueID = issueID
    return &rec, nil
}

// SaveHistory replaces the issue's stored history in one statement.
func (r *Repository) SaveHistory(ctx context.Context, rec domain.Record) error {
    b, err := EncodeHistory(rec)
    if err != nil { return err }
    _, err = r.db.Pool.Exec(ctx, `INSERT INTO issue_history(issue_id, history, updated_at) VALUES($1,$2,now())
        ON CONFLICT (issue_id) DO UPDATE SET history=EXCLUDED.history, updated_at=EXCLUDED.updated_at`, rec.IssueID, b)
    return err
}

func (r *Repository) DeleteAllHistories(ctx context.Context) error {
    _, err := r.db.Pool.Exec(ctx, `DELETE FROM issue_history`)
    return err
}

// ---- Sprint burndowns ----

// Touch marks the sprint's burndown stale for the issue. Failures are logged.
func (r *Repository) Touch(ctx context.Context, sprintID, issueID int64) {
    _, err := r.db.Pool.Exec(ctx, `INSERT INTO sprint_burndowns(sprint_id, issue_id, touched_at) VALUES($1,$2,now())
        ON CONFLICT (sprint_id, issue_id) DO UPDATE SET touched_at=EXCLUDED.touched_at`, sprintID, issueID)
    if err != nil { r.log.Error().Err(err).Int64("sprint", sprintID).Int64("issue", issueID).Msg("burndown touch failed") }
}

func (r *Repository) Reset(ctx context.Context) error {
    _, err := r.db.Pool.Exec(ctx, `DELETE FROM sprint_burndowns`)
    return err
}

// TouchedIssues lists the issues touched for a sprint.
func (r *Repository) TouchedIssues(ctx context.Context, sprintID int64) ([]int64, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT issue_id FROM sprint_burndowns WHERE sprint_id=$1 ORDER BY issue_id`, sprintID)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []int64
    for rows.Next() {
        var id int64
        if err := rows.Scan(&id); err != nil { return nil, err }
        out = append(out, id)
    }
    return out, rows.Err()
}

// ---- Job runs ----

func (r *Repository) StartJobRun(ctx context.Context, kind string) (int64, error) {
    const q = `INSERT INTO job_runs(kind, started_at, success) VALUES($1, now(), false) RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q, kind).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) FinishJobRun(ctx context.Context, id int64, issues int, success bool, errStr string) error {
    const q = `UPDATE job_runs SET finished_at=now(), issues=$2, success=$3, error=$4 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, issues, success, errStr)
    return err
}

type LastRun struct {
    Kind       string     `json:"kind"`
    StartedAt  time.Time  `json:"started_at"`
    FinishedAt *time.Time `json:"finished_at"`
    Issues     int        `json:"issues"`
    Success    bool       `json:"success"`
    Error      string     `json:"error"`
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
    const q = `SELECT kind, started_at, finished_at, coalesce(issues,0), coalesce(success,false), coalesce(error,'')
        FROM job_runs ORDER BY id DESC LIMIT 1`
    lr := &LastRun{}
    err := r.db.Pool.QueryRow(ctx, q).Scan(&lr.Kind, &lr.StartedAt, &lr.FinishedAt, &lr.Issues, &lr.Success, &lr.Error)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return lr, nil
}
