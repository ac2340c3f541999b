package main

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "strconv"

    "github.com/netavenir/redmine-backlogs/internal/adapters/jira"
    "github.com/netavenir/redmine-backlogs/internal/adapters/kafka"
    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/netavenir/redmine-backlogs/internal/history"
    "github.com/netavenir/redmine-backlogs/internal/logger"
    "github.com/netavenir/redmine-backlogs/internal/repo"
    "github.com/netavenir/redmine-backlogs/internal/services"
    "github.com/rs/zerolog"
    "github.com/spf13/cobra"
)

var ErrBadID = errors.New("invalid id")

// operations is the part of the service the commands drive.
type operations interface {
    RebuildAll(ctx context.Context) (int, error)
    RebuildIssue(ctx context.Context, id int64) (any, error)
    SyncIssue(ctx context.Context, id int64) (any, error)
    Timeline(ctx context.Context, id int64) (any, error)
    Burndown(ctx context.Context, sprintID int64) (any, error)
    IngestIssue(ctx context.Context, key string) (any, error)
    IngestJQL(ctx context.Context, jql string) (int, error)
    SyncStatuses(ctx context.Context) (int, error)
    LastRun(ctx context.Context) (any, error)
}

type opener func(ctx context.Context) (operations, func(), error)

// serviceOps adapts *services.Service to operations.
type serviceOps struct {
    svc *services.Service
    agg history.Aggregator
}

func (o serviceOps) RebuildAll(ctx context.Context) (int, error) { return o.svc.RebuildAll(ctx) }
func (o serviceOps) RebuildIssue(ctx context.Context, id int64) (any, error) { return o.svc.RebuildIssue(ctx, id) }
func (o serviceOps) SyncIssue(ctx context.Context, id int64) (any, error) { return o.svc.SyncIssue(ctx, id) }
func (o serviceOps) Timeline(ctx context.Context, id int64) (any, error) { return o.svc.Timeline(ctx, id) }
func (o serviceOps) Burndown(ctx context.Context, id int64) (any, error) { return o.svc.Burndown(ctx, id) }
func (o serviceOps) IngestIssue(ctx context.Context, key string) (any, error) { return o.svc.IngestIssue(ctx, key) }
func (o serviceOps) IngestJQL(ctx context.Context, jql string) (int, error) { return o.svc.IngestJQL(ctx, jql) }
func (o serviceOps) SyncStatuses(ctx context.Context) (int, error) { return o.svc.SyncStatuses(ctx) }
func (o serviceOps) LastRun(ctx context.Context) (any, error) { return o.svc.GetLastRun(ctx) }

// connector opens the migrated repository and returns its close func.
type connector func(ctx context.Context, cfg config.Config, log zerolog.Logger) (*repo.Repository, func(), error)

func connectDB(ctx context.Context, cfg config.Config, log zerolog.Logger) (*repo.Repository, func(), error) {
    db := repo.MustOpen(ctx, cfg, log)
    if err := db.Migrate(ctx); err != nil {
        db.Close()
        return nil, nil, fmt.Errorf("migrate: %w", err)
    }
    return repo.NewRepository(db, log), db.Close, nil
}

// newOpener wires the service the same way cmd/api does: Postgres touches,
// plus the Kafka publisher when brokers are configured.
func newOpener(load func() config.Config, connect connector) opener {
    return func(ctx context.Context) (operations, func(), error) {
        cfg := load()
        log := logger.New(cfg)
        r, closeDB, err := connect(ctx, cfg, log)
        if err != nil { return nil, nil, err }
        agg, closeAgg := kafka.Fanout(cfg, log, r)
        svc := services.New(cfg, log, r, jira.NewClient(cfg, log), agg)
        return serviceOps{svc: svc, agg: agg}, func() { closeAgg(); closeDB() }, nil
    }
}

func rootCmd() *cobra.Command { return newRootCmd(newOpener(config.Load, connectDB)) }

func newRootCmd(open opener) *cobra.Command {
    root := &cobra.Command{
        Use:   "historyctl",
        Short: "Operate the issue history engine",
        Long: `historyctl rebuilds and inspects per-issue day-by-day histories.

Commands:
  rebuild         Drop and rebuild every history
  rebuild-issue   Rebuild one issue's history
  sync            Run the save hook for one issue
  timeline        Print one snapshot per day for an issue
  burndown        Print per-issue rows for a sprint
  ingest          Import issues from Jira
  statuses        Import Jira statuses
  last-run        Show the last recorded rebuild`,
        SilenceUsage:  true,
        SilenceErrors: true,
    }

    // run opens the service, calls fn and prints what it returns as JSON.
    run := func(cmd *cobra.Command, fn func(ctx context.Context, ops operations) (any, error)) error {
        ctx := cmd.Context()
        if ctx == nil { ctx = context.Background() }
        ops, closeFn, err := open(ctx)
        if err != nil { return err }
        defer closeFn()
        out, err := fn(ctx, ops)
        if err != nil { return err }
        return printJSON(cmd.OutOrStdout(), out)
    }
    byID := func(use, short string, fn func(ctx context.Context, ops operations, id int64) (any, error)) *cobra.Command {
        return &cobra.Command{
            Use:   use + " <id>",
            Short: short,
            Args:  cobra.ExactArgs(1),
            RunE: func(cmd *cobra.Command, args []string) error {
                id, err := parseID(args[0])
                if err != nil { return err }
                return run(cmd, func(ctx context.Context, ops operations) (any, error) { return fn(ctx, ops, id) })
            },
        }
    }

    root.AddCommand(&cobra.Command{
        Use:   "rebuild",
        Short: "Drop and rebuild every history",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, _ []string) error {
            return run(cmd, func(ctx context.Context, ops operations) (any, error) {
                n, err := ops.RebuildAll(ctx)
                if err != nil { return nil, err }
                return map[string]int{"issues": n}, nil
            })
        },
    })
    root.AddCommand(byID("rebuild-issue", "Rebuild one issue's history", func(ctx context.Context, ops operations, id int64) (any, error) {
        return ops.RebuildIssue(ctx, id)
    }))
    root.AddCommand(byID("sync", "Run the save hook for one issue", func(ctx context.Context, ops operations, id int64) (any, error) {
        return ops.SyncIssue(ctx, id)
    }))
    root.AddCommand(byID("timeline", "Print one snapshot per day for an issue", func(ctx context.Context, ops operations, id int64) (any, error) {
        return ops.Timeline(ctx, id)
    }))
    root.AddCommand(byID("burndown", "Print per-issue rows for a sprint", func(ctx context.Context, ops operations, id int64) (any, error) {
        return ops.Burndown(ctx, id)
    }))

    var jql string
    ingest := &cobra.Command{
        Use:   "ingest [key...]",
        Short: "Import issues from Jira",
        RunE: func(cmd *cobra.Command, args []string) error {
            if jql == "" && len(args) == 0 { return errors.New("give issue keys or --jql") }
            return run(cmd, func(ctx context.Context, ops operations) (any, error) {
                if jql != "" {
                    n, err := ops.IngestJQL(ctx, jql)
                    if err != nil { return nil, err }
                    return map[string]int{"issues": n}, nil
                }
                out := make([]any, 0, len(args))
                for _, key := range args {
                    rec, err := ops.IngestIssue(ctx, key)
                    if err != nil { return nil, err }
                    out = append(out, rec)
                }
                return out, nil
            })
        },
    }
    ingest.Flags().StringVar(&jql, "jql", "", "ingest every issue matching this JQL")
    root.AddCommand(ingest)

    root.AddCommand(&cobra.Command{
        Use:   "statuses",
        Short: "Import Jira statuses",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, _ []string) error {
            return run(cmd, func(ctx context.Context, ops operations) (any, error) {
                n, err := ops.SyncStatuses(ctx)
                if err != nil { return nil, err }
                return map[string]int{"statuses": n}, nil
            })
        },
    })
    root.AddCommand(&cobra.Command{
        Use:   "last-run",
        Short: "Show the last recorded rebuild",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, _ []string) error {
            return run(cmd, func(ctx context.Context, ops operations) (any, error) { return ops.LastRun(ctx) })
        },
    })
    return root
}

func parseID(s string) (int64, error) {
    id, err := strconv.ParseInt(s, 10, 64)
    if err != nil || id <= 0 { return 0, fmt.Errorf("%w: %q", ErrBadID, s) }
    return id, nil
}

func printJSON(w io.Writer, v any) error {
    enc := json.NewEncoder(w)
    enc.SetIndent("", "  ")
    return enc.Encode(v)
}
