package history

import (
    "context"
    "errors"

    "github.com/netavenir/redmine-backlogs/internal/domain"
)

// StatusRegistry looks statuses up by id. Status returns nil, nil for an
// unknown id.
type StatusRegistry interface {
    Status(ctx context.Context, id int64) (*domain.Status, error)
    DefaultStatus(ctx context.Context) (*domain.Status, error)
}

// Store persists one Record per issue. History returns nil, nil when the
// issue has none yet.
type Store interface {
    History(ctx context.Context, issueID int64) (*domain.Record, error)
    SaveHistory(ctx context.Context, rec domain.Record) error
    DeleteAllHistories(ctx context.Context) error
}

// EventSource returns an issue's change log in chronological order.
type EventSource interface {
    Events(ctx context.Context, issueID int64) ([]domain.Event, error)
}

type IssueSource interface {
    Issues(ctx context.Context) ([]domain.Issue, error)
}

// Aggregator receives "sprint data changed" signals. Touch is fire-and-forget;
// implementations deal with their own failures.
type Aggregator interface {
    Touch(ctx context.Context, sprintID, issueID int64)
    Reset(ctx context.Context) error
}

// Aggregators fans signals out to several aggregators. Reset runs on all of
// them and joins their errors.
type Aggregators []Aggregator

func (as Aggregators) Touch(ctx context.Context, sprintID, issueID int64) {
    for _, a := range as { a.Touch(ctx, sprintID, issueID) }
}

func (as Aggregators) Reset(ctx context.Context) error {
    var errs []error
    for _, a := range as {
        if err := a.Reset(ctx); err != nil { errs = append(errs, err) }
    }
    return errors.Join(errs...)
}
