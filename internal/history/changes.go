package history

import (
    "context"
    "fmt"
    "strconv"
    "strings"
    "time"

    "github.com/netavenir/redmine-backlogs/internal/domain"
)

// ParseError reports a tracked numeric or id field holding a non-numeric value.
type ParseError struct {
    Field string
    Value string
    Err   error
}

func (e *ParseError) Error() string {
    return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Change is one typed attribute delta derived from a change-log event.
type Change struct {
    Attr domain.Attr
    Old  any
    New  any
}

// deriveChanges maps a raw change-log event onto the attribute changes it
// implies. Untracked fields yield nothing; a status change fans out into
// status id, open and success.
func deriveChanges(ctx context.Context, ev domain.Event, sc *StatusClassifier, tc TrackerClassifier) ([]Change, error) {
    switch ev.Field {
    case domain.FieldEstimatedHours, domain.FieldStoryPoints, domain.FieldRemainingHours:
        old, err := parseFloat(ev.Field, ev.FromVal)
        if err != nil { return nil, err }
        nw, err := parseFloat(ev.Field, ev.ToVal)
        if err != nil { return nil, err }
        return []Change{{Attr: numericAttr[ev.Field], Old: old, New: nw}}, nil
    case domain.FieldSprint:
        old, err := parseInt(ev.Field, ev.FromVal)
        if err != nil { return nil, err }
        nw, err := parseInt(ev.Field, ev.ToVal)
        if err != nil { return nil, err }
        return []Change{{Attr: domain.AttrSprint, Old: old, New: nw}}, nil
    case domain.FieldStatus:
        old, err := sc.Classify(ctx, ev.FromVal)
        if err != nil { return nil, err }
        nw, err := sc.Classify(ctx, ev.ToVal)
        if err != nil { return nil, err }
        return []Change{
            {Attr: domain.AttrStatusID, Old: old.ID, New: nw.ID},
            {Attr: domain.AttrStatusOpen, Old: old.Open, New: nw.Open},
            {Attr: domain.AttrStatusSuccess, Old: old.Success, New: nw.Success},
        }, nil
    case domain.FieldTracker:
        return []Change{{Attr: domain.AttrTracker, Old: tc.Classify(ev.FromVal), New: tc.Classify(ev.ToVal)}}, nil
    }
    return nil, nil
}

var numericAttr = map[string]domain.Attr{
    domain.FieldEstimatedHours: domain.AttrEstimatedHours,
    domain.FieldStoryPoints:    domain.AttrStoryPoints,
    domain.FieldRemainingHours: domain.AttrRemainingHours,
}

func parseFloat(field string, v *string) (*float64, error) {
    if v == nil { return nil, nil }
    f, err := strconv.ParseFloat(strings.TrimSpace(*v), 64)
    if err != nil { return nil, &ParseError{Field: field, Value: *v, Err: err} }
    return &f, nil
}

func parseInt(field string, v *string) (*int64, error) {
    if v == nil { return nil, nil }
    n, err := strconv.ParseInt(strings.TrimSpace(*v), 10, 64)
    if err != nil { return nil, &ParseError{Field: field, Value: *v, Err: err} }
    return &n, nil
}

// currentState renders the issue's live values as a trailing change-log entry
// stamped with its last update.
func currentState(issue domain.Issue) []domain.Event {
    ev := func(field string, v *string) domain.Event {
        return domain.Event{IssueID: issue.ID, Kind: domain.EventKindAttr, Field: field, ToVal: v, At: issue.UpdatedOn}
    }
    status := strconv.FormatInt(issue.StatusID, 10)
    return []domain.Event{
        ev(domain.FieldEstimatedHours, formatFloat(issue.EstimatedHours)),
        ev(domain.FieldStoryPoints, formatFloat(issue.StoryPoints)),
        ev(domain.FieldRemainingHours, formatFloat(issue.RemainingHours)),
        ev(domain.FieldSprint, formatInt(issue.SprintID)),
        ev(domain.FieldStatus, &status),
        ev(domain.FieldTracker, formatInt(issue.TrackerID)),
    }
}

func formatFloat(f *float64) *string {
    if f == nil { return nil }
    s := strconv.FormatFloat(*f, 'f', -1, 64)
    return &s
}

func formatInt(n *int64) *string {
    if n == nil { return nil }
    s := strconv.FormatInt(*n, 10)
    return &s
}

func dayKey(t time.Time) string { return t.Format(time.DateOnly) }
