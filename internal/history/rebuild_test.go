package history

import (
    "context"
    "errors"
    "testing"

    "github.com/netavenir/redmine-backlogs/internal/domain"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type recordingEvents struct {
    log   eventLog
    calls []int64
}

func (e *recordingEvents) Events(ctx context.Context, issueID int64) ([]domain.Event, error) {
    e.calls = append(e.calls, issueID)
    return e.log.Events(ctx, issueID)
}

func hierarchy() issueList {
    mk := func(id, root int64, depth int) domain.Issue {
        issue := liveIssue()
        issue.ID, issue.RootID, issue.Depth = id, root, depth
        return issue
    }
    return issueList{mk(3, 1, 0), mk(4, 1, 1), mk(2, 2, 0), mk(1, 1, 2)}
}

func TestRebuildAll_ReplacesEverythingInHierarchyOrder(t *testing.T) {
    store, agg, reg := newMemStore(), &recAggregator{}, newRegistry()
    store.recs[99] = domain.Record{IssueID: 99}
    events := &recordingEvents{log: eventLog{}}
    r := NewRebuilder(hierarchy(), store, reg, agg, newBuilder(store, events, reg, agg), nopLog)

    n, err := r.RebuildAll(context.Background())
    require.NoError(t, err)

    assert.Equal(t, 4, n)
    assert.Equal(t, 1, store.deletes)
    assert.Equal(t, 1, agg.resets)
    assert.Equal(t, []int64{1, 4, 3, 2}, events.calls)
    assert.NotContains(t, store.recs, int64(99))
    assert.Len(t, store.recs, 4)
    assert.Len(t, agg.touches, 4)
    assert.Equal(t, 1, reg.lookups, "classifier cache is shared across the batch")
}

func TestRebuildAll_AbortsOnFirstError(t *testing.T) {
    store, reg := newMemStore(), newRegistry()
    events := &recordingEvents{log: eventLog{4: {change(day(3), domain.FieldEstimatedHours, str("abc"), nil)}}}
    r := NewRebuilder(hierarchy(), store, reg, nil, newBuilder(store, events, reg, nil), nopLog)

    n, err := r.RebuildAll(context.Background())
    require.Error(t, err)
    assert.Equal(t, 1, n)
    assert.Contains(t, err.Error(), "rebuild issue 4")
    var perr *ParseError
    assert.True(t, errors.As(err, &perr))
    assert.Equal(t, []int64{1, 4}, events.calls)
    assert.Len(t, store.recs, 1)
}

func TestRebuildAll_RerunIsIdempotent(t *testing.T) {
    store, reg := newMemStore(), newRegistry()
    r := NewRebuilder(hierarchy(), store, reg, nil, newBuilder(store, eventLog{}, reg, nil), nopLog)
    _, err := r.RebuildAll(context.Background())
    require.NoError(t, err)
    first := store.recs
    _, err = r.RebuildAll(context.Background())
    require.NoError(t, err)
    assert.Equal(t, first, store.recs)
}

func TestSortForRebuild(t *testing.T) {
    issues := hierarchy()
    SortForRebuild(issues)
    ids := make([]int64, 0, len(issues))
    for _, i := range issues { ids = append(ids, i.ID) }
    assert.Equal(t, []int64{1, 4, 3, 2}, ids)
}
