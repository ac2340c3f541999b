package history

import (
    "context"
    "testing"
    "time"

    "github.com/netavenir/redmine-backlogs/internal/domain"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func newSyncer(store Store, agg Aggregator, today int) *LiveSyncer {
    l := NewLiveSyncer(store, newRegistry(), trackers, agg, nopLog)
    l.now = func() time.Time { return day(today) }
    return l
}

func liveIssue() domain.Issue {
    issue := baseIssue()
    issue.SprintID = i64(42)
    return issue
}

func TestSync_SeedsYesterdayAndToday(t *testing.T) {
    store, agg := newMemStore(), &recAggregator{}
    rec, err := newSyncer(store, agg, 10).Sync(context.Background(), liveIssue())
    require.NoError(t, err)

    require.Equal(t, []string{"2024-03-09", "2024-03-10"}, dates(rec.History))
    for _, h := range rec.History {
        assert.Equal(t, domain.OriginDefault, h.Origin)
        assert.True(t, h.Complete())
        assert.Equal(t, int64(2), *h.StatusID)
        assert.True(t, *h.StatusOpen)
    }
    assert.Equal(t, 10.0, *rec.History[0].Hours)
    assert.Equal(t, 3.0, *rec.History[1].Hours)
    assert.Equal(t, rec, store.recs[1])
    assert.Equal(t, []touched{{42, 1}}, agg.touches)
}

func TestSync_AppendsTodayToRebuiltHistory(t *testing.T) {
    store := newMemStore()
    issue := liveIssue()
    issue.UpdatedOn = day(5)
    b := newBuilder(store, eventLog{1: {change(day(3), domain.FieldRemainingHours, str("8"), str("3"))}}, newRegistry(), nil)
    require.NoError(t, b.RebuildIssue(context.Background(), issue, nil))
    rebuilt := store.recs[1]
    require.Equal(t, []string{"2024-02-29", "2024-03-03", "2024-03-05"}, dates(rebuilt.History))

    issue.RemainingHours = f64(1)
    rec, err := newSyncer(store, nil, 10).Sync(context.Background(), issue)
    require.NoError(t, err)

    require.Equal(t, []string{"2024-02-29", "2024-03-03", "2024-03-05", "2024-03-10"}, dates(rec.History))
    last := rec.History[3]
    assert.Equal(t, domain.OriginDefault, last.Origin)
    assert.Equal(t, 1.0, *last.RemainingHours)
    assert.Equal(t, 1.0, *last.Hours)
    assert.Equal(t, 3.0, *rec.History[2].RemainingHours)
    assert.Equal(t, 8.0, *rec.History[0].Hours, "baseline estimate is unset, falls back to remaining")
}

func TestSync_LastSnapshotAfterTodayIsOverwritten(t *testing.T) {
    store := newMemStore()
    issue := liveIssue()
    issue.UpdatedOn = day(12)
    b := newBuilder(store, eventLog{}, newRegistry(), nil)
    require.NoError(t, b.RebuildIssue(context.Background(), issue, nil))
    rebuilt := dates(store.recs[1].History)
    require.Equal(t, "2024-03-12", rebuilt[len(rebuilt)-1])

    issue.RemainingHours = f64(2)
    rec, err := newSyncer(store, nil, 11).Sync(context.Background(), issue)
    require.NoError(t, err)

    require.NoError(t, rec.Validate())
    assert.Equal(t, rebuilt, dates(rec.History))
    last := rec.History[len(rec.History)-1]
    assert.Equal(t, date(12), last.Date)
    assert.Equal(t, domain.OriginDefault, last.Origin)
    assert.Equal(t, 2.0, *last.RemainingHours)
}

func TestSync_SameDayOverwritesLast(t *testing.T) {
    store := newMemStore()
    syncer := newSyncer(store, nil, 10)
    issue := liveIssue()
    _, err := syncer.Sync(context.Background(), issue)
    require.NoError(t, err)

    issue.RemainingHours = f64(1)
    issue.StatusID = 5
    rec, err := syncer.Sync(context.Background(), issue)
    require.NoError(t, err)
    require.Len(t, rec.History, 2)
    assert.Equal(t, 1.0, *rec.History[1].Hours)
    assert.False(t, *rec.History[1].StatusOpen)
    assert.True(t, *rec.History[0].StatusOpen)
}

func TestSync_TouchOnlyForStoriesInSprint(t *testing.T) {
    agg := &recAggregator{}
    task := liveIssue()
    task.TrackerID = i64(20)
    _, err := newSyncer(newMemStore(), agg, 10).Sync(context.Background(), task)
    require.NoError(t, err)

    loose := liveIssue()
    loose.SprintID = nil
    _, err = newSyncer(newMemStore(), agg, 10).Sync(context.Background(), loose)
    require.NoError(t, err)
    assert.Empty(t, agg.touches)
}

func TestSync_SaveFailure(t *testing.T) {
    store := newMemStore()
    store.saveErr = errBoom
    agg := &recAggregator{}
    _, err := newSyncer(store, agg, 10).Sync(context.Background(), liveIssue())
    assert.ErrorIs(t, err, errBoom)
    assert.Empty(t, agg.touches)
}
