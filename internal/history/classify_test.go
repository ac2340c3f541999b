package history

import (
    "context"
    "testing"

    "github.com/netavenir/redmine-backlogs/internal/domain"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestStatusClassifier_OpenClosedSuccess(t *testing.T) {
    sc := NewStatusClassifier(newRegistry(), nopLog)
    ctx := context.Background()

    open, err := sc.Classify(ctx, str("2"))
    require.NoError(t, err)
    assert.Equal(t, StatusInfo{ID: 2, Open: true, Success: false}, open)

    closed, err := sc.Classify(ctx, str("5"))
    require.NoError(t, err)
    assert.Equal(t, StatusInfo{ID: 5, Open: false, Success: true}, closed)

    partial, err := sc.Classify(ctx, str("6"))
    require.NoError(t, err)
    assert.Equal(t, StatusInfo{ID: 6, Open: false, Success: false}, partial)
}

func TestStatusClassifier_UnknownFallsBackToDefaultAndCaches(t *testing.T) {
    reg := newRegistry()
    sc := NewStatusClassifier(reg, nopLog)
    ctx := context.Background()

    info, err := sc.Classify(ctx, str("99"))
    require.NoError(t, err)
    assert.Equal(t, StatusInfo{ID: 1, Open: true}, info)
    assert.Equal(t, 1, reg.lookups)

    again, err := sc.Classify(ctx, str("99"))
    require.NoError(t, err)
    assert.Equal(t, info, again)
    assert.Equal(t, 1, reg.lookups, "bad code must be served from cache")

    for _, raw := range []*string{nil, str(""), str("abc")} {
        info, err := sc.Classify(ctx, raw)
        require.NoError(t, err)
        assert.Equal(t, int64(1), info.ID)
    }
}

func TestStatusClassifier_CacheIsPerInstance(t *testing.T) {
    reg := newRegistry()
    ctx := context.Background()
    _, err := NewStatusClassifier(reg, nopLog).Classify(ctx, str("2"))
    require.NoError(t, err)
    _, err = NewStatusClassifier(reg, nopLog).Classify(ctx, str("2"))
    require.NoError(t, err)
    assert.Equal(t, 2, reg.lookups)
}

func TestStatusClassifier_NoDefault(t *testing.T) {
    reg := newRegistry()
    reg.def = 404
    _, err := NewStatusClassifier(reg, nopLog).Classify(context.Background(), str("99"))
    assert.ErrorIs(t, err, ErrNoDefaultStatus)
}

func TestTrackerClassifier(t *testing.T) {
    assert.Equal(t, domain.TrackerStory, trackers.Classify(str("10")))
    assert.Equal(t, domain.TrackerStory, trackers.Classify(str("11")))
    assert.Equal(t, domain.TrackerTask, trackers.Classify(str("20")))
    assert.Equal(t, domain.TrackerNone, trackers.Classify(str("30")))
    assert.Equal(t, domain.TrackerNone, trackers.Classify(str("")))
    assert.Equal(t, domain.TrackerNone, trackers.Classify(nil))
    assert.Equal(t, domain.TrackerNone, trackers.ClassifyID(nil))
    assert.Equal(t, domain.TrackerTask, trackers.ClassifyID(i64(20)))
}
