package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
    for _, k := range []string{"APP_TZ", "STORY_TRACKERS", "TASK_TRACKER", "REBUILD_CRON", "KAFKA_BROKERS", "HTTP_TIMEOUT"} {
        t.Setenv(k, "")
    }
    local := time.Local
    t.Cleanup(func() { time.Local = local })

    cfg := Load()
    assert.Equal(t, "UTC", cfg.TZ)
    assert.Equal(t, "0 3 * * *", cfg.RebuildCron)
    assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
    assert.Empty(t, cfg.StoryTrackers)
    assert.Zero(t, cfg.TaskTracker)
    assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_TrackersAndBrokers(t *testing.T) {
    t.Setenv("STORY_TRACKERS", "10, 11,x,")
    t.Setenv("TASK_TRACKER", "20")
    t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
    t.Setenv("HTTP_TIMEOUT", "bogus")
    t.Setenv("APP_TZ", "UTC")
    local := time.Local
    t.Cleanup(func() { time.Local = local })

    cfg := Load()
    assert.Equal(t, []int64{10, 11}, cfg.StoryTrackers)
    assert.Equal(t, int64(20), cfg.TaskTracker)
    assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
    assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
    assert.Equal(t, "UTC", time.Local.String())
}
