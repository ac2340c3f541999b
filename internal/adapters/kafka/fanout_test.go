package kafka

import (
    "context"
    "testing"

    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/netavenir/redmine-backlogs/internal/history"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type baseAgg struct{ resets int }

func (b *baseAgg) Touch(context.Context, int64, int64) {}
func (b *baseAgg) Reset(context.Context) error { b.resets++; return nil }

func TestFanout_NoBrokers(t *testing.T) {
    base := &baseAgg{}
    agg, closeFn := Fanout(config.Config{}, zerolog.Nop(), base)
    assert.Same(t, base, agg)
    closeFn()
}

func TestFanout_WithBrokers(t *testing.T) {
    base := &baseAgg{}
    agg, closeFn := Fanout(config.Config{KafkaBrokers: []string{"127.0.0.1:9"}, KafkaTouchTopic: "t"}, zerolog.Nop(), base)
    fan, ok := agg.(history.Aggregators)
    require.True(t, ok)
    require.Len(t, fan, 2)
    assert.Same(t, base, fan[0])
    assert.IsType(t, &TouchPublisher{}, fan[1])
    closeFn()
}
