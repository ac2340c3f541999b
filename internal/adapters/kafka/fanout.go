package kafka

import (
    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/netavenir/redmine-backlogs/internal/history"
    "github.com/rs/zerolog"
)

// Fanout returns base alone, or base plus a TouchPublisher when brokers are
// configured. The returned func closes the publisher, if any.
func Fanout(cfg config.Config, log zerolog.Logger, base history.Aggregator) (history.Aggregator, func()) {
    if len(cfg.KafkaBrokers) == 0 { return base, func() {} }
    pub := NewTouchPublisher(cfg, log)
    log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTouchTopic).Msg("kafka touch publisher enabled")
    return history.Aggregators{base, pub}, func() {
        if err := pub.Close(); err != nil { log.Error().Err(err).Msg("close kafka touch publisher") }
    }
}
