package kafka

import (
    "context"
    "encoding/json"
    "strconv"
    "time"

    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/rs/zerolog"
    "github.com/segmentio/kafka-go"
)

type messageWriter interface {
    WriteMessages(ctx context.Context, msgs ...kafka.Message) error
    Close() error
}

// Signal is the payload published for every burndown change.
type Signal struct {
    Kind     string    `json:"kind"`
    SprintID int64     `json:"sprint_id,omitempty"`
    IssueID  int64     `json:"issue_id,omitempty"`
    At       time.Time `json:"at"`
}

const (
    KindTouch = "touch"
    KindReset = "reset"
)

// TouchPublisher forwards sprint touches to a Kafka topic keyed by sprint, so
// an external burndown aggregator sees them in order per sprint.
type TouchPublisher struct {
    w   messageWriter
    log zerolog.Logger
    now func() time.Time
}

func NewTouchPublisher(cfg config.Config, log zerolog.Logger) *TouchPublisher {
    w := &kafka.Writer{
        Addr:         kafka.TCP(cfg.KafkaBrokers...),
        Topic:        cfg.KafkaTouchTopic,
        RequiredAcks: kafka.RequireOne,
        Async:        false,
    }
    return &TouchPublisher{w: w, log: log.With().Str("component", "kafka-touch").Logger(), now: time.Now}
}

func (p *TouchPublisher) Touch(ctx context.Context, sprintID, issueID int64) {
    if err := p.publish(ctx, strconv.FormatInt(sprintID, 10), Signal{Kind: KindTouch, SprintID: sprintID, IssueID: issueID}); err != nil {
        p.log.Error().Err(err).Int64("sprint", sprintID).Int64("issue", issueID).Msg("publish touch failed")
    }
}

func (p *TouchPublisher) Reset(ctx context.Context) error {
    return p.publish(ctx, "", Signal{Kind: KindReset})
}

func (p *TouchPublisher) publish(ctx context.Context, key string, s Signal) error {
    s.At = p.now().UTC()
    b, err := json.Marshal(s)
    if err != nil { return err }
    msg := kafka.Message{Value: b}
    if key != "" { msg.Key = []byte(key) }
    return p.w.WriteMessages(ctx, msg)
}

func (p *TouchPublisher) Close() error { return p.w.Close() }
