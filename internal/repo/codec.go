package repo

import (
    "github.com/netavenir/redmine-backlogs/internal/domain"
    "github.com/vmihailenco/msgpack/v5"
)

// EncodeHistory serialises a record for the issue_history.history column.
// Equal records encode to equal bytes.
func EncodeHistory(rec domain.Record) ([]byte, error) { return msgpack.Marshal(rec) }

func DecodeHistory(b []byte) (domain.Record, error) {
    var rec domain.Record
    if err := msgpack.Unmarshal(b, &rec); err != nil { return domain.Record{}, err }
    for i := range rec.History { rec.History[i].Date = domain.TruncDay(rec.History[i].Date) }
    return rec, nil
}
