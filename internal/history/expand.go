package history

import (
    "iter"

    "github.com/netavenir/redmine-backlogs/internal/domain"
)

// Expand yields one snapshot per calendar day from the first stored date up
// to the day before the last one. The last stored snapshot only bounds the
// range.
func Expand(history []domain.Snapshot) iter.Seq[domain.Snapshot] {
    return func(yield func(domain.Snapshot) bool) {
        for i := 0; i+1 < len(history); i++ {
            for d := history[i].Date; d.Before(history[i+1].Date); d = d.AddDate(0, 0, 1) {
                s := history[i].Clone()
                s.Date = d
                if !yield(s) { return }
            }
        }
    }
}

// Filter projects history onto the sprint's days. Days outside the expanded
// range get a placeholder without attributes. When the sprint's last day is
// still open, the first stored snapshot after the sprint end that belongs to
// the sprint and is closed stands in for it.
func Filter(sprint domain.Sprint, history []domain.Snapshot) []domain.Snapshot {
    days := sprint.Days()
    if len(days) == 0 { return nil }

    byDay := map[string]domain.Snapshot{}
    for s := range Expand(history) { byDay[dayKey(s.Date)] = s }

    out := make([]domain.Snapshot, 0, len(days))
    for _, d := range days {
        if s, ok := byDay[dayKey(d)]; ok {
            out = append(out, s)
        } else {
            out = append(out, domain.Snapshot{Date: d, Origin: domain.OriginFilter})
        }
    }

    if out[len(out)-1].Open() {
        end := domain.TruncDay(sprint.EffectiveDate)
        for _, h := range history {
            if h.Date.After(end) && h.Sprint != nil && *h.Sprint == sprint.ID && !h.Open() {
                out[len(out)-1] = h.Clone()
                break
            }
        }
    }
    return out
}
