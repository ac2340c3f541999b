/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import "time"

// Issue is the live state of a tracked work item.
type Issue struct {
    ID             int64
    Key            string
    Project        string
    RootID         int64
    Depth          int
    TrackerID      *int64
    StatusID       int64
    SprintID       *int64
    EstimatedHours *float64
    StoryPoints    *float64
    RemainingHours *float64
    CreatedOn      time.Time
    UpdatedOn      time.Time
}

const EventKindAttr = "attr"

// Event is one attribute change from an issue's change log. Several events
// share At when they were written by the same action.
type Event struct {
    ID      int64
    IssueID int64
    Kind    string
    Field   string
    FromVal *string
    ToVal   *string
    At      time.Time
}

type Status struct {
    ID               int64
    Name             string
    IsClosed         bool
    DefaultDoneRatio *int
    IsDefault        bool
}

// Sprint is a reporting window ending on EffectiveDate.
type Sprint struct {
    ID            int64     `json:"id"`
    Name          string    `json:"name"`
    StartDate     time.Time `json:"start_date"`
    EffectiveDate time.Time `json:"effective_date"`
}

// Days lists every calendar day of the sprint, both ends included.
func (s Sprint) Days() []time.Time {
    start, end := TruncDay(s.StartDate), TruncDay(s.EffectiveDate)
    var out []time.Time
    for d := start; !d.After(end); d = d.AddDate(0, 0, 1) { out = append(out, d) }
    return out
}

// DayOf returns the calendar day of an instant in the configured time zone,
// as a UTC midnight value.
func DayOf(t time.Time) time.Time {
    y, m, d := t.In(time.Local).Date()
    return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TruncDay normalises a value that already denotes a date (as read from a
// date column) to UTC midnight.
func TruncDay(t time.Time) time.Time {
    y, m, d := t.UTC().Date()
    return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Raw change-log fields observed by the history builder.
const (
    FieldEstimatedHours = "estimated_hours"
    FieldStoryPoints    = "story_points"
    FieldRemainingHours = "remaining_hours"
    FieldSprint         = "fixed_version_id"
    FieldStatus         = "status_id"
    FieldTracker        = "tracker_id"
)
