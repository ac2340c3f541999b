/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import (
    "encoding/json"
    "errors"
    "fmt"
    "time"
)

// Attr identifies one tracked attribute of a snapshot.
type Attr uint16

const (
    AttrEstimatedHours Attr = 1 << iota
    AttrStoryPoints
    AttrRemainingHours
    AttrTracker
    AttrSprint
    AttrStatusID
    AttrStatusOpen
    AttrStatusSuccess
    AttrHours

    AllAttrs = AttrEstimatedHours | AttrStoryPoints | AttrRemainingHours | AttrTracker |
        AttrSprint | AttrStatusID | AttrStatusOpen | AttrStatusSuccess | AttrHours
)

var attrNames = map[Attr]string{
    AttrEstimatedHours: "estimated_hours",
    AttrStoryPoints:    "story_points",
    AttrRemainingHours: "remaining_hours",
    AttrTracker:        "tracker",
    AttrSprint:         "sprint",
    AttrStatusID:       "status_id",
    AttrStatusOpen:     "status_open",
    AttrStatusSuccess:  "status_success",
    AttrHours:          "hours",
}

func (a Attr) String() string {
    if n, ok := attrNames[a]; ok { return n }
    return fmt.Sprintf("attr(%d)", uint16(a))
}

type Origin string

const (
    OriginRebuild Origin = "rebuild"
    OriginDefault Origin = "default"
    OriginFilter  Origin = "filter"
)

// Tracker is the semantic type of an issue. The empty value means none.
type Tracker string

const (
    TrackerNone  Tracker = ""
    TrackerStory Tracker = "story"
    TrackerTask  Tracker = "task"
)

// Snapshot holds an issue's attribute values for one day. Known records which
// attributes have been set, so an attribute observed as empty is told apart
// from one never observed.
type Snapshot struct {
    Date           time.Time `msgpack:"date"`
    Origin         Origin    `msgpack:"origin"`
    Known          Attr      `msgpack:"known"`
    EstimatedHours *float64  `msgpack:"estimated_hours"`
    StoryPoints    *float64  `msgpack:"story_points"`
    RemainingHours *float64  `msgpack:"remaining_hours"`
    Tracker        Tracker   `msgpack:"tracker"`
    Sprint         *int64    `msgpack:"sprint"`
    StatusID       *int64    `msgpack:"status_id"`
    StatusOpen     *bool     `msgpack:"status_open"`
    StatusSuccess  *bool     `msgpack:"status_success"`
    Hours          *float64  `msgpack:"hours"`
}

func (s Snapshot) Has(a Attr) bool { return s.Known&a == a }

func (s Snapshot) Complete() bool { return s.Has(AllAttrs) }

// Open reports whether the snapshot is known to be in an open status.
func (s Snapshot) Open() bool { return s.StatusOpen != nil && *s.StatusOpen }

// Set stores v under a and marks a as known. v may be nil, a value or a
// pointer of the attribute's type.
func (s *Snapshot) Set(a Attr, v any) {
    s.Known |= a
    switch a {
    case AttrEstimatedHours:
        s.EstimatedHours = floatPtr(v)
    case AttrStoryPoints:
        s.StoryPoints = floatPtr(v)
    case AttrRemainingHours:
        s.RemainingHours = floatPtr(v)
    case AttrHours:
        s.Hours = floatPtr(v)
    case AttrTracker:
        t, _ := v.(Tracker)
        s.Tracker = t
    case AttrSprint:
        s.Sprint = intPtr(v)
    case AttrStatusID:
        s.StatusID = intPtr(v)
    case AttrStatusOpen:
        s.StatusOpen = boolPtr(v)
    case AttrStatusSuccess:
        s.StatusSuccess = boolPtr(v)
    }
}

// Clone returns a copy sharing no memory with s.
func (s Snapshot) Clone() Snapshot {
    c := s
    c.EstimatedHours = floatPtr(s.EstimatedHours)
    c.StoryPoints = floatPtr(s.StoryPoints)
    c.RemainingHours = floatPtr(s.RemainingHours)
    c.Hours = floatPtr(s.Hours)
    c.Sprint = intPtr(s.Sprint)
    c.StatusID = intPtr(s.StatusID)
    c.StatusOpen = boolPtr(s.StatusOpen)
    c.StatusSuccess = boolPtr(s.StatusSuccess)
    return c
}

// MarshalJSON emits only the known attributes.
func (s Snapshot) MarshalJSON() ([]byte, error) {
    out := map[string]any{"date": s.Date.Format(time.DateOnly), "origin": s.Origin}
    put := func(a Attr, v any) { if s.Has(a) { out[a.String()] = v } }
    put(AttrEstimatedHours, s.EstimatedHours)
    put(AttrStoryPoints, s.StoryPoints)
    put(AttrRemainingHours, s.RemainingHours)
    if s.Has(AttrTracker) {
        if s.Tracker == TrackerNone { out["tracker"] = nil } else { out["tracker"] = s.Tracker }
    }
    put(AttrSprint, s.Sprint)
    put(AttrStatusID, s.StatusID)
    put(AttrStatusOpen, s.StatusOpen)
    put(AttrStatusSuccess, s.StatusSuccess)
    put(AttrHours, s.Hours)
    return json.Marshal(out)
}

var ErrMalformedHistory = errors.New("malformed history")

// Record is the stored, day-ordered snapshot sequence of one issue.
type Record struct {
    IssueID int64      `msgpack:"issue_id" json:"issue_id"`
    History []Snapshot `msgpack:"history" json:"history"`
}

// Validate checks that snapshot dates strictly increase.
func (r Record) Validate() error {
    for i := 1; i < len(r.History); i++ {
        if !r.History[i].Date.After(r.History[i-1].Date) {
            return fmt.Errorf("%w: issue %d: %s follows %s", ErrMalformedHistory, r.IssueID,
                r.History[i].Date.Format(time.DateOnly), r.History[i-1].Date.Format(time.DateOnly))
        }
    }
    return nil
}

func floatPtr(v any) *float64 {
    switch x := v.(type) {
    case float64:
        return &x
    case *float64:
        if x == nil { return nil }
        f := *x
        return &f
    }
    return nil
}

func intPtr(v any) *int64 {
    switch x := v.(type) {
    case int64:
        return &x
    case *int64:
        if x == nil { return nil }
        n := *x
        return &n
    }
    return nil
}

func boolPtr(v any) *bool {
    switch x := v.(type) {
    case bool:
        return &x
    case *bool:
        if x == nil { return nil }
        b := *x
        return &b
    }
    return nil
}
