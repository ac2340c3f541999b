package jira

import (
    "encoding/json"
    "strings"
    "time"
)

const timeLayout = "2006-01-02T15:04:05.000-0700"

// Time decodes Jira timestamps, which carry a zone offset without a colon.
type Time struct{ time.Time }

func (t *Time) UnmarshalJSON(b []byte) error {
    s := strings.Trim(string(b), `"`)
    if s == "" || s == "null" { return nil }
    for _, layout := range []string{timeLayout, time.RFC3339Nano, time.DateOnly} {
        if v, err := time.Parse(layout, s); err == nil {
            t.Time = v
            return nil
        }
    }
    v, err := time.Parse(timeLayout, s)
    t.Time = v
    return err
}

type Issue struct {
    ID        string                     `json:"id"`
    Key       string                     `json:"key"`
    Fields    map[string]json.RawMessage `json:"fields"`
    Changelog Changelog                  `json:"changelog"`
}

type Changelog struct {
    StartAt    int       `json:"startAt"`
    MaxResults int       `json:"maxResults"`
    Total      int       `json:"total"`
    Histories  []History `json:"histories"`
}

type ChangelogPage struct {
    StartAt    int       `json:"startAt"`
    MaxResults int       `json:"maxResults"`
    Total      int       `json:"total"`
    IsLast     bool      `json:"isLast"`
    Values     []History `json:"values"`
}

type History struct {
    ID      string `json:"id"`
    Created Time   `json:"created"`
    Items   []Item `json:"items"`
}

type Item struct {
    Field      string  `json:"field"`
    FieldID    string  `json:"fieldId"`
    From       *string `json:"from"`
    FromString *string `json:"fromString"`
    To         *string `json:"to"`
    ToString   *string `json:"toString"`
}

type SearchPage struct {
    StartAt    int `json:"startAt"`
    MaxResults int `json:"maxResults"`
    Total      int `json:"total"`
    Issues     []struct {
        ID  string `json:"id"`
        Key string `json:"key"`
    } `json:"issues"`
}

type Status struct {
    ID             string `json:"id"`
    Name           string `json:"name"`
    StatusCategory struct {
        Key string `json:"key"`
    } `json:"statusCategory"`
}

type sprintField struct {
    ID        int64  `json:"id"`
    Name      string `json:"name"`
    State     string `json:"state"`
    StartDate *Time  `json:"startDate"`
    EndDate   *Time  `json:"endDate"`
}
