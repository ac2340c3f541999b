package jira

import (
    "encoding/json"
    "fmt"
    "sort"
    "strconv"
    "strings"

    "github.com/netavenir/redmine-backlogs/internal/domain"
)

// Mapper turns Jira issues into the tracked issue shape and change log.
type Mapper struct {
    StoryPointsField string
    SprintField      string
}

// Mapped is a Jira issue translated for storage. Issue carries no id, root or
// depth; ParentKey names the parent issue when there is one.
type Mapped struct {
    Issue     domain.Issue
    ParentKey string
    Sprints   []domain.Sprint
}

type idRef struct {
    ID  string `json:"id"`
    Key string `json:"key"`
}

func (m Mapper) Issue(is *Issue) (Mapped, error) {
    var out Mapped
    iss := domain.Issue{Key: is.Key}

    var project, status, issueType, parent idRef
    if err := m.field(is, "project", &project); err != nil { return out, err }
    if err := m.field(is, "status", &status); err != nil { return out, err }
    if err := m.field(is, "issuetype", &issueType); err != nil { return out, err }
    if err := m.field(is, "parent", &parent); err != nil { return out, err }
    iss.Project = project.Key
    out.ParentKey = parent.Key

    sid, err := strconv.ParseInt(status.ID, 10, 64)
    if err != nil { return out, fmt.Errorf("jira: issue %s status id %q: %w", is.Key, status.ID, err) }
    iss.StatusID = sid
    if tid, err := strconv.ParseInt(issueType.ID, 10, 64); err == nil { iss.TrackerID = &tid }

    var orig, remaining, points *float64
    if err := m.field(is, "timeoriginalestimate", &orig); err != nil { return out, err }
    if err := m.field(is, "timeestimate", &remaining); err != nil { return out, err }
    if m.StoryPointsField != "" {
        if err := m.field(is, m.StoryPointsField, &points); err != nil { return out, err }
    }
    iss.EstimatedHours = secondsToHours(orig)
    iss.RemainingHours = secondsToHours(remaining)
    iss.StoryPoints = points

    var created, updated Time
    if err := m.field(is, "created", &created); err != nil { return out, err }
    if err := m.field(is, "updated", &updated); err != nil { return out, err }
    iss.CreatedOn, iss.UpdatedOn = created.Time, updated.Time

    if m.SprintField != "" {
        sprints, err := m.sprints(is)
        if err != nil { return out, err }
        for _, s := range sprints {
            if s.StartDate == nil || s.EndDate == nil { continue }
            out.Sprints = append(out.Sprints, domain.Sprint{
                ID: s.ID, Name: s.Name,
                StartDate: domain.DayOf(s.StartDate.Time), EffectiveDate: domain.DayOf(s.EndDate.Time),
            })
        }
        if n := len(sprints); n > 0 {
            id := sprints[n-1].ID
            iss.SprintID = &id
        }
    }
    out.Issue = iss
    return out, nil
}

func (m Mapper) field(is *Issue, name string, dst any) error {
    raw, ok := is.Fields[name]
    if !ok || len(raw) == 0 || string(raw) == "null" { return nil }
    if err := json.Unmarshal(raw, dst); err != nil { return fmt.Errorf("jira: issue %s field %s: %w", is.Key, name, err) }
    return nil
}

// sprints reads the sprint field, either as objects or in the legacy
// "...Sprint@1a2b[id=12,name=...]" string form.
func (m Mapper) sprints(is *Issue) ([]sprintField, error) {
    raw, ok := is.Fields[m.SprintField]
    if !ok || string(raw) == "null" { return nil, nil }
    var objs []sprintField
    if err := json.Unmarshal(raw, &objs); err == nil { return objs, nil }
    var legacy []string
    if err := json.Unmarshal(raw, &legacy); err != nil { return nil, fmt.Errorf("jira: issue %s sprint field: %w", is.Key, err) }
    for _, s := range legacy {
        if id, ok := legacyAttr(s, "id"); ok {
            n, err := strconv.ParseInt(id, 10, 64)
            if err != nil { continue }
            name, _ := legacyAttr(s, "name")
            objs = append(objs, sprintField{ID: n, Name: name})
        }
    }
    return objs, nil
}

func legacyAttr(s, key string) (string, bool) {
    i := strings.Index(s, "["+key+"=")
    if i < 0 { i = strings.Index(s, ","+key+"=") }
    if i < 0 { return "", false }
    v := s[i+len(key)+2:]
    if j := strings.IndexAny(v, ",]"); j >= 0 { v = v[:j] }
    return v, true
}

// Events maps change-log items on tracked properties to change events of
// issueID, oldest first. Other items are dropped.
func (m Mapper) Events(issueID int64, histories []History) []domain.Event {
    var out []domain.Event
    for _, h := range histories {
        for _, it := range h.Items {
            field, from, to, ok := m.item(it)
            if !ok { continue }
            out = append(out, domain.Event{
                IssueID: issueID, Kind: domain.EventKindAttr, Field: field,
                FromVal: from, ToVal: to, At: h.Created.Time,
            })
        }
    }
    sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
    return out
}

func (m Mapper) item(it Item) (string, *string, *string, bool) {
    id := it.FieldID
    if id == "" { id = it.Field }
    switch {
    case id == "timeoriginalestimate":
        return domain.FieldEstimatedHours, secondsString(it.From), secondsString(it.To), true
    case id == "timeestimate":
        return domain.FieldRemainingHours, secondsString(it.From), secondsString(it.To), true
    case (m.StoryPointsField != "" && id == m.StoryPointsField) || it.Field == "Story Points":
        return domain.FieldStoryPoints, blank(it.FromString), blank(it.ToString), true
    case (m.SprintField != "" && id == m.SprintField) || it.Field == "Sprint":
        return domain.FieldSprint, lastID(it.From), lastID(it.To), true
    case id == "status":
        return domain.FieldStatus, blank(it.From), blank(it.To), true
    case id == "issuetype":
        return domain.FieldTracker, blank(it.From), blank(it.To), true
    }
    return "", nil, nil, false
}

// Statuses maps Jira statuses to the registry. The "done" category is closed;
// the lowest-id status of the "new" category becomes the default.
func Statuses(in []Status) ([]domain.Status, error) {
    out := make([]domain.Status, 0, len(in))
    def := -1
    for _, s := range in {
        id, err := strconv.ParseInt(s.ID, 10, 64)
        if err != nil { return nil, fmt.Errorf("jira: status id %q: %w", s.ID, err) }
        st := domain.Status{ID: id, Name: s.Name, IsClosed: s.StatusCategory.Key == "done"}
        if st.IsClosed {
            r := 100
            st.DefaultDoneRatio = &r
        }
        out = append(out, st)
        if s.StatusCategory.Key == "new" && (def < 0 || id < out[def].ID) { def = len(out) - 1 }
    }
    if def >= 0 { out[def].IsDefault = true }
    return out, nil
}

func blank(s *string) *string {
    if s == nil || strings.TrimSpace(*s) == "" { return nil }
    v := strings.TrimSpace(*s)
    return &v
}

// secondsString converts a seconds value to hours. Unparsable values pass
// through so the history build reports them.
func secondsString(s *string) *string {
    v := blank(s)
    if v == nil { return nil }
    secs, err := strconv.ParseFloat(*v, 64)
    if err != nil { return v }
    h := strconv.FormatFloat(secs/3600, 'f', -1, 64)
    return &h
}

func secondsToHours(secs *float64) *float64 {
    if secs == nil { return nil }
    h := *secs / 3600
    return &h
}

// lastID returns the last entry of a comma separated id list.
func lastID(s *string) *string {
    v := blank(s)
    if v == nil { return nil }
    parts := strings.Split(*v, ",")
    return blank(&parts[len(parts)-1])
}
