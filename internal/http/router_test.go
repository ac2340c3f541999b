package http

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "sync"
    "testing"
    "time"

    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/netavenir/redmine-backlogs/internal/domain"
    "github.com/netavenir/redmine-backlogs/internal/history"
    "github.com/netavenir/redmine-backlogs/internal/repo"
    "github.com/netavenir/redmine-backlogs/internal/services"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type stubService struct {
    mu       sync.Mutex
    rebuilds int
    done     chan struct{}
    err      error
}

func (s *stubService) RebuildAll(context.Context) (int, error) {
    s.mu.Lock()
    s.rebuilds++
    s.mu.Unlock()
    if s.done != nil { close(s.done) }
    return 3, s.err
}

func (s *stubService) RebuildIssue(_ context.Context, id int64) (domain.Record, error) {
    if s.err != nil { return domain.Record{}, s.err }
    return domain.Record{IssueID: id}, nil
}

func (s *stubService) SyncIssue(_ context.Context, id int64) (domain.Record, error) {
    if s.err != nil { return domain.Record{}, s.err }
    snap := domain.Snapshot{Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), Origin: domain.OriginDefault}
    snap.Set(domain.AttrRemainingHours, 3.0)
    return domain.Record{IssueID: id, History: []domain.Snapshot{snap}}, nil
}

func (s *stubService) IngestIssue(_ context.Context, key string) (domain.Record, error) {
    if s.err != nil { return domain.Record{}, s.err }
    return domain.Record{IssueID: 9}, nil
}

func (s *stubService) Timeline(_ context.Context, id int64) ([]domain.Snapshot, error) {
    if s.err != nil { return nil, s.err }
    return []domain.Snapshot{{Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), Origin: domain.OriginRebuild}}, nil
}

func (s *stubService) Burndown(_ context.Context, sprintID int64) (*services.Burndown, error) {
    if s.err != nil { return nil, s.err }
    return &services.Burndown{Sprint: domain.Sprint{ID: sprintID}, Rows: []services.BurndownRow{{IssueID: 1, Key: "BL-1"}}}, nil
}

func (s *stubService) GetLastRun(context.Context) (*repo.LastRun, error) {
    if s.err != nil { return nil, s.err }
    return &repo.LastRun{Kind: "rebuild_all", Issues: 3, Success: true}, nil
}

func serve(t *testing.T, svc service, method, path string) *httptest.ResponseRecorder {
    t.Helper()
    r := NewRouter(config.Config{AppEnv: "test"}, zerolog.Nop(), svc)
    w := httptest.NewRecorder()
    req := httptest.NewRequest(method, path, nil)
    r.ServeHTTP(w, req)
    return w
}

func body(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
    t.Helper()
    var out map[string]any
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
    return out
}

func TestHealthz(t *testing.T) {
    w := serve(t, &stubService{}, http.MethodGet, "/healthz")
    assert.Equal(t, http.StatusOK, w.Code)
    assert.Equal(t, true, body(t, w)["ok"])
}

func TestMetricsExposed(t *testing.T) {
    w := serve(t, &stubService{}, http.MethodGet, "/metrics")
    assert.Equal(t, http.StatusOK, w.Code)
    assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestSyncIssue(t *testing.T) {
    w := serve(t, &stubService{}, http.MethodPost, "/issues/42/sync")
    require.Equal(t, http.StatusOK, w.Code)
    assert.JSONEq(t, `{"issue_id":42,"history":[{"date":"2024-03-05","origin":"default","remaining_hours":3}]}`, w.Body.String())
}

func TestTimeline(t *testing.T) {
    w := serve(t, &stubService{}, http.MethodGet, "/issues/42/timeline")
    require.Equal(t, http.StatusOK, w.Code)
    assert.JSONEq(t, `{"issue_id":42,"days":[{"date":"2024-03-05","origin":"rebuild"}]}`, w.Body.String())
}

func TestBurndown(t *testing.T) {
    w := serve(t, &stubService{}, http.MethodGet, "/sprints/7/burndown")
    require.Equal(t, http.StatusOK, w.Code)
    b := body(t, w)
    assert.Equal(t, float64(7), b["sprint"].(map[string]any)["id"])
    assert.Len(t, b["rows"], 1)
}

func TestInvalidID(t *testing.T) {
    w := serve(t, &stubService{}, http.MethodGet, "/issues/abc/timeline")
    assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorMapping(t *testing.T) {
    cases := []struct {
        err  error
        code int
    }{
        {fmt.Errorf("issue 1: %w", services.ErrNotFound), http.StatusNotFound},
        {services.ErrRebuildRunning, http.StatusConflict},
        {fmt.Errorf("issue 1: %w", &history.ParseError{Field: "story_points", Value: "x"}), http.StatusUnprocessableEntity},
        {fmt.Errorf("db down"), http.StatusInternalServerError},
    }
    for _, tc := range cases {
        w := serve(t, &stubService{err: tc.err}, http.MethodPost, "/issues/1/rebuild")
        assert.Equal(t, tc.code, w.Code, tc.err.Error())
        assert.Equal(t, tc.err.Error(), body(t, w)["error"])
    }
}

func TestAdminRebuildRunsDetached(t *testing.T) {
    svc := &stubService{done: make(chan struct{})}
    w := serve(t, svc, http.MethodPost, "/admin/rebuild")
    assert.Equal(t, http.StatusAccepted, w.Code)
    select {
    case <-svc.done:
    case <-time.After(2 * time.Second):
        t.Fatal("rebuild not started")
    }
}

func TestLastRun(t *testing.T) {
    w := serve(t, &stubService{}, http.MethodGet, "/admin/last-run")
    require.Equal(t, http.StatusOK, w.Code)
    assert.Equal(t, "rebuild_all", body(t, w)["kind"])
}
