package jira

import (
    "context"
    "errors"
    "net/http"
    "net/http/httptest"
    "sync/atomic"
    "testing"

    "github.com/cenkalti/backoff/v4"
    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
    t.Helper()
    srv := httptest.NewServer(h)
    t.Cleanup(srv.Close)
    c := NewClient(config.Config{JiraBaseURL: srv.URL, JiraPAT: "tok", JiraAPIVersion: "2"}, zerolog.Nop())
    c.newBackOff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2) }
    return c
}

func TestClient_RetriesServerErrors(t *testing.T) {
    var calls atomic.Int32
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
        if calls.Add(1) < 3 {
            w.WriteHeader(http.StatusServiceUnavailable)
            return
        }
        _, _ = w.Write([]byte(`[{"id":"1","name":"Open","statusCategory":{"key":"new"}}]`))
    })

    st, err := c.Statuses(context.Background())
    require.NoError(t, err)
    assert.Len(t, st, 1)
    assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
    var calls atomic.Int32
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        calls.Add(1)
        w.WriteHeader(http.StatusNotFound)
        _, _ = w.Write([]byte(`{"errorMessages":["Issue does not exist"]}`))
    })

    _, err := c.Issue(context.Background(), "BL-404")
    var serr *StatusError
    require.True(t, errors.As(err, &serr))
    assert.Equal(t, http.StatusNotFound, serr.Code)
    assert.Equal(t, int32(1), calls.Load())
}

func TestClient_GivesUpAfterRetries(t *testing.T) {
    var calls atomic.Int32
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        calls.Add(1)
        w.WriteHeader(http.StatusTooManyRequests)
    })

    _, err := c.Statuses(context.Background())
    require.Error(t, err)
    assert.Equal(t, int32(3), calls.Load())
}

func TestClient_IssueWithChangelogPages(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        switch r.URL.Path {
        case "/rest/api/2/issue/BL-1":
            assert.Equal(t, "changelog", r.URL.Query().Get("expand"))
            _, _ = w.Write([]byte(`{"id":"100","key":"BL-1","fields":{},
                "changelog":{"startAt":0,"maxResults":1,"total":3,"histories":[{"id":"1","created":"2024-03-02T10:00:00.000+0000","items":[]}]}}`))
        case "/rest/api/2/issue/BL-1/changelog":
            if r.URL.Query().Get("startAt") == "" {
                _, _ = w.Write([]byte(`{"startAt":0,"total":3,"isLast":false,"values":[
                    {"id":"1","created":"2024-03-02T10:00:00.000+0000","items":[]},
                    {"id":"2","created":"2024-03-03T10:00:00.000+0000","items":[]}]}`))
                return
            }
            assert.Equal(t, "2", r.URL.Query().Get("startAt"))
            _, _ = w.Write([]byte(`{"startAt":2,"total":3,"isLast":true,"values":[
                {"id":"3","created":"2024-03-04T10:00:00.000+0000","items":[]}]}`))
        default:
            t.Errorf("unexpected path %s", r.URL.Path)
        }
    })

    is, err := c.IssueWithChangelog(context.Background(), "BL-1")
    require.NoError(t, err)
    require.Len(t, is.Changelog.Histories, 3)
    assert.Equal(t, "3", is.Changelog.Histories[2].ID)
    assert.Equal(t, 4, is.Changelog.Histories[2].Created.Day())
}

func TestClient_SearchKeys(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "project = BL", r.URL.Query().Get("jql"))
        if r.URL.Query().Get("startAt") == "" {
            _, _ = w.Write([]byte(`{"startAt":0,"total":3,"issues":[{"key":"BL-1"},{"key":"BL-2"}]}`))
            return
        }
        _, _ = w.Write([]byte(`{"startAt":2,"total":3,"issues":[{"key":"BL-3"}]}`))
    })

    keys, err := c.SearchKeys(context.Background(), "project = BL")
    require.NoError(t, err)
    assert.Equal(t, []string{"BL-1", "BL-2", "BL-3"}, keys)
}

func TestClient_EmptyBaseURL(t *testing.T) {
    c := NewClient(config.Config{}, zerolog.Nop())
    _, err := c.Statuses(context.Background())
    assert.Error(t, err)
}
