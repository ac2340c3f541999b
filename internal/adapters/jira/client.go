/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/cenkalti/backoff/v4"
    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/rs/zerolog"
)

type Client struct {
    baseURL string
    token   string
    user    string
    pass    string
    http    *http.Client
    log     zerolog.Logger
    apiVer  string

    newBackOff func() backoff.BackOff
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL:    cfg.JiraBaseURL,
        token:      cfg.JiraPAT,
        user:       cfg.JiraUsername,
        pass:       cfg.JiraPassword,
        http:       &http.Client{Timeout: cfg.HTTPTimeout},
        log:        log,
        apiVer:     cfg.JiraAPIVersion,
        newBackOff: defaultBackOff,
    }
}

func defaultBackOff() backoff.BackOff {
    bo := backoff.NewExponentialBackOff()
    bo.InitialInterval = 300 * time.Millisecond
    bo.MaxElapsedTime = 30 * time.Second
    return backoff.WithMaxRetries(bo, 4)
}

// StatusError is a non-2xx answer from Jira.
type StatusError struct {
    Code int
    Body string
}

func (e *StatusError) Error() string { return fmt.Sprintf("jira api status=%d body=%s", e.Code, e.Body) }

func retryable(code int) bool { return code == http.StatusTooManyRequests || code >= 500 }

func (c *Client) apiPath(rest string) string {
    v := "3"
    if c.apiVer == "2" { v = "2" }
    return "/rest/api/" + v + rest
}

func (c *Client) apiURL(path string, q url.Values) string {
    base := strings.TrimRight(c.baseURL, "/")
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := base + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

// doJSON sends the request and decodes the answer into out. Transport errors,
// 429 and 5xx are retried with exponential backoff.
func (c *Client) doJSON(ctx context.Context, method, u string, body, out any) error {
    if c.baseURL == "" { return errors.New("jira: empty baseURL") }
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return err }
        payload = b
    }
    attempt := 0
    op := func() error {
        attempt++
        var r io.Reader
        if payload != nil { r = bytes.NewReader(payload) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return backoff.Permanent(err) }
        req.Header.Set("Accept", "application/json")
        if payload != nil { req.Header.Set("Content-Type", "application/json") }
        if c.token != "" {
            req.Header.Set("Authorization", "Bearer "+c.token)
        } else if c.user != "" && c.pass != "" {
            req.SetBasicAuth(c.user, c.pass)
        }
        resp, err := c.http.Do(req)
        if err != nil {
            c.log.Warn().Err(err).Int("attempt", attempt).Str("url", u).Msg("jira request failed")
            return err
        }
        defer resp.Body.Close()
        if resp.StatusCode >= 300 {
            b, _ := io.ReadAll(resp.Body)
            serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
            if retryable(resp.StatusCode) {
                c.log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Str("url", u).Msg("jira request retry")
                return serr
            }
            return backoff.Permanent(serr)
        }
        if err := json.NewDecoder(resp.Body).Decode(out); err != nil { return backoff.Permanent(err) }
        return nil
    }
    return backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx))
}

// Issue fetches a single issue with all fields and the first changelog page.
func (c *Client) Issue(ctx context.Context, key string) (*Issue, error) {
    if key == "" { return nil, errors.New("jira: empty issue key") }
    q := url.Values{}
    q.Set("fields", "*all")
    q.Set("expand", "changelog")
    var out Issue
    if err := c.doJSON(ctx, http.MethodGet, c.apiURL(c.apiPath("/issue/"+url.PathEscape(key)), q), nil, &out); err != nil { return nil, err }
    return &out, nil
}

// Changelog fetches one page of an issue's change log.
func (c *Client) Changelog(ctx context.Context, key string, startAt, max int) (*ChangelogPage, error) {
    if key == "" { return nil, errors.New("jira: empty issue key") }
    q := url.Values{}
    if startAt > 0 { q.Set("startAt", fmt.Sprint(startAt)) }
    if max > 0 { q.Set("maxResults", fmt.Sprint(max)) }
    var out ChangelogPage
    if err := c.doJSON(ctx, http.MethodGet, c.apiURL(c.apiPath("/issue/"+url.PathEscape(key)+"/changelog"), q), nil, &out); err != nil { return nil, err }
    return &out, nil
}

// IssueWithChangelog fetches the issue and pages through the rest of its
// change log when the embedded one is truncated.
func (c *Client) IssueWithChangelog(ctx context.Context, key string) (*Issue, error) {
    is, err := c.Issue(ctx, key)
    if err != nil { return nil, err }
    if len(is.Changelog.Histories) >= is.Changelog.Total { return is, nil }

    var all []History
    for start := 0; ; {
        page, err := c.Changelog(ctx, key, start, 100)
        if err != nil { return nil, fmt.Errorf("changelog of %s: %w", key, err) }
        all = append(all, page.Values...)
        start += len(page.Values)
        if len(page.Values) == 0 || page.IsLast || start >= page.Total { break }
    }
    is.Changelog.Histories = all
    is.Changelog.Total = len(all)
    return is, nil
}

// Search returns one page of issue keys matching jql.
func (c *Client) Search(ctx context.Context, jql string, startAt, max int) (*SearchPage, error) {
    if jql == "" { return nil, errors.New("jira: empty jql") }
    var out SearchPage
    if c.apiVer == "2" {
        q := url.Values{}
        q.Set("jql", jql)
        if startAt > 0 { q.Set("startAt", fmt.Sprint(startAt)) }
        if max > 0 { q.Set("maxResults", fmt.Sprint(max)) }
        q.Set("fields", "key")
        if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/rest/api/2/search", q), nil, &out); err != nil { return nil, err }
        return &out, nil
    }
    body := map[string]any{"jql": jql, "startAt": startAt, "maxResults": max, "fields": []string{"key"}}
    if err := c.doJSON(ctx, http.MethodPost, c.apiURL("/rest/api/3/search", nil), body, &out); err != nil { return nil, err }
    return &out, nil
}

// SearchKeys collects every issue key matching jql.
func (c *Client) SearchKeys(ctx context.Context, jql string) ([]string, error) {
    var keys []string
    for start := 0; ; {
        page, err := c.Search(ctx, jql, start, 100)
        if err != nil { return nil, err }
        for _, is := range page.Issues { keys = append(keys, is.Key) }
        start += len(page.Issues)
        if len(page.Issues) == 0 || start >= page.Total { break }
    }
    return keys, nil
}

// Statuses lists every workflow status.
func (c *Client) Statuses(ctx context.Context) ([]Status, error) {
    var out []Status
    if err := c.doJSON(ctx, http.MethodGet, c.apiURL(c.apiPath("/status"), nil), nil, &out); err != nil { return nil, err }
    return out, nil
}
