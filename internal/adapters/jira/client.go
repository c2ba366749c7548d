/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/rs/zerolog"
)

const sprintPageSize = 50

var ErrNoActiveSprint = errors.New("jira: no active sprint found")

type Client struct {
	baseURL  string
	token    string
	user     string
	pass     string
	pageSize int
	http     *http.Client
	log      zerolog.Logger
	backoff  time.Duration
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	pageSize := cfg.JiraPageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{
		baseURL:  cfg.JiraBaseURL,
		token:    cfg.JiraPAT,
		user:     cfg.JiraEmail,
		pass:     cfg.JiraAPIToken,
		pageSize: pageSize,
		http:     &http.Client{Timeout: cfg.HTTPTimeout},
		log:      log,
		backoff:  300 * time.Millisecond,
	}
}

func (c *Client) apiURL(path string, q url.Values) string {
	base := strings.TrimRight(c.baseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := base + path
	if len(q) > 0 {
		u = u + "?" + q.Encode()
	}
	return u
}

// getJSON issues a GET and decodes the body into out. 429 and 5xx responses are retried with backoff.
func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	if c.baseURL == "" {
		return errors.New("jira: empty baseURL")
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		} else if c.user != "" && c.pass != "" {
			req.SetBasicAuth(c.user, c.pass)
		}
		retry, err := c.do(req, out)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("jira request failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(1<<attempt)):
		}
	}
	return lastErr
}

func (c *Client) do(req *http.Request, out any) (bool, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
		return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500, err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("jira: decode response: %w", err)
	}
	return false, nil
}

// ActiveSprint returns the first active sprint of the board.
func (c *Client) ActiveSprint(ctx context.Context, boardID int64) (domain.Sprint, error) {
	if boardID <= 0 {
		return domain.Sprint{}, errors.New("jira: invalid board id")
	}
	q := url.Values{}
	q.Set("state", "active")
	path := "/rest/agile/1.0/board/" + strconv.FormatInt(boardID, 10) + "/sprint"
	var page sprintPage
	if err := c.getJSON(ctx, c.apiURL(path, q), &page); err != nil {
		return domain.Sprint{}, err
	}
	if len(page.Values) == 0 {
		return domain.Sprint{}, ErrNoActiveSprint
	}
	return page.Values[0].toDomain(), nil
}

// Sprint fetches a single sprint by id.
func (c *Client) Sprint(ctx context.Context, id int64) (domain.Sprint, error) {
	if id <= 0 {
		return domain.Sprint{}, errors.New("jira: invalid sprint id")
	}
	var s sprintDTO
	if err := c.getJSON(ctx, c.apiURL("/rest/agile/1.0/sprint/"+strconv.FormatInt(id, 10), nil), &s); err != nil {
		return domain.Sprint{}, err
	}
	return s.toDomain(), nil
}

// BoardSprints lists every sprint of the board in the order Jira returns them.
func (c *Client) BoardSprints(ctx context.Context, boardID int64) ([]domain.Sprint, error) {
	if boardID <= 0 {
		return nil, errors.New("jira: invalid board id")
	}
	path := "/rest/agile/1.0/board/" + strconv.FormatInt(boardID, 10) + "/sprint"
	var out []domain.Sprint
	start := 0
	for {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(start))
		q.Set("maxResults", strconv.Itoa(sprintPageSize))
		var page sprintPage
		if err := c.getJSON(ctx, c.apiURL(path, q), &page); err != nil {
			return nil, err
		}
		for _, s := range page.Values {
			out = append(out, s.toDomain())
		}
		start += len(page.Values)
		if page.IsLast || len(page.Values) == 0 || (page.Total > 0 && start >= page.Total) {
			break
		}
	}
	return out, nil
}

// SprintIssues returns all issues of the sprint with their changelog expanded.
func (c *Client) SprintIssues(ctx context.Context, sprintID string) ([]domain.Issue, error) {
	if strings.TrimSpace(sprintID) == "" {
		return nil, errors.New("jira: empty sprint id")
	}
	path := "/rest/agile/1.0/sprint/" + url.PathEscape(sprintID) + "/issue"
	var out []domain.Issue
	start := 0
	for {
		q := url.Values{}
		q.Set("expand", "changelog")
		q.Set("fields", "summary,status,issuetype,created")
		q.Set("startAt", strconv.Itoa(start))
		q.Set("maxResults", strconv.Itoa(c.pageSize))
		var page issuePage
		if err := c.getJSON(ctx, c.apiURL(path, q), &page); err != nil {
			return nil, err
		}
		for _, it := range page.Issues {
			// the embedded changelog is truncated for long histories
			if it.Changelog.Total > len(it.Changelog.Histories) {
				hs, err := c.changelog(ctx, it.Key)
				if err != nil {
					return nil, err
				}
				it.Changelog.Histories = hs
			}
			out = append(out, it.toDomain())
		}
		start += len(page.Issues)
		if len(page.Issues) == 0 || start >= page.Total {
			break
		}
	}
	c.log.Debug().Str("sprint", sprintID).Int("issues", len(out)).Msg("jira sprint issues fetched")
	return out, nil
}

// changelog pages through the complete history of one issue.
func (c *Client) changelog(ctx context.Context, key string) ([]historyDTO, error) {
	path := "/rest/api/2/issue/" + url.PathEscape(key) + "/changelog"
	var out []historyDTO
	start := 0
	for {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(start))
		q.Set("maxResults", strconv.Itoa(c.pageSize))
		var page changelogPage
		if err := c.getJSON(ctx, c.apiURL(path, q), &page); err != nil {
			return nil, fmt.Errorf("jira: changelog of %s: %w", key, err)
		}
		out = append(out, page.Values...)
		start += len(page.Values)
		if page.IsLast || len(page.Values) == 0 || start >= page.Total {
			break
		}
	}
	c.log.Debug().Str("issue", key).Int("histories", len(out)).Msg("jira changelog fetched")
	return out, nil
}
