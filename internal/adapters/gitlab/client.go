/* Copyright (c) 2025 A. Karpov
 * SPDX-License-Identifier: BSD-3-Clause */
package gitlab

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

	"github.com/rs/zerolog"

	"github.com/akarpov/planboard/internal/config"
	"github.com/akarpov/planboard/internal/domain"
)

// Client reads issues, iterations and members from the GitLab REST API.
type Client struct {
	baseURL string
	token   string
	project string
	group   string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.GitLabBaseURL,
		token:   cfg.GitLabToken,
		project: cfg.GitLabProjectID,
		group:   cfg.GitLabGroupID,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		log:     log,
	}
}

func (c *Client) apiURL(path string, q url.Values) string {
	base := strings.TrimRight(c.baseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := base + "/api/v4" + path
	if len(q) > 0 {
		u = u + "?" + q.Encode()
	}
	return u
}

// doJSON issues one request with up to three attempts, retrying 429 and
// 5xx. The decoded body lands in out.
func (c *Client) doJSON(ctx context.Context, method, u string, out any) (http.Header, error) {
	if c.baseURL == "" {
		return nil, errors.New("gitlab: empty baseURL")
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return nil, err
		}
		if c.token != "" {
			req.Header.Set("PRIVATE-TOKEN", c.token)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
		} else {
			b, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = readErr
			} else if resp.StatusCode >= 300 {
				if resp.StatusCode == 429 || resp.StatusCode >= 500 {
					lastErr = fmt.Errorf("gitlab api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
				} else {
					return nil, fmt.Errorf("gitlab api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
				}
			} else {
				if out != nil {
					if err := json.Unmarshal(b, out); err != nil {
						return nil, err
					}
				}
				return resp.Header, nil
			}
		}
		time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
	}
	return nil, lastErr
}

// paged walks x-next-page until GitLab stops advancing it.
func (c *Client) paged(ctx context.Context, path string, q url.Values, visit func(raw json.RawMessage) error) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("per_page", "100")
	page := "1"
	for page != "" {
		q.Set("page", page)
		var batch []json.RawMessage
		hdr, err := c.doJSON(ctx, http.MethodGet, c.apiURL(path, q), &batch)
		if err != nil {
			return err
		}
		for _, raw := range batch {
			if err := visit(raw); err != nil {
				return err
			}
		}
		next := hdr.Get("x-next-page")
		if next == page {
			break
		}
		page = next
	}
	return nil
}

type wireIssue struct {
	ID        int64      `json:"id"`
	IID       int64      `json:"iid"`
	State     string     `json:"state"`
	Labels    []string   `json:"labels"`
	Weight    *int       `json:"weight"`
	CreatedAt *time.Time `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at"`
	DueDate   string     `json:"due_date"`
	Assignee  *wireUser  `json:"assignee"`
	Iteration *struct {
		ID        int64  `json:"id"`
		Title     string `json:"title"`
		StartDate string `json:"start_date"`
		DueDate   string `json:"due_date"`
	} `json:"iteration"`
}

type wireUser struct {
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	State     string `json:"state"`
}

const wireDate = "2006-01-02"

func parseDay(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(wireDate, s, time.Local)
	if err != nil {
		return nil
	}
	return &t
}

// Issues fetches the project's issues, all states, mapped onto the domain
// shape. The primary assignee is the single assignee field.
func (c *Client) Issues(ctx context.Context) ([]domain.Issue, error) {
	if c.project == "" {
		return nil, errors.New("gitlab: empty project id")
	}
	path := "/projects/" + url.PathEscape(c.project) + "/issues"
	var out []domain.Issue
	err := c.paged(ctx, path, url.Values{"scope": {"all"}}, func(raw json.RawMessage) error {
		var wi wireIssue
		if err := json.Unmarshal(raw, &wi); err != nil {
			return err
		}
		is := domain.Issue{
			ID:        wi.ID,
			IID:       wi.IID,
			State:     wi.State,
			Labels:    wi.Labels,
			Weight:    wi.Weight,
			CreatedAt: wi.CreatedAt,
			ClosedAt:  wi.ClosedAt,
			DueDay:    parseDay(wi.DueDate),
		}
		if wi.Assignee != nil {
			is.Assignee = wi.Assignee.Username
		}
		if wi.Iteration != nil {
			is.IterationID = strconv.FormatInt(wi.Iteration.ID, 10)
			is.IterationName = wi.Iteration.Title
		}
		out = append(out, is)
		return nil
	})
	return out, err
}

// Iterations fetches the group's iteration cadence; entries without both
// dates are dropped since the planner cannot place them on the calendar.
func (c *Client) Iterations(ctx context.Context) ([]domain.Iteration, error) {
	scope := c.group
	path := "/groups/" + url.PathEscape(scope) + "/iterations"
	if scope == "" {
		scope = c.project
		path = "/projects/" + url.PathEscape(scope) + "/iterations"
	}
	if scope == "" {
		return nil, errors.New("gitlab: no group or project id for iterations")
	}
	var out []domain.Iteration
	err := c.paged(ctx, path, url.Values{"state": {"all"}}, func(raw json.RawMessage) error {
		var wi struct {
			ID        int64  `json:"id"`
			Title     string `json:"title"`
			StartDate string `json:"start_date"`
			DueDate   string `json:"due_date"`
		}
		if err := json.Unmarshal(raw, &wi); err != nil {
			return err
		}
		start, due := parseDay(wi.StartDate), parseDay(wi.DueDate)
		if start == nil || due == nil {
			return nil
		}
		out = append(out, domain.Iteration{
			ID:       strconv.FormatInt(wi.ID, 10),
			Name:     wi.Title,
			StartDay: *start,
			DueDay:   *due,
		})
		return nil
	})
	return out, err
}

// Members fetches project members, active accounts only.
func (c *Client) Members(ctx context.Context) ([]domain.TeamMember, error) {
	if c.project == "" {
		return nil, errors.New("gitlab: empty project id")
	}
	path := "/projects/" + url.PathEscape(c.project) + "/members/all"
	var out []domain.TeamMember
	err := c.paged(ctx, path, nil, func(raw json.RawMessage) error {
		var wu wireUser
		if err := json.Unmarshal(raw, &wu); err != nil {
			return err
		}
		if wu.State != "" && wu.State != "active" {
			return nil
		}
		out = append(out, domain.TeamMember{
			Username:    wu.Username,
			DisplayName: wu.Name,
			AvatarURL:   wu.AvatarURL,
		})
		return nil
	})
	return out, err
}
