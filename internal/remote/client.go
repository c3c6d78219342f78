// Package remote talks to the WoSport backend: it creates tracking sessions
// and appends positions to them.
package remote

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Capricia-k/WoSport/internal/auth"
	"github.com/Capricia-k/WoSport/internal/config"
	"github.com/Capricia-k/WoSport/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "backend returned " + strconv.Itoa(e.Code) + ": " + e.Body
}

type Client struct {
	baseURL string
	token   string
	userID  string
	timeout time.Duration
	now     func() time.Time
}

// NewClient resolves the user id from API_USER_ID, falling back to the
// claims of API_TOKEN.
func NewClient(cfg config.Config) (*Client, error) {
	if cfg.APIBaseURL == "" {
		return nil, errors.New("API_BASE_URL is required")
	}
	userID := cfg.APIUserID
	if userID == "" {
		if cfg.APIToken == "" {
			return nil, errors.New("API_USER_ID or API_TOKEN is required")
		}
		id, err := auth.UserIDFromToken(cfg.APIToken)
		if err != nil {
			return nil, err
		}
		userID = id
	}
	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		token:   cfg.APIToken,
		userID:  userID,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

type sessionRequest struct {
	Session struct {
		StartTime time.Time `json:"start_time"`
	} `json:"session"`
}

type sessionResponse struct {
	ID        json.RawMessage `json:"id"`
	StartTime time.Time       `json:"start_time"`
}

type positionRequest struct {
	Position struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"position"`
}

func (c *Client) CreateSession(ctx context.Context) (tracking.Session, error) {
	var req sessionRequest
	req.Session.StartTime = c.now().UTC()

	body, err := c.post(ctx, "/users/"+url.PathEscape(c.userID)+"/sessions", req)
	if err != nil {
		return tracking.Session{}, err
	}

	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return tracking.Session{}, errors.Wrap(err, "failed to decode session")
	}
	id := strings.Trim(string(resp.ID), `"`)
	if id == "" || id == "null" {
		return tracking.Session{}, errors.New("backend returned a session without id")
	}
	startedAt := resp.StartTime
	if startedAt.IsZero() {
		startedAt = req.Session.StartTime
	}
	return tracking.Session{ID: id, StartedAt: startedAt}, nil
}

func (c *Client) AppendPosition(ctx context.Context, sessionID string, latitude, longitude float64) error {
	var req positionRequest
	req.Position.Latitude = latitude
	req.Position.Longitude = longitude

	_, err := c.post(ctx, "/users/"+url.PathEscape(c.userID)+"/sessions/"+url.PathEscape(sessionID)+"/positions", req)
	return err
}

type result struct {
	code int
	body []byte
	errs []error
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.Post(c.baseURL + path).JSON(payload).Timeout(timeout)
	if c.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}

	ch := make(chan result, 1)
	go func() {
		code, body, errs := agent.Bytes()
		ch <- result{code: code, body: body, errs: errs}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if len(r.errs) > 0 {
			return nil, errors.Wrapf(r.errs[0], "POST %s", path)
		}
		if r.code < 200 || r.code >= 300 {
			return nil, &StatusError{Code: r.code, Body: string(r.body)}
		}
		return r.body, nil
	}
}
