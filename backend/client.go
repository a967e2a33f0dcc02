// Package backend is the HTTP/JSON client for the endpoints polled by pollcache.
package backend

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

	"github.com/goforj/pollcache"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var (
	// ErrMalformedResponse is returned when a response body is not the expected JSON.
	ErrMalformedResponse = errors.New("backend: malformed response")
	// ErrUnsuccessful is returned when the backend answers with success=false.
	ErrUnsuccessful = errors.New("backend: request unsuccessful")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Action string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s returned status %d", e.Action, e.Code)
}

const (
	actionNotifications      = "notifications"
	actionMessages           = "messages"
	actionAdminNotifications = "admin_notifications_unread_count"
	actionGetUser            = "get_user"
	actionVerificationStatus = "status"

	userIDHeader   = "X-User-Id"
	defaultTimeout = 15 * time.Second
)

// Endpoints holds the URL of every endpoint. Empty fields default to paths under the
// base URL.
type Endpoints struct {
	Notifications string
	Messages      string
	Admin         string
	User          string
	Verification  string
}

func (e Endpoints) withDefaults(base string) Endpoints {
	base = strings.TrimRight(base, "/")
	if e.Notifications == "" {
		e.Notifications = base + "/notifications"
	}
	if e.Messages == "" {
		e.Messages = base + "/messages"
	}
	if e.Admin == "" {
		e.Admin = base + "/admin/notifications"
	}
	if e.User == "" {
		e.User = base + "/user"
	}
	if e.Verification == "" {
		e.Verification = base + "/verification"
	}
	return e
}

// Client talks to the backend. It implements pollcache.Backend.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	logger     logrus.FieldLogger
}

var _ pollcache.Backend = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithEndpoints overrides individual endpoint URLs.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		c.endpoints = e
	}
}

// WithLogger sets the request logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.endpoints = c.endpoints.withDefaults(baseURL)
	return c
}

// UnreadNotifications returns the unread notification count of userID.
func (c *Client) UnreadNotifications(ctx context.Context, userID string) (int, error) {
	return c.unreadCount(ctx, c.endpoints.Notifications, actionNotifications, userID)
}

// UnreadMessages returns the unread private message count of userID.
func (c *Client) UnreadMessages(ctx context.Context, userID string) (int, error) {
	return c.unreadCount(ctx, c.endpoints.Messages, actionMessages, userID)
}

// AdminUnreadNotifications returns the unread admin notification count. Only admins
// get a meaningful answer.
func (c *Client) AdminUnreadNotifications(ctx context.Context, userID string) (int, error) {
	return c.unreadCount(ctx, c.endpoints.Admin, actionAdminNotifications, userID)
}

// GetUser loads the profile of userID.
func (c *Client) GetUser(ctx context.Context, userID string) (*pollcache.Profile, error) {
	payload, err := json.Marshal(map[string]string{"action": actionGetUser})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, c.endpoints.User, actionGetUser, userID, payload)
	if err != nil {
		return nil, err
	}
	success := gjson.GetBytes(body, "success")
	if !success.Exists() {
		return nil, fmt.Errorf("%s: %w", actionGetUser, ErrMalformedResponse)
	}
	if !success.Bool() {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", actionGetUser, ErrUnsuccessful)
		}
		return nil, fmt.Errorf("%s: %w: %s", actionGetUser, ErrUnsuccessful, msg)
	}
	user := gjson.GetBytes(body, "user")
	if !user.IsObject() {
		return nil, fmt.Errorf("%s: missing user: %w", actionGetUser, ErrMalformedResponse)
	}
	var profile pollcache.Profile
	if err := json.Unmarshal([]byte(user.Raw), &profile); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", actionGetUser, ErrMalformedResponse, err)
	}
	return &profile, nil
}

// VerificationStatus loads the identity verification status of userID.
func (c *Client) VerificationStatus(ctx context.Context, userID string) (*pollcache.VerificationStatus, error) {
	body, err := c.do(ctx, http.MethodGet, c.endpoints.Verification, actionVerificationStatus, userID, nil)
	if err != nil {
		return nil, err
	}
	verified := gjson.GetBytes(body, "is_verified")
	if verified.Type != gjson.True && verified.Type != gjson.False {
		return nil, fmt.Errorf("%s: %w", actionVerificationStatus, ErrMalformedResponse)
	}
	status := &pollcache.VerificationStatus{IsVerified: verified.Bool()}
	if req := gjson.GetBytes(body, "request"); req.IsObject() {
		var vr pollcache.VerificationRequest
		if err := json.Unmarshal([]byte(req.Raw), &vr); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", actionVerificationStatus, ErrMalformedResponse, err)
		}
		status.Request = &vr
	}
	return status, nil
}

func (c *Client) unreadCount(ctx context.Context, endpoint, action, userID string) (int, error) {
	body, err := c.do(ctx, http.MethodGet, endpoint, action, userID, nil)
	if err != nil {
		return 0, err
	}
	count := gjson.GetBytes(body, "unread_count")
	if count.Type != gjson.Number {
		return 0, fmt.Errorf("%s: %w", action, ErrMalformedResponse)
	}
	return int(count.Int()), nil
}

// do sends one request and returns the body of a 2xx JSON response.
func (c *Client) do(ctx context.Context, method, endpoint, action, userID string, payload []byte) ([]byte, error) {
	target, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	var reader io.Reader
	if method == http.MethodGet {
		q := target.Query()
		q.Set("action", action)
		target.RawQuery = q.Encode()
	} else {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(userIDHeader, userID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: send request: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", action, err)
	}
	c.logger.WithFields(logrus.Fields{
		"action":   action,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Action: action, Code: resp.StatusCode}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: %w", action, ErrMalformedResponse)
	}
	return body, nil
}
