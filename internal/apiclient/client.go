package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/indeavr/znainik/internal/model"
)

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Message)
}

// Client is a thin wrapper over the push service HTTP API. It is used by
// the subscriber controller and by the admin CLI.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// New creates an API client.
func New(rawURL string, timeout time.Duration) (*Client, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("base url must include scheme")
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return &Client{
		baseURL: parsed,
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetToken sets the bearer token sent with admin calls.
func (c *Client) SetToken(token string) {
	c.token = strings.TrimSpace(token)
}

// VAPIDPublicKey fetches the key browsers subscribe with.
func (c *Client) VAPIDPublicKey(ctx context.Context) (string, error) {
	var out struct {
		PublicKey string `json:"publicKey"`
	}
	if err := c.do(ctx, http.MethodGet, "/vapid-public-key", nil, &out); err != nil {
		return "", err
	}
	return out.PublicKey, nil
}

// Subscribe saves sub on the server.
func (c *Client) Subscribe(ctx context.Context, sub model.PushSubscription) error {
	return c.do(ctx, http.MethodPost, "/subscribe", map[string]any{"subscription": sub}, nil)
}

// Unsubscribe removes sub from the server.
func (c *Client) Unsubscribe(ctx context.Context, sub model.PushSubscription) error {
	return c.do(ctx, http.MethodPost, "/unsubscribe", sub, nil)
}

// Login exchanges the admin password for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/admin/login", map[string]string{"password": password}, &out); err != nil {
		return "", err
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

// Verify reports whether the current token is still accepted.
func (c *Client) Verify(ctx context.Context) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/admin/verify", nil, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		return false, nil
	}
	return err == nil, err
}

// SendNotification broadcasts to every subscriber.
func (c *Client) SendNotification(ctx context.Context, req model.DispatchRequest) (*model.DispatchResult, error) {
	var out model.DispatchResult
	if err := c.do(ctx, http.MethodPost, "/admin/send-notification", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DirectNotification sends the diagnostic notification to the first subscriber.
func (c *Client) DirectNotification(ctx context.Context) (*model.DirectResult, error) {
	var out model.DirectResult
	if err := c.do(ctx, http.MethodPost, "/admin/direct-notification", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Subscriptions lists masked subscriptions.
func (c *Client) Subscriptions(ctx context.Context) ([]*model.SubscriptionView, error) {
	var out struct {
		Total     int                       `json:"total"`
		Endpoints []*model.SubscriptionView `json:"endpoints"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/subscriptions", nil, &out); err != nil {
		return nil, err
	}
	return out.Endpoints, nil
}

func (c *Client) do(ctx context.Context, method, p string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(p), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.decorate(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure model.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&failure)
		return &StatusError{StatusCode: resp.StatusCode, Message: failure.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) resolve(p string) string {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, p)
	return u.String()
}

func (c *Client) decorate(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
