// Package apiclient talks to the alerts REST backend on behalf of dashboard users.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	loginPath   = "/api/auth/login"
	refreshPath = "/api/auth/refresh"
	logoutPath  = "/api/auth/logout"

	defaultTimeout = 15 * time.Second
	defaultLeeway  = 30 * time.Second
	maxUploadBytes = 32 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	UserAgent     string
	RefreshLeeway time.Duration
	Logger        *slog.Logger
}

// Client wraps the backend REST API. Credentials are taken from the request context.
type Client struct {
	rest   *resty.Client
	logger *slog.Logger
	leeway time.Duration
	now    func() time.Time
}

// New constructs a Client.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	leeway := cfg.RefreshLeeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "alertas-admin"
	}

	rest := resty.New()
	rest.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	rest.SetTimeout(timeout)
	rest.SetHeader("User-Agent", userAgent)
	rest.SetHeader("Accept", "application/json")
	rest.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("api response",
			slog.String("method", resp.Request.Method),
			slog.String("url", resp.Request.URL),
			slog.Int("status", resp.StatusCode()),
			slog.Duration("took", resp.Time()))
		return nil
	})

	return &Client{rest: rest, logger: logger, leeway: leeway, now: time.Now}
}

// Get fetches path with the raw query string and decodes the answer into out. The query
// is sent as given, keeping its parameter order.
func (c *Client) Get(ctx context.Context, path, query string, out any) error {
	if query != "" {
		path += "?" + query
	}
	return c.execute(ctx, http.MethodGet, path, nil, out)
}

// Post sends body as JSON.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.sendJSON(ctx, http.MethodPost, path, body, out)
}

// Put sends body as JSON.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.sendJSON(ctx, http.MethodPut, path, body, out)
}

// Delete removes the resource at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.execute(ctx, http.MethodDelete, path, nil, nil)
}

// Upload posts a multipart form carrying one file plus plain fields.
func (c *Client) Upload(ctx context.Context, path string, fields map[string]string, fileField, filename string, file io.Reader, out any) error {
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return fmt.Errorf("apiclient: read upload: %w", err)
	}
	if len(data) > maxUploadBytes {
		return &APIError{Status: http.StatusRequestEntityTooLarge, Message: "file too large"}
	}
	return c.execute(ctx, http.MethodPost, path, func(req *resty.Request) error {
		req.SetFormData(fields)
		req.SetFileReader(fileField, filename, bytes.NewReader(data))
		return nil
	}, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("apiclient: encode body: %w", err)
	}
	return c.execute(ctx, method, path, func(req *resty.Request) error {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(payload)
		return nil
	}, out)
}

// execute runs one request with the context's credentials. A 401 triggers a single token
// refresh and retry; prepare is invoked again for the retry.
func (c *Client) execute(ctx context.Context, method, path string, prepare func(*resty.Request) error, out any) error {
	creds := CredentialsFrom(ctx)
	c.refreshIfExpiring(ctx, creds)

	resp, sent, err := c.attempt(ctx, creds, method, path, prepare)
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusUnauthorized && creds != nil {
		if err := c.refresh(ctx, creds, sent); err != nil {
			return err
		}
		resp, _, err = c.attempt(ctx, creds, method, path, prepare)
		if err != nil {
			return err
		}
	}
	return decode(resp, out)
}

// attempt sends one request and reports the access token it carried.
func (c *Client) attempt(ctx context.Context, creds *Credentials, method, path string, prepare func(*resty.Request) error) (*resty.Response, string, error) {
	req := c.rest.R().SetContext(ctx)
	access, _ := creds.Tokens()
	if access != "" {
		req.SetAuthToken(access)
	}
	if prepare != nil {
		if err := prepare(req); err != nil {
			return nil, access, err
		}
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, access, fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	return resp, access, nil
}

func (c *Client) refreshIfExpiring(ctx context.Context, creds *Credentials) {
	access, refresh := creds.Tokens()
	if access == "" || refresh == "" {
		return
	}
	exp, ok := tokenExpiry(access)
	if !ok || exp.Sub(c.now()) > c.leeway {
		return
	}
	if err := c.refresh(ctx, creds, access); err != nil {
		c.logger.Warn("proactive token refresh", slog.Any("error", err))
	}
}

// refresh swaps the token pair unless another request already replaced stale.
func (c *Client) refresh(ctx context.Context, creds *Credentials, stale string) error {
	creds.refreshMu.Lock()
	defer creds.refreshMu.Unlock()

	access, refresh := creds.Tokens()
	if access != stale {
		return nil
	}
	if refresh == "" {
		return ErrUnauthorized
	}
	payload, err := json.Marshal(RefreshRequest{RefreshToken: refresh})
	if err != nil {
		return err
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(refreshPath)
	if err != nil {
		return fmt.Errorf("apiclient: refresh: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: refresh rejected with status %d", ErrUnauthorized, resp.StatusCode())
	}
	var out RefreshResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return fmt.Errorf("apiclient: decode refresh: %w", err)
	}
	if out.AccessToken == "" {
		return fmt.Errorf("%w: refresh returned no token", ErrUnauthorized)
	}
	creds.Update(out.AccessToken, out.RefreshToken)
	return nil
}

func decode(resp *resty.Response, out any) error {
	if !resp.IsSuccess() {
		return parseError(resp)
	}
	body := resp.Body()
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("apiclient: decode %s: %w", resp.Request.URL, err)
	}
	return nil
}

// Login exchanges email and password for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.Post(ctx, loginPath, LoginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: login returned no token", ErrUnauthorized)
	}
	return &out, nil
}

// Logout revokes the context's refresh token on the backend.
func (c *Client) Logout(ctx context.Context) error {
	_, refresh := CredentialsFrom(ctx).Tokens()
	return c.Post(ctx, logoutPath, RefreshRequest{RefreshToken: refresh}, nil)
}

// WithPage appends the page parameter to an encoded query string.
func WithPage(query string, page int) string {
	if page <= 1 {
		return query
	}
	p := "page=" + strconv.Itoa(page)
	if query == "" {
		return p
	}
	return query + "&" + p
}
