// Package api is the client for the REST backend that owns the console's
// records. Every response uses the envelope
// {message, data, errors}; failures are mapped to the typed errors in
// errors.go.
package api

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

	"gestionale/internal/core"
	"gestionale/internal/log"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 1 << 20

// Observer is told about every completed backend request. status is 0
// when no response was received.
type Observer func(method, endpoint string, status int, elapsed time.Duration)

// ClientConfig configures New.
type ClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *log.Logger
	Observer Observer
	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

// Client talks to the backend. A Client is safe for concurrent use;
// WithToken returns a copy bound to one session.
type Client struct {
	base     *url.URL
	http     *http.Client
	token    string
	logger   *log.Logger
	observer Observer
}

type envelope struct {
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  map[string][]string `json:"errors"`
}

// New builds a client for the backend rooted at cfg.BaseURL.
func New(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &Client{
		base:     base,
		http:     hc,
		logger:   logger.WithComponent(log.ComponentAPI),
		observer: cfg.Observer,
	}, nil
}

// WithToken returns a copy of c that sends token as bearer credentials.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token returns the bearer token attached to requests.
func (c *Client) Token() string { return c.token }

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends req and decodes the envelope. When out is non-nil the data
// member is decoded into it. The envelope message is returned.
func (c *Client) do(req *http.Request, path string, out any) (string, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(req.Method, path, 0, elapsed)
		c.logger.WarnContext(req.Context(), "Backend request failed",
			log.FieldMethod, req.Method,
			log.FieldPath, path,
			log.FieldDuration, elapsed.Milliseconds(),
			log.FieldError, err)
		return "", &NetworkError{Op: req.Method + " " + path, Err: err}
	}
	defer resp.Body.Close()
	c.observe(req.Method, path, resp.StatusCode, elapsed)
	c.logger.DebugContext(req.Context(), "Backend request completed",
		log.FieldMethod, req.Method,
		log.FieldPath, path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, elapsed.Milliseconds())

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}

	var env envelope
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		// Non-JSON error pages leave env zero.
		_ = json.Unmarshal(raw, &env)
		if len(env.Errors) > 0 {
			return "", &ValidationError{Status: resp.StatusCode, Message: env.Message, Fields: env.Errors}
		}
		return "", &APIError{Status: resp.StatusCode, Message: env.Message}
	}

	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", fmt.Errorf("decode %s response: %w", path, err)
	}
	if out != nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return env.Message, nil
}

func (c *Client) observe(method, path string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer(method, path, status, elapsed)
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	_, err = c.do(req, path, out)
	return err
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) (string, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode %s body: %w", path, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(b), "application/json")
	if err != nil {
		return "", err
	}
	return c.do(req, path, out)
}

// Credentials are posted to the login endpoint.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the data returned by a successful login.
type LoginResult struct {
	Token string    `json:"token"`
	User  core.User `json:"user"`
}

// Login exchanges credentials for a bearer token and the user profile.
// Wrong credentials come back as a *ValidationError or *APIError.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	var res LoginResult
	if _, err := c.postJSON(ctx, "login", creds, &res); err != nil {
		// A 401 here means bad credentials, not an expired session.
		if errors.Is(err, ErrUnauthorized) {
			return LoginResult{}, &APIError{Status: http.StatusUnauthorized, Message: "Invalid credentials."}
		}
		return LoginResult{}, err
	}
	if res.Token == "" {
		return LoginResult{}, &APIError{Status: http.StatusOK, Message: "Login response carried no token."}
	}
	return res, nil
}

// Logout revokes the client's token on the backend.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.postJSON(ctx, "logout", struct{}{}, nil)
	return err
}

// Options reads the select-option list published at <endpoint>/all.
func (c *Client) Options(ctx context.Context, endpoint string) ([]core.Option, error) {
	var opts []core.Option
	if err := c.getJSON(ctx, strings.TrimSuffix(endpoint, "/")+"/all", nil, &opts); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = []core.Option{}
	}
	return opts, nil
}
