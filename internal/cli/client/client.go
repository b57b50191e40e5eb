package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	loginPath    = "/api/auth/login"
	identityPath = "/api/auth/me"

	requestIDHeader = "X-Request-ID"
)

// ErrHookRegistered is returned by OnResponse when a hook is already installed
var ErrHookRegistered = errors.New("response hook already registered")

// TokenSource returns the bearer token to attach, or "" for none
type TokenSource func() string

// ResponseHook observes every response the client receives. It must not
// read or close the body.
type ResponseHook func(resp *http.Response)

// Client represents an HTTP client for the platform admin API
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource

	mu     sync.Mutex
	hook   ResponseHook
	hookID uint64
}

// Option configures a Client
type Option func(*Client)

// WithScheme sets the URL scheme used to reach the server (default https)
func WithScheme(scheme string) Option {
	return func(c *Client) {
		if i := strings.Index(c.baseURL, "://"); i >= 0 {
			c.baseURL = scheme + c.baseURL[i:]
		}
	}
}

// WithBaseURL overrides the derived base URL entirely
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithInsecureTLS skips TLS verification for self-signed certificates
func WithInsecureTLS() Option {
	return func(c *Client) {
		c.httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		}
	}
}

// WithTokenSource sets where bearer tokens come from
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.token = ts
	}
}

// New creates a new API client for the given server address
func New(server string, opts ...Option) *Client {
	c := &Client{
		baseURL: fmt.Sprintf("https://%s", server),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		token: func() string { return "" },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the URL requests are issued against
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetHTTPClient sets a custom HTTP client
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// SetTokenSource sets where bearer tokens come from
func (c *Client) SetTokenSource(ts TokenSource) {
	c.token = ts
}

// OnResponse installs hook for every subsequent response. Only one hook may
// be installed at a time; the returned function removes it and is safe to
// call more than once.
func (c *Client) OnResponse(hook ResponseHook) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hook != nil {
		return nil, ErrHookRegistered
	}
	c.hookID++
	id := c.hookID
	c.hook = hook

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.hookID == id {
			c.hook = nil
		}
	}, nil
}

func (c *Client) currentHook() ResponseHook {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hook
}

// requestOptions tweak a single call
type requestOptions struct {
	// token overrides the token source when non-empty
	token string
	// exempt skips the response hook; used for the session's own calls
	exempt bool
	// noAuth sends no Authorization header at all
	noAuth bool
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, ro requestOptions) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, ulid.Make().String())

	if !ro.noAuth {
		token := ro.token
		if token == "" && c.token != nil {
			token = c.token()
		}
		if token != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if !ro.exempt {
		if hook := c.currentHook(); hook != nil {
			hook(resp)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, respBody)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// User is the identity record returned by the login and identity endpoints
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Login authenticates the user and returns the issued token. The response
// hook is not invoked; the caller decides what a failed login means.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var loginResp LoginResponse
	err := c.do(ctx, http.MethodPost, loginPath, LoginRequest{
		Email:    email,
		Password: password,
	}, &loginResp, requestOptions{exempt: true, noAuth: true})
	if err != nil {
		return nil, err
	}
	return &loginResp, nil
}

// CurrentUser runs the identity check for token. The response hook is not
// invoked.
func (c *Client) CurrentUser(ctx context.Context, token string) (*User, error) {
	var user User
	err := c.do(ctx, http.MethodGet, identityPath, nil, &user, requestOptions{token: token, exempt: true})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
