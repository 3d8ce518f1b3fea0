package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"carmarket/internal/platform/logger"

	"go.uber.org/zap"
)

// Client talks to a GoTrue-style identity provider over its REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a provider client for the given base URL.
func NewClient(baseURL, apiKey string, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     log.Named("IdentityClient"),
	}
}

type providerError struct {
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
	Error_           string `json:"error"`
}

func (e *providerError) message() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.Error_ != "":
		return e.Error_
	}
	return "unknown provider error"
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode provider request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Identity provider request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var perr providerError
		_ = json.NewDecoder(resp.Body).Decode(&perr)
		c.logger.Warn("Identity provider rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("provider_msg", perr.message()))
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, perr.message())
		}
		return fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, perr.message())
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
	}
	return nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, meta Metadata) (*Session, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"data":     meta,
	}
	var session Session
	if err := c.do(ctx, http.MethodPost, "/signup", "", payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}
	var session Session
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) OAuthURL(oauthProvider, redirectTo string) string {
	q := url.Values{}
	q.Set("provider", oauthProvider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return c.baseURL + "/authorize?" + q.Encode()
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) UpdateUser(ctx context.Context, accessToken string, update UserUpdate) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodPut, "/user", accessToken, update, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) SendPasswordReset(ctx context.Context, email, redirectTo string) error {
	payload := map[string]any{"email": email}
	if redirectTo != "" {
		payload["redirect_to"] = redirectTo
	}
	return c.do(ctx, http.MethodPost, "/recover", "", payload, nil)
}
