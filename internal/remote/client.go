// Package remote talks to the identity provider and the customer API, which
// share one base URL.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/infinite-gateway/internal/errors"
	"github.com/unclebandit/infinite-gateway/internal/logging"
	"github.com/unclebandit/infinite-gateway/internal/model"
)

// TokenResponse is the identity provider's answer to getToken and refreshToken.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
}

// ListParams filters GET /user/list. Empty fields are not sent.
type ListParams struct {
	From  string
	ID    string
	Limit string
	Phone string
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	for key, val := range map[string]string{"from": p.From, "id": p.ID, "limit": p.Limit, "phone": p.Phone} {
		if val != "" {
			v.Set(key, val)
		}
	}
	return v
}

// API is what the services and controllers need from the remote side.
type API interface {
	GetToken(ctx context.Context, username, password string) (*TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
	AddUsers(ctx context.Context, header map[string]string, users []model.Customer) (json.RawMessage, error)
	UpdateUsers(ctx context.Context, header map[string]string, users []model.Customer) (json.RawMessage, error)
	CloseUsers(ctx context.Context, header map[string]string, users []model.CustomerClose) (json.RawMessage, error)
	ListUsers(ctx context.Context, header map[string]string, params ListParams) (json.RawMessage, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With(zap.String("component", "remote")),
	}
}

type usersEnvelope[T any] struct {
	Users []T `json:"users"`
}

func (c *Client) GetToken(ctx context.Context, username, password string) (*TokenResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var out TokenResponse
	if err := c.doJSON(ctx, "getToken", http.MethodPost, "/oauth/getToken", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var out TokenResponse
	if err := c.doJSON(ctx, "refreshToken", http.MethodPost, "/oauth/refreshToken", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddUsers(ctx context.Context, header map[string]string, users []model.Customer) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.doJSON(ctx, "add users", http.MethodPost, "/user/add", header, usersEnvelope[model.Customer]{Users: users}, &out)
	return out, err
}

func (c *Client) UpdateUsers(ctx context.Context, header map[string]string, users []model.Customer) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.doJSON(ctx, "update users", http.MethodPost, "/user/update", header, usersEnvelope[model.Customer]{Users: users}, &out)
	return out, err
}

func (c *Client) CloseUsers(ctx context.Context, header map[string]string, users []model.CustomerClose) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.doJSON(ctx, "close users", http.MethodPost, "/user/close", header, usersEnvelope[model.CustomerClose]{Users: users}, &out)
	return out, err
}

func (c *Client) ListUsers(ctx context.Context, header map[string]string, params ListParams) (json.RawMessage, error) {
	path := "/user/list"
	if q := params.values().Encode(); q != "" {
		path += "?" + q
	}
	var out json.RawMessage
	err := c.doJSON(ctx, "list users", http.MethodGet, path, header, nil, &out)
	return out, err
}

// doJSON sends in (when non-nil) as JSON and decodes a 2xx answer into out.
// A non-2xx answer becomes *appErrors.UpstreamError carrying the raw body.
func (c *Client) doJSON(ctx context.Context, op, method, path string, header map[string]string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	c.log.Debug("request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("url", req.URL.String()),
		zap.String("authorization", redactAuth(req.Header.Get("Authorization"))),
	)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return appErrors.NewTimeoutError(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return appErrors.NewTimeoutError(op, err)
		}
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	c.log.Debug("response",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
		zap.ByteString("body", truncate(raw, 2048)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return appErrors.NewUpstreamError(op, resp.StatusCode, string(raw))
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func redactAuth(v string) string {
	if v == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(v, " ")
	if !ok {
		return logging.Redact(v)
	}
	return scheme + " " + logging.Redact(token)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
