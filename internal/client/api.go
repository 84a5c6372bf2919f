package client

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

	"quickchat/internal/app/user"
	"quickchat/internal/pkg/pow"
	"quickchat/internal/protocol"
)

const defaultHTTPTimeout = 15 * time.Second

// APIError is a failed call reported through the server's response envelope.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Identity is a signed-in account.
type Identity struct {
	Token string    `json:"token"`
	User  user.User `json:"user"`
}

// APIClient calls the server's HTTP API.
type APIClient struct {
	baseURL string
	http    *http.Client
}

// NewAPIClient targets baseURL, e.g. http://localhost:5000. A nil httpClient uses a default with a timeout.
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &APIClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// FetchHistory returns the conversation between self and peer, oldest first.
func (c *APIClient) FetchHistory(ctx context.Context, self, peer string) ([]protocol.Message, error) {
	q := url.Values{"userId": {self}, "peerId": {peer}}

	var data struct {
		Messages []protocol.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/messages?"+q.Encode(), nil, nil, &data); err != nil {
		return nil, err
	}
	return data.Messages, nil
}

// ListUsers returns the newest accounts other than exclude.
func (c *APIClient) ListUsers(ctx context.Context, exclude string) ([]user.User, error) {
	q := url.Values{"exclude": {exclude}}

	var data struct {
		Users []user.User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/users?"+q.Encode(), nil, nil, &data); err != nil {
		return nil, err
	}
	return data.Users, nil
}

// Login signs in with email and password.
func (c *APIClient) Login(ctx context.Context, email, password string) (Identity, error) {
	var id Identity
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/api/auth/login", body, nil, &id)
	return id, err
}

// CreateGuest solves the proof-of-work challenge and creates a guest account.
func (c *APIClient) CreateGuest(ctx context.Context) (Identity, error) {
	var challenge pow.Challenge
	if err := c.do(ctx, http.MethodGet, "/api/guest/challenge", nil, nil, &challenge); err != nil {
		return Identity{}, err
	}

	var proof struct {
		PowToken string `json:"powToken"`
	}
	body := map[string]string{
		"nonce":   challenge.Nonce,
		"counter": pow.Solve(challenge.Nonce, challenge.Difficulty),
	}
	if err := c.do(ctx, http.MethodPost, "/api/guest/verify", body, nil, &proof); err != nil {
		return Identity{}, err
	}

	var id Identity
	headers := map[string]string{pow.TokenHeaderKey: proof.PowToken}
	err := c.do(ctx, http.MethodPost, "/api/guest", struct{}{}, headers, &id)
	return id, err
}

func (c *APIClient) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var env struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode response (HTTP %d): %w", method, path, res.StatusCode, err)
	}

	if env.Code != 0 || res.StatusCode >= http.StatusBadRequest {
		return &APIError{Status: res.StatusCode, Code: env.Code, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}
