// Package client talks to the staking API on behalf of a local wallet.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/core-coin/praemium/internal/http_api"
	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/logger"
)

// Client is an API client holding one wallet session. It serves as the
// submission pipeline's backend and as the session provider of the reauth gate.
type Client struct {
	logger  *logger.Logger
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	token string
	owner string
}

func NewClient(baseURL string, logger *logger.Logger) *Client {
	return &Client{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

var _ models.SessionProvider = (*Client)(nil)

// Owner returns the account of the current session, empty before sign-in.
func (c *Client) Owner() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}

func (c *Client) RequestNonce(ctx context.Context) (string, error) {
	var resp http_api.NonceResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/nonce", nil, &resp); err != nil {
		return "", err
	}
	return resp.Nonce, nil
}

func (c *Client) VerifySignIn(ctx context.Context, message, signature string) error {
	var resp http_api.VerifyResponse
	req := http_api.VerifyRequest{Message: message, Signature: signature}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/verify", req, &resp); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = resp.Token
	c.owner = resp.Owner
	c.mu.Unlock()
	c.logger.Debugw("Session established", "account", resp.Owner)
	return nil
}

func (c *Client) Login(ctx context.Context) (*models.Portfolio, error) {
	var resp http_api.PortfolioResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/login", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Portfolio, nil
}

func (c *Client) Assets(ctx context.Context) (*models.Portfolio, error) {
	var resp http_api.PortfolioResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/assets", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Portfolio, nil
}

func (c *Client) Balance(ctx context.Context) (*models.BalanceView, error) {
	var resp http_api.BalanceResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/balance", nil, &resp); err != nil {
		return nil, err
	}
	return resp.BalanceView, nil
}

func (c *Client) BuildTransaction(ctx context.Context, action models.Action, mints []string) (*models.PendingTransaction, error) {
	var resp http_api.BuildResponse
	req := http_api.BuildRequest{Mints: mints}
	if err := c.do(ctx, http.MethodPost, "/api/v1/transactions/"+string(action), req, &resp); err != nil {
		return nil, err
	}
	return resp.PendingTransaction, nil
}

// PersistStateTransition reports a confirmed transaction. The server takes the
// owner from the session, transition.Owner is not sent.
func (c *Client) PersistStateTransition(ctx context.Context, transition models.StateTransition) (*models.TransitionResult, error) {
	var resp http_api.TransitionResponse
	req := http_api.TransitionRequest{
		Action:    string(transition.Action),
		Mints:     transition.Mints,
		Signature: transition.Signature,
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/transitions", req, &resp); err != nil {
		return nil, err
	}
	return resp.TransitionResult, nil
}

// do sends a JSON request and decodes the response into out. Failed requests
// come back as *models.Error carrying the server's kind.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var body http_api.ErrorResponse
	_ = json.Unmarshal(raw, &body)

	kind := models.ErrorKind(body.Kind)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		kind = models.KindUnauthorized
	case kind == "":
		kind = models.KindInternal
	}
	cause := fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	return models.NewError(kind, body.Error, cause)
}
