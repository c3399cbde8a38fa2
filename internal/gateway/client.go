// Package gateway talks to the external inventory API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxErrorBody = 512

// Config holds the external API endpoint and credentials
type Config struct {
	BaseURL           string
	ApplicationID     string
	ApplicationSecret string
	InstallationToken string
	Timeout           time.Duration
}

// Client performs authenticated JSON calls against the external inventory API
type Client struct {
	config     Config
	httpClient *http.Client
	tokens     TokenCache
	logger     *zap.Logger
}

// NewClient creates a new gateway client
func NewClient(cfg Config, tokens TokenCache, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

type authRequest struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationSecret string `json:"applicationSecret"`
	Token             string `json:"token"`
}

type authResponse struct {
	Token string `json:"Token"`
}

// Authenticate obtains a fresh bearer token and stores it in the token cache
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	var resp authResponse
	err := c.send(ctx, http.MethodPost, "auth", "", authRequest{
		ApplicationID:     c.config.ApplicationID,
		ApplicationSecret: c.config.ApplicationSecret,
		Token:             c.config.InstallationToken,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("authentication failed: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("authentication failed: %w: empty token", ErrMalformedResponse)
	}

	if err := c.tokens.Refresh(ctx, resp.Token); err != nil {
		c.logger.Warn("Failed to cache gateway token", zap.Error(err))
	}

	c.logger.Info("Authenticated against inventory API")
	return resp.Token, nil
}

// Request sends body to path and decodes the JSON answer into out.
// A 401 clears the cached token and the call is retried once with a new one.
func (c *Client) Request(ctx context.Context, method, path string, body, out interface{}) error {
	token, ok := c.tokens.Get(ctx)
	if !ok {
		var err error
		if token, err = c.Authenticate(ctx); err != nil {
			return err
		}
	}

	err := c.send(ctx, method, path, token, body, out)
	if !isUnauthorized(err) {
		return err
	}

	c.logger.Info("Inventory API rejected token, re-authenticating", zap.String("path", path))
	if clearErr := c.tokens.Clear(ctx); clearErr != nil {
		c.logger.Warn("Failed to clear gateway token", zap.Error(clearErr))
	}

	token, err = c.Authenticate(ctx)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, token, body, out)
}

func (c *Client) send(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request for %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	c.logger.Debug("Inventory API call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return &GatewayError{
			StatusCode: resp.StatusCode,
			Path:       path,
			Message:    truncate(strings.TrimSpace(string(raw)), maxErrorBody),
		}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		if out == nil {
			return nil
		}
		return fmt.Errorf("%w: empty body from %s", ErrMalformedResponse, path)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("%w: non-JSON body from %s", ErrMalformedResponse, path)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, err)
	}
	return nil
}

func isUnauthorized(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusUnauthorized
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
