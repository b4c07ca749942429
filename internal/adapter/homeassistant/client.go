package homeassistant

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

	"github.com/berfenger/spotcharge2mqtt/internal/config"

	"go.uber.org/zap"
)

const DEFAULT_REQUEST_TIMEOUT = 10 * time.Second

var ErrEntityUnavailable = errors.New("homeassistant: entity unavailable")

// Client talks to the Home Assistant REST API with a long-lived access token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// EntityState is the body of GET /api/states/<entity_id>.
type EntityState struct {
	EntityId    string                     `json:"entity_id"`
	State       string                     `json:"state"`
	Attributes  map[string]json.RawMessage `json:"attributes"`
	LastUpdated time.Time                  `json:"last_updated"`
}

func (s EntityState) Available() bool {
	return s.State != "unavailable" && s.State != "unknown" && s.State != ""
}

func NewClient(cfg config.HomeAssistantConfig, logger *zap.Logger) (*Client, error) {
	if _, err := url.Parse(cfg.URL); err != nil || cfg.URL == "" {
		return nil, fmt.Errorf("invalid home assistant url %q", cfg.URL)
	}
	timeout := DEFAULT_REQUEST_TIMEOUT
	if cfg.RequestTimeoutMillis > 0 {
		timeout = time.Duration(cfg.RequestTimeoutMillis) * time.Millisecond
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "homeassistant")),
	}, nil
}

func (c *Client) GetState(ctx context.Context, entityId string) (*EntityState, error) {
	var state EntityState
	if err := c.do(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityId), nil, &state); err != nil {
		return nil, fmt.Errorf("get state %s: %w", entityId, err)
	}
	return &state, nil
}

func (c *Client) CallService(ctx context.Context, domain, service string, data any) error {
	path := fmt.Sprintf("/api/services/%s/%s", url.PathEscape(domain), url.PathEscape(service))
	if err := c.do(ctx, http.MethodPost, path, data, nil); err != nil {
		return fmt.Errorf("call service %s.%s: %w", domain, service, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("homeassistant: request", zap.String("method", method), zap.String("path", path))
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrEntityUnavailable
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("home assistant returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
