// Package http implements the remote backend client over a JSON document
// API: POST /key/:collection to insert, PATCH /key/:collection/:id to patch,
// DELETE /key/:collection/:id to remove, GET /health to probe.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fieldsync/fieldsync.go/pkg/remote"
)

const defaultTimeout = 10 * time.Second

// Client calls the backend's document endpoints. The zero value is not
// usable; construct with New.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ remote.Client = (*Client)(nil)

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Default timeout to avoid hanging requests; individual replay
			// calls are additionally bounded by the caller's context.
			Timeout: defaultTimeout,
		},
	}
}

// WithToken sets the bearer token sent on every request.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) Insert(ctx context.Context, collection string, payload map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, c.collectionURL(collection, ""), payload)
}

func (c *Client) Patch(ctx context.Context, collection string, payload map[string]any) (map[string]any, error) {
	id, err := recordID(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPatch, c.collectionURL(collection, id), payload)
}

func (c *Client) Remove(ctx context.Context, collection string, payload map[string]any) error {
	id, err := recordID(payload)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, c.collectionURL(collection, id), nil)
	return err
}

func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &remote.StatusError{Code: resp.StatusCode}
	}
	return nil
}

func (c *Client) collectionURL(collection, id string) string {
	u := c.baseURL + "/key/" + url.PathEscape(collection)
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload map[string]any) (map[string]any, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if key, ok := remote.IdempotencyKey(ctx); ok {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &remote.StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	if len(data) == 0 {
		return nil, nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

func recordID(payload map[string]any) (string, error) {
	id, ok := payload["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("payload has no record id")
	}
	return id, nil
}
