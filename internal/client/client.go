// Package client drives a running archdev server over its HTTP API.
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

	"github.com/terabiome/archdev/internal/api"
	"github.com/terabiome/archdev/internal/errdefs"
)

// DefaultTimeout covers a create, which copies and boots a full image.
const DefaultTimeout = 15 * time.Minute

// Client calls the archdev HTTP API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient gets
// one bounded by DefaultTimeout.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: u, httpClient: httpClient}, nil
}

// APIError is a non-2xx answer from the server. It matches the error kind
// the status code stands for, so callers can use errors.Is as they would
// against the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return target == errdefs.ErrValidation
	case http.StatusNotFound:
		return target == errdefs.ErrVMNotFound
	}
	return false
}

func (c *Client) Create(ctx context.Context, req api.CreateVMRequest) (*api.CreateVMResponse, error) {
	var resp api.CreateVMResponse
	if err := c.do(ctx, http.MethodPost, "/create", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) List(ctx context.Context) ([]api.VMInfo, error) {
	var resp []api.VMInfo
	if err := c.do(ctx, http.MethodGet, "/list", nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		resp = []api.VMInfo{}
	}
	return resp, nil
}

func (c *Client) Kill(ctx context.Context, name string) (*api.KillVMResponse, error) {
	var resp api.KillVMResponse
	if err := c.do(ctx, http.MethodPost, "/kill", api.KillVMRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) FleetStatus(ctx context.Context) ([]api.HostStatus, error) {
	var resp []api.HostStatus
	if err := c.do(ctx, http.MethodGet, "/fleet", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp api.ErrorResponse
		if jsonErr := json.Unmarshal(data, &errResp); jsonErr != nil || errResp.Error == "" {
			errResp.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
