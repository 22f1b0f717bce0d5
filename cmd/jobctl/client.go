package main

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

	"github.com/xraph/jobhook/admin"
	"github.com/xraph/jobhook/api"
)

// adminClient calls the admin routes of a jobhookd instance.
type adminClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAdminClient(baseURL, apiKey string, timeout time.Duration) *adminClient {
	return &adminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *adminClient) retry(ctx context.Context, req admin.Request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, "/api/admin/jobs/retry", nil, body)
}

func (c *adminClient) definitions(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/admin/jobs/definitions", nil, nil)
}

func (c *adminClient) counts(ctx context.Context, definitionID string) (json.RawMessage, error) {
	q := url.Values{}
	if definitionID != "" {
		q.Set("jobDefinitionId", definitionID)
	}
	return c.do(ctx, http.MethodGet, "/api/admin/jobs/counts", q, nil)
}

func (c *adminClient) do(ctx context.Context, method, path string, query url.Values, body []byte) (json.RawMessage, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(api.HeaderAdminAPIKey, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
