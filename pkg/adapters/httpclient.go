package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseSize    = 1 << 20
)

// APIError is returned when a service answers with a non-success status.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Service, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Message)
}

// restClient is the JSON-over-HTTP plumbing shared by the REST adapters.
type restClient struct {
	service    string
	baseURL    string
	httpClient *http.Client
	decorate   func(req *http.Request)
}

func newRESTClient(service, baseURL string, client *http.Client, decorate func(req *http.Request)) *restClient {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &restClient{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		decorate:   decorate,
	}
}

// do sends in as JSON and decodes the response into out. out may be nil.
func (c *restClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", c.service, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", c.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.decorate != nil {
		c.decorate(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", c.service, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", c.service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Service: c.service, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", c.service, err)
	}
	return nil
}

// errorMessage pulls a readable message out of common error payload shapes.
func errorMessage(data []byte) string {
	var payload struct {
		Message string      `json:"message"`
		Error   interface{} `json:"error"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case len(payload.Errors) > 0 && payload.Errors[0].Message != "":
			return payload.Errors[0].Message
		}
		switch e := payload.Error.(type) {
		case string:
			return e
		case map[string]interface{}:
			if msg, ok := e["message"].(string); ok {
				return msg
			}
		}
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func stringField(fields map[string]interface{}, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func stringsField(fields map[string]interface{}, key string) []string {
	switch v := fields[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
