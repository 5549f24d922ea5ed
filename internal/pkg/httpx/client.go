/*
Package httpx is the thin JSON client used by the domain services to talk to the
planning poker REST API. It normalizes every response into an Envelope or an
*errs.Error and never retries; retry policy belongs to callers.
*/
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"planpoker/internal/pkg/errs"
)

const defaultTimeout = 30 * time.Second

// Envelope is the response shape shared by every endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}

// Client issues JSON requests against a base URL.
type Client struct {
	baseURL string
	client  *http.Client

	mu      sync.RWMutex
	headers map[string]string
}

// NewClient returns a Client for baseURL. A trailing slash is dropped.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: defaultTimeout,
		},
		headers: make(map[string]string),
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value == "" {
		delete(c.headers, key)
		return
	}
	c.headers[key] = value
}

// SetToken sets or clears the Bearer token sent with every request.
func (c *Client) SetToken(token string) {
	if token == "" {
		c.SetHeader("Authorization", "")
		return
	}
	c.SetHeader("Authorization", "Bearer "+token)
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// Do sends a request and decodes the envelope. When out is non-nil and the
// envelope carries data, the data is decoded into out.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, out any) (*Envelope, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.mu.RLock()
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	c.mu.RUnlock()

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.Network(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Network(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, raw)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return &Envelope{Success: true, Message: "No content", Data: nil}, nil
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.Parse(err)
	}

	if out != nil {
		if err := Decode(&env, out); err != nil {
			return nil, err
		}
	}

	return &env, nil
}

func (c *Client) Get(ctx context.Context, endpoint string, out any) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body any, out any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, endpoint, body, out)
}

// Decode unmarshals the envelope's data into out. Missing data leaves out untouched.
func Decode(env *Envelope, out any) error {
	if env == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errs.Parse(err)
	}
	return nil
}

// statusError builds the error for a non-2xx response, using the structured
// error body when the server sent one.
func statusError(status int, raw []byte) error {
	var body struct {
		Success *bool           `json:"success"`
		Message string          `json:"message"`
		Errors  json.RawMessage `json:"errors"`
	}

	if err := json.Unmarshal(raw, &body); err == nil && body.Success != nil && !*body.Success && body.Message != "" {
		return errs.HTTPStatus(status, body.Message, details(body.Errors))
	}

	return errs.HTTPStatus(status, "", nil)
}

// details flattens the optional errors field, which servers send either as a
// list of strings or as a map of field to message(s).
func details(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var multi map[string][]string
	if err := json.Unmarshal(raw, &multi); err == nil {
		out := make([]string, 0, len(multi))
		for field, msgs := range multi {
			out = append(out, field+": "+strings.Join(msgs, ", "))
		}
		return out
	}

	var single map[string]string
	if err := json.Unmarshal(raw, &single); err == nil {
		out := make([]string, 0, len(single))
		for field, msg := range single {
			out = append(out, field+": "+msg)
		}
		return out
	}

	return []string{string(raw)}
}

// IsNotFoundOrMethod reports whether err is a 404 or 405, used when probing
// alternative endpoint shapes.
func IsNotFoundOrMethod(err error) bool {
	var e *errs.Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Status == http.StatusNotFound || e.Status == http.StatusMethodNotAllowed
}
