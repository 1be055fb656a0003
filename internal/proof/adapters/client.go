// Package adapters implements the proof module's ports over HTTP, Redis
// and Kafka.
package adapters

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
)

// maxResponseBytes bounds collaborator response bodies.
const maxResponseBytes = 8 << 20

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CollaboratorError is a failed call to an external service. Error returns
// the service's own message when it sent one, so it can be shown to users
// unchanged.
type CollaboratorError struct {
	Service string
	Status  int
	Message string
	Err     error
}

func (e *CollaboratorError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s returned status %d", e.Service, e.Status)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Timeout reports whether the call hit a deadline.
func (e *CollaboratorError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// jsonClient issues JSON requests against one base URL.
type jsonClient struct {
	service string
	baseURL string
	doer    HTTPDoer
}

func newJSONClient(service, baseURL string, timeout time.Duration, doer HTTPDoer) jsonClient {
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}
	return jsonClient{service: service, baseURL: strings.TrimRight(baseURL, "/"), doer: doer}
}

// call sends in (nil for no body) and decodes a 2xx response into out.
func (c jsonClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", c.service, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", c.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return &CollaboratorError{Service: c.service, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &CollaboratorError{Service: c.service, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		msg := eb.Message
		if msg == "" {
			msg = eb.Error
		}
		return &CollaboratorError{Service: c.service, Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &CollaboratorError{Service: c.service, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
