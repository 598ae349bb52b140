package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// Gateway issues signed requests to platform endpoints over one persistent
// session, returning the raw status code and body for the caller to decode.
type Gateway struct {
	client *http.Client
}

// NewGateway builds a Gateway with the default per-request timeout.
func NewGateway() *Gateway {
	return &Gateway{client: &http.Client{Timeout: defaultHTTPTimeout}}
}

// PostForm sends a form-encoded POST.
func (g *Gateway) PostForm(ctx context.Context, endpoint string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return g.do(req)
}

// Post sends a bodiless POST carrying only headers. The hosted-file reel
// upload phase passes the media reference this way.
func (g *Gateway) Post(ctx context.Context, endpoint string, header http.Header) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("new request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return g.do(req)
}

// Get sends a GET with the given query parameters.
func (g *Gateway) Get(ctx context.Context, endpoint string, query url.Values) (int, []byte, error) {
	u := endpoint
	if len(query) > 0 {
		u = endpoint + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("new request: %w", err)
	}
	return g.do(req)
}

func (g *Gateway) do(req *http.Request) (int, []byte, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// DecodeJSON unmarshals a response body into its typed record. Failures are
// reported as MalformedResponseError, which retry loops treat as permanent.
func DecodeJSON(endpoint string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &MalformedResponseError{Endpoint: endpoint, Cause: err}
	}
	return nil
}

// ContainerResponse is returned by container-create and publish calls.
type ContainerResponse struct {
	ID string `json:"id"`
}

// StatusResponse is returned by container status checks. Providers disagree
// on the field name, so both are mapped.
type StatusResponse struct {
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

// State resolves whichever status field the provider populated.
func (r StatusResponse) State() ContainerStatus {
	if r.StatusCode != "" {
		return ParseContainerStatus(r.StatusCode)
	}
	return ParseContainerStatus(r.Status)
}

// VerifyResponse is returned by read-only post-publish metadata checks.
type VerifyResponse struct {
	ID           string `json:"id"`
	PermalinkURL string `json:"permalink_url"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ErrorMessage extracts the provider error message from a failed response
// body, falling back to the trimmed body itself.
func ErrorMessage(body []byte) string {
	var ge graphError
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error.Message != "" {
		return ge.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
