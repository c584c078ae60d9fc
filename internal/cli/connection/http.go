package connection

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

	"github.com/bluelamp/cligate/internal/infra/buildinfo"
	"github.com/bluelamp/cligate/internal/infra/tlsroots"
)

// Header names understood by the server.
const (
	HeaderAdminKey = "X-Admin-Key"
	HeaderCLIToken = "X-CLI-Token"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	Server   string
	AdminKey string
	CAFile   string
	Insecure bool
	Timeout  time.Duration
}

// Client performs requests against cligate-server.
type Client struct {
	baseURL  string
	client   *http.Client
	adminKey string
}

// APIError is a non-2xx response. Losing trap keys get bodies outside the
// envelope; those surface with Code empty and Raw set.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	Details   json.RawMessage
	Raw       string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		if e.Raw != "" {
			return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Raw)
		}
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// IsCode reports whether err is an *APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// envelope mirrors the server response wrapper.
type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Details   json.RawMessage `json:"details"`
}

// NewClient creates a client for opts.Server. A bare host:port gets an
// http:// scheme, or https:// when TLS options are set.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(opts.Server, "/")
	if baseURL == "" {
		return nil, errors.New("server address required")
	}
	tlsWanted := opts.CAFile != "" || opts.Insecure
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		if tlsWanted {
			baseURL = "https://" + baseURL
		} else {
			baseURL = "http://" + baseURL
		}
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid server address: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := &http.Client{Timeout: timeout}
	if tlsWanted {
		tlsCfg, err := tlsroots.ClientConfig(opts.CAFile, opts.Insecure)
		if err != nil {
			return nil, err
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsCfg
		hc.Transport = transport
	}

	return &Client{baseURL: baseURL, client: hc, adminKey: opts.AdminKey}, nil
}

// BaseURL returns the base URL of the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends a request and decodes the envelope's data into target, which
// may be nil. header adds per-request headers.
func (c *Client) Do(ctx context.Context, method, path string, body any, header http.Header, target any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "cligate-cli/"+buildinfo.Version)
	if c.adminKey != "" {
		req.Header.Set(HeaderAdminKey, c.adminKey)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return ParseResponse(resp, target)
}

// ParseResponse reads an enveloped response and closes its body.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil && env.Code != "" {
			apiErr.Code = env.Code
			apiErr.Message = env.Message
			apiErr.RequestID = env.RequestID
			apiErr.Details = env.Details
		} else {
			apiErr.Raw = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if target == nil {
		return nil
	}
	if decodeErr != nil {
		return fmt.Errorf("parse response: %w", decodeErr)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("parse response data: %w", err)
	}
	return nil
}
