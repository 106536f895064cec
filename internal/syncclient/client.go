package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quinn/rolo/internal/sync"
)

// Client is an HTTP client for the rolo sync server.
type Client struct {
	BaseURL  string
	APIKey   string
	DeviceID string
	HTTP     *http.Client
}

// New creates a new sync client.
func New(baseURL, apiKey, deviceID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Wire types ---

// pullRequest is the body for POST /v1/sync/pull.
type pullRequest struct {
	LastPulledAt *int64 `json:"last_pulled_at"`
	DeviceID     string `json:"device_id,omitempty"`
}

// pullResponse is the response from a pull request.
type pullResponse struct {
	Changes   sync.Changes `json:"changes"`
	Timestamp int64        `json:"timestamp"`
	HasMore   bool         `json:"has_more,omitempty"`
}

// pushRequest is the body for POST /v1/sync/push.
type pushRequest struct {
	Changes      sync.Changes `json:"changes"`
	LastPulledAt *int64       `json:"last_pulled_at"`
	DeviceID     string       `json:"device_id,omitempty"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// --- Sync methods ---

// Pull fetches the server's change history after the given cursor.
// lastPulledAt is nil only on first-ever sync.
func (c *Client) Pull(ctx context.Context, lastPulledAt *int64) (*sync.PullResult, error) {
	var resp pullResponse
	req := pullRequest{LastPulledAt: lastPulledAt, DeviceID: c.DeviceID}
	if err := c.do(ctx, "POST", "/v1/sync/pull", req, &resp); err != nil {
		return nil, err
	}
	if resp.Changes == nil {
		resp.Changes = sync.Changes{}
	}
	return &sync.PullResult{Changes: resp.Changes, Timestamp: resp.Timestamp, HasMore: resp.HasMore}, nil
}

// Push sends local changes against the cursor from this round's pull.
// The server acknowledges with a 2xx and no required body.
func (c *Client) Push(ctx context.Context, changes sync.Changes, lastPulledAt *int64) error {
	req := pushRequest{Changes: changes, LastPulledAt: lastPulledAt, DeviceID: c.DeviceID}
	return c.do(ctx, "POST", "/v1/sync/push", req, nil)
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, "GET", "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		haveBody := json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code != ""
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			if haveBody {
				return fmt.Errorf("%w: %s", sync.ErrUnauthorized, apiErr.Message)
			}
			return sync.ErrUnauthorized
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			if haveBody {
				return fmt.Errorf("%w: %s", sync.ErrRejected, apiErr.Error())
			}
			return fmt.Errorf("%w: HTTP %d", sync.ErrRejected, resp.StatusCode)
		default:
			if haveBody {
				return &apiErr
			}
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
