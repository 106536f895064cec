package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// JobType is the offline queue job type for deferred webhook delivery.
const JobType = "webhook.deliver"

// Payload is the webhook POST body: one local record change notification.
type Payload struct {
	Event      string `json:"event"` // created | updated | deleted
	Collection string `json:"collection"`
	RecordID   string `json:"record_id"`
	Timestamp  string `json:"timestamp"`
}

// NewPayload builds a notification for a single record change.
func NewPayload(event, collection, recordID string) Payload {
	return Payload{
		Event:      event,
		Collection: collection,
		RecordID:   recordID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

// Dispatch performs a synchronous HTTP POST to the webhook URL.
// Returns nil on success (2xx status).
func Dispatch(ctx context.Context, url, secret string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "rolo-webhook/1")

	unixTS := fmt.Sprintf("%d", time.Now().Unix())
	req.Header.Set("X-Rolo-Timestamp", unixTS)

	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(unixTS))
		mac.Write([]byte("."))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("X-Rolo-Signature", "sha256="+sig)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// Handler returns an offline queue handler that delivers one payload.
// Configuration is resolved at processing time, not enqueue time, so a
// URL change applies to jobs already in the queue.
func Handler(baseDir string) func(ctx context.Context, raw json.RawMessage) error {
	return func(ctx context.Context, raw json.RawMessage) error {
		url := GetURL(baseDir)
		if url == "" {
			// Webhook was unconfigured after the job was enqueued.
			return nil
		}
		var p Payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return Dispatch(ctx, url, GetSecret(baseDir), p)
	}
}
