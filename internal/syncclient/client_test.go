package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quinn/rolo/internal/sync"
)

func TestPullFirstSyncSendsNullCursor(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sync/pull" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"changes": map[string]any{
				"contacts": map[string]any{
					"created": []any{map[string]any{"id": "c1"}},
					"updated": []any{},
					"deleted": []any{},
				},
			},
			"timestamp": 1234,
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "key-1", "dev-1")
	res, err := client.Pull(context.Background(), nil)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	if gotAuth != "Bearer key-1" {
		t.Errorf("auth header: got %q", gotAuth)
	}
	// The cursor key must be present and explicitly null on first sync
	if v, ok := gotBody["last_pulled_at"]; !ok || v != nil {
		t.Errorf("last_pulled_at: got %v (present=%v), want explicit null", v, ok)
	}
	if gotBody["device_id"] != "dev-1" {
		t.Errorf("device_id: got %v", gotBody["device_id"])
	}

	if res.Timestamp != 1234 {
		t.Errorf("timestamp: got %d, want 1234", res.Timestamp)
	}
	if res.HasMore {
		t.Error("has_more should default to false")
	}
	if got := len(res.Changes["contacts"].Created); got != 1 {
		t.Errorf("created contacts: got %d, want 1", got)
	}
}

func TestPullSendsCursor(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"changes": map[string]any{}, "timestamp": 2000})
	}))
	defer srv.Close()

	cursor := int64(999)
	client := New(srv.URL, "k", "d")
	if _, err := client.Pull(context.Background(), &cursor); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if got, ok := gotBody["last_pulled_at"].(float64); !ok || int64(got) != 999 {
		t.Errorf("last_pulled_at: got %v, want 999", gotBody["last_pulled_at"])
	}
}

func TestPullNilChangesNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"timestamp": 1})
	}))
	defer srv.Close()

	res, err := New(srv.URL, "k", "d").Pull(context.Background(), nil)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if res.Changes == nil {
		t.Fatal("Changes should never be nil")
	}
}

func TestPushBody(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sync/push" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cursor := int64(777)
	changes := sync.Changes{
		"contacts": {Deleted: []string{"gone"}},
	}
	if err := New(srv.URL, "k", "d").Push(context.Background(), changes, &cursor); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	if got, _ := gotBody["last_pulled_at"].(float64); int64(got) != 777 {
		t.Errorf("last_pulled_at: got %v, want 777", gotBody["last_pulled_at"])
	}
	cs := gotBody["changes"].(map[string]any)["contacts"].(map[string]any)
	deleted := cs["deleted"].([]any)
	if len(deleted) != 1 || deleted[0] != "gone" {
		t.Errorf("deleted: got %v", deleted)
	}
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"code": "unauthorized", "message": "bad key"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "bad", "d").Pull(context.Background(), nil)
	if !errors.Is(err, sync.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

func TestClientRejectionMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"code": "validation_failed", "message": "bad record"})
	}))
	defer srv.Close()

	err := New(srv.URL, "k", "d").Push(context.Background(), sync.Changes{}, nil)
	if !errors.Is(err, sync.ErrRejected) {
		t.Fatalf("got %v, want ErrRejected", err)
	}
}

func TestServerErrorIsPlainError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", "d").Pull(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error on 500")
	}
	if errors.Is(err, sync.ErrUnauthorized) || errors.Is(err, sync.ErrRejected) {
		t.Fatalf("500 must not map to a terminal sentinel: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" || r.Method != "GET" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	res, err := New(srv.URL, "k", "d").HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if res.Status != "ok" {
		t.Errorf("status: got %q, want ok", res.Status)
	}
}
