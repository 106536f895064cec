package syncconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points the config dir at a scratch home and clears every env
// override this package reads.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		"ROLO_SYNC_URL", "ROLO_AUTH_KEY", "ROLO_SYNC_AUTO", "ROLO_SYNC_AUTO_START",
		"ROLO_SYNC_AUTO_DEBOUNCE", "ROLO_SYNC_AUTO_INTERVAL", "ROLO_SYNC_FOREGROUND_MIN",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestServerURLPrecedence(t *testing.T) {
	isolate(t)

	if got := GetServerURL(); got != defaultServerURL {
		t.Fatalf("default url: got %q, want %q", got, defaultServerURL)
	}

	cfg := &Config{}
	cfg.Sync.URL = "https://sync.example.com"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	if got := GetServerURL(); got != "https://sync.example.com" {
		t.Fatalf("config url: got %q", got)
	}

	t.Setenv("ROLO_SYNC_URL", "https://env.example.com")
	if got := GetServerURL(); got != "https://env.example.com" {
		t.Fatalf("env url: got %q", got)
	}
}

func TestAuthLifecycle(t *testing.T) {
	isolate(t)

	if IsAuthenticated() {
		t.Fatal("authenticated with no credentials")
	}

	creds := &AuthCredentials{APIKey: "secret", DeviceID: "dev-42", ServerURL: "https://s"}
	if err := SaveAuth(creds); err != nil {
		t.Fatalf("SaveAuth failed: %v", err)
	}

	if !IsAuthenticated() {
		t.Error("not authenticated after SaveAuth")
	}
	if got := GetAPIKey(); got != "secret" {
		t.Errorf("api key: got %q", got)
	}

	// auth.json must not be world readable
	home := os.Getenv("HOME")
	info, err := os.Stat(filepath.Join(home, ".config", "rolo", "auth.json"))
	if err != nil {
		t.Fatalf("stat auth.json: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("auth.json perms: got %o, want 0600", perm)
	}

	id, err := GetDeviceID()
	if err != nil {
		t.Fatalf("GetDeviceID failed: %v", err)
	}
	if id != "dev-42" {
		t.Errorf("device id: got %q", id)
	}

	if err := ClearAuth(); err != nil {
		t.Fatalf("ClearAuth failed: %v", err)
	}
	if IsAuthenticated() {
		t.Error("still authenticated after ClearAuth")
	}
	// Clearing twice is fine
	if err := ClearAuth(); err != nil {
		t.Fatalf("second ClearAuth failed: %v", err)
	}
}

func TestGeneratedDeviceIDWithoutAuth(t *testing.T) {
	isolate(t)

	id, err := GetDeviceID()
	if err != nil {
		t.Fatalf("GetDeviceID failed: %v", err)
	}
	if len(id) != 32 {
		t.Errorf("generated id length: got %d, want 32 hex chars", len(id))
	}
}

func TestAutoSyncEnabledPrecedence(t *testing.T) {
	isolate(t)

	if !GetAutoSyncEnabled() {
		t.Fatal("auto sync should default to enabled")
	}

	off := false
	cfg := &Config{}
	cfg.Sync.Auto.Enabled = &off
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	if GetAutoSyncEnabled() {
		t.Error("config off ignored")
	}

	t.Setenv("ROLO_SYNC_AUTO", "true")
	if !GetAutoSyncEnabled() {
		t.Error("env override ignored")
	}
}

func TestDurationSettings(t *testing.T) {
	isolate(t)

	if got := GetAutoSyncDebounce(); got != 5*time.Second {
		t.Errorf("default debounce: got %v", got)
	}
	if got := GetAutoSyncInterval(); got != 30*time.Minute {
		t.Errorf("default interval: got %v", got)
	}
	if got := GetForegroundMinInterval(); got != 5*time.Minute {
		t.Errorf("default foreground min: got %v", got)
	}

	cfg := &Config{}
	cfg.Sync.Auto.Debounce = "2s"
	cfg.Sync.Auto.Interval = "10m"
	cfg.Sync.Auto.ForegroundMin = "1m"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	if got := GetAutoSyncDebounce(); got != 2*time.Second {
		t.Errorf("config debounce: got %v", got)
	}
	if got := GetAutoSyncInterval(); got != 10*time.Minute {
		t.Errorf("config interval: got %v", got)
	}
	if got := GetForegroundMinInterval(); got != time.Minute {
		t.Errorf("config foreground min: got %v", got)
	}

	t.Setenv("ROLO_SYNC_AUTO_DEBOUNCE", "250ms")
	if got := GetAutoSyncDebounce(); got != 250*time.Millisecond {
		t.Errorf("env debounce: got %v", got)
	}

	// Garbage env falls through to config
	t.Setenv("ROLO_SYNC_AUTO_DEBOUNCE", "soon")
	if got := GetAutoSyncDebounce(); got != 2*time.Second {
		t.Errorf("invalid env debounce: got %v", got)
	}
}
