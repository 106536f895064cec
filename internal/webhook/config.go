// Package webhook handles change-notification webhook configuration and
// HTTP dispatch. Delivery runs through the offline queue so notifications
// written while offline go out when connectivity returns.
package webhook

import (
	"os"

	"github.com/quinn/rolo/internal/config"
)

// GetURL returns the webhook URL for the data directory.
// Priority: ROLO_WEBHOOK_URL env > config.json webhook_url.
func GetURL(baseDir string) string {
	if v := os.Getenv("ROLO_WEBHOOK_URL"); v != "" {
		return v
	}
	cfg, err := config.Load(baseDir)
	if err != nil {
		return ""
	}
	return cfg.WebhookURL
}

// GetSecret returns the webhook HMAC secret.
// Priority: ROLO_WEBHOOK_SECRET env > config.json webhook_token.
func GetSecret(baseDir string) string {
	if v := os.Getenv("ROLO_WEBHOOK_SECRET"); v != "" {
		return v
	}
	cfg, err := config.Load(baseDir)
	if err != nil {
		return ""
	}
	return cfg.WebhookToken
}

// IsEnabled returns true if a webhook URL is configured.
func IsEnabled(baseDir string) bool {
	return GetURL(baseDir) != ""
}
