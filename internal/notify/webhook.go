package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookConfig holds configuration for the webhook notifier
type WebhookConfig struct {
	URL        string
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
}

// WebhookNotifier posts incident alerts as JSON to an HTTP endpoint
type WebhookNotifier struct {
	config WebhookConfig
	client *http.Client
	logger *zap.Logger
}

// NewWebhookNotifier creates a webhook notifier
func NewWebhookNotifier(config WebhookConfig, logger *zap.Logger) *WebhookNotifier {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryCount == 0 {
		config.RetryCount = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 5 * time.Second
	}

	return &WebhookNotifier{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// Notify posts the summary to the configured endpoint, retrying transient
// failures
func (n *WebhookNotifier) Notify(ctx context.Context, s Summary) error {
	jsonData, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %v", err)
	}

	var lastErr error
	for i := 0; i <= n.config.RetryCount; i++ {
		if i > 0 {
			n.logger.Debug("retrying alert delivery",
				zap.Int("attempt", i),
				zap.Int("max", n.config.RetryCount),
			)
			select {
			case <-time.After(n.config.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", n.config.URL, bytes.NewBuffer(jsonData))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %v", err)
			continue
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "ConfigSentinel/1.0")

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %v", err)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("alert delivery failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("failed to deliver alert after %d retries: %v", n.config.RetryCount, lastErr)
}
