package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"mkvshrink/internal/config"
)

const userAgent = "mkvshrink/0.1.0"

// BatchSummary is the notification view of a finished batch.
type BatchSummary struct {
	Succeeded  int
	Failed     int
	Cancelled  int
	Skipped    int
	SpaceSaved int64
	Elapsed    time.Duration
}

// Service defines the notification surface exposed to the CLI.
type Service interface {
	NotifyBatchCompleted(ctx context.Context, summary BatchSummary) error
	NotifyJobFailed(ctx context.Context, input, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:       topic,
		client:         &http.Client{Timeout: timeout},
		notifyBatch:    cfg.Notifications.NotifyBatch,
		notifyFailures: cfg.Notifications.NotifyFailures,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	notifyBatch    bool
	notifyFailures bool
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, summary BatchSummary) error {
	if !n.notifyBatch {
		return nil
	}
	elapsed := summary.Elapsed.Round(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	var message strings.Builder
	fmt.Fprintf(&message, "%d compressed", summary.Succeeded)
	if summary.Failed > 0 {
		fmt.Fprintf(&message, ", %d failed", summary.Failed)
	}
	if summary.Cancelled > 0 {
		fmt.Fprintf(&message, ", %d cancelled", summary.Cancelled)
	}
	if summary.Skipped > 0 {
		fmt.Fprintf(&message, ", %d skipped", summary.Skipped)
	}
	fmt.Fprintf(&message, " in %s", elapsed)
	if summary.SpaceSaved > 0 {
		fmt.Fprintf(&message, "\nSaved %s", humanize.IBytes(uint64(summary.SpaceSaved)))
	}

	data := payload{
		title:   "mkvshrink - Batch Complete",
		message: message.String(),
		tags:    []string{"mkvshrink", "batch", "completed"},
	}
	if summary.Failed > 0 {
		data.title = "mkvshrink - Batch Complete (with errors)"
		data.tags = []string{"mkvshrink", "batch", "warning"}
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, input, reason string) error {
	if !n.notifyFailures {
		return nil
	}
	message := "Failed: " + filepath.Base(strings.TrimSpace(input))
	if reason = strings.TrimSpace(reason); reason != "" {
		message += "\n" + reason
	}
	data := payload{
		title:    "mkvshrink - Encode Failed",
		message:  message,
		tags:     []string{"mkvshrink", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "mkvshrink - Test",
		message:  "Notification system test",
		tags:     []string{"mkvshrink", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyBatchCompleted(context.Context, BatchSummary) error { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string) error    { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
