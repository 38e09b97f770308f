package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lyrebird/internal/config"
	"lyrebird/internal/language"
)

const userAgent = "Lyrebird/0.1.0"

// Service defines the notification surface exposed to the workflow poller.
type Service interface {
	JobCompleted(ctx context.Context, jobID int64, title, method, languageCode string) error
	JobFailed(ctx context.Context, jobID int64, title, errorMessage string) error
	Test(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) JobCompleted(ctx context.Context, jobID int64, title, method, languageCode string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = fmt.Sprintf("job %d", jobID)
	}
	message := fmt.Sprintf("Transcribed: %s (%s)", title, language.DisplayName(languageCode))
	if method != "" {
		message = fmt.Sprintf("%s\nMethod: %s", message, method)
	}
	return n.send(ctx, payload{
		title:   "Lyrebird - Complete",
		message: message,
		tags:    []string{"lyrebird", "job", "completed"},
	})
}

func (n *ntfyService) JobFailed(ctx context.Context, jobID int64, title, errorMessage string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = fmt.Sprintf("job %d", jobID)
	}
	errorMessage = strings.TrimSpace(errorMessage)
	if errorMessage == "" {
		errorMessage = "unknown error"
	}
	return n.send(ctx, payload{
		title:    "Lyrebird - Failed",
		message:  fmt.Sprintf("Failed: %s\n%s", title, errorMessage),
		tags:     []string{"lyrebird", "job", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) Test(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Lyrebird - Test",
		message:  "Notification system test",
		tags:     []string{"lyrebird", "test"},
		priority: "low",
	})
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

func (noopService) JobCompleted(context.Context, int64, string, string, string) error { return nil }
func (noopService) JobFailed(context.Context, int64, string, string) error            { return nil }
func (noopService) Test(context.Context) error                                        { return nil }
