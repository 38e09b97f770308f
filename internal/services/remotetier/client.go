// Package remotetier talks to a managed transcription service that runs the
// whole media-to-text pipeline remotely. It is the failover path when local
// processing cannot complete a job.
package remotetier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lyrebird/internal/subtitles"
)

// Result is the normalized output of a remote pipeline run.
type Result struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Model    string           `json:"model"`
	Words    []subtitles.Word `json:"words"`
}

// Processor submits jobs to the remote tier; implemented by Client and fakes.
type Processor interface {
	Process(ctx context.Context, jobID int64, sourceReference string) (Result, error)
	Health(ctx context.Context) error
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithModelPreference requests a specific model from the remote service.
func WithModelPreference(model string) Option {
	return func(c *Client) {
		c.modelPreference = model
	}
}

// Client is an HTTP client for the remote transcription tier.
type Client struct {
	endpoint        string
	token           string
	modelPreference string
	httpClient      *http.Client
}

// NewClient constructs a remote tier client for the given endpoint and token.
func NewClient(endpoint, token string, opts ...Option) *Client {
	client := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Minute},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type processRequest struct {
	SourceReference string `json:"source_reference"`
	JobID           int64  `json:"job_id"`
	ModelPreference string `json:"model_preference,omitempty"`
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Process submits the source reference and blocks until the remote service
// returns a completed result or an error payload.
func (c *Client) Process(ctx context.Context, jobID int64, sourceReference string) (Result, error) {
	var result Result

	if c.endpoint == "" {
		return result, errors.New("remotetier: endpoint not configured")
	}

	body, err := json.Marshal(processRequest{
		SourceReference: sourceReference,
		JobID:           jobID,
		ModelPreference: c.modelPreference,
	})
	if err != nil {
		return result, fmt.Errorf("remotetier: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/transcriptions", bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("remotetier: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("remotetier: request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return result, fmt.Errorf("remotetier: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return result, remoteError(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, &result); err != nil {
		return result, fmt.Errorf("remotetier: decoding response: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return result, errors.New("remotetier: empty transcript")
	}
	return result, nil
}

// Health checks whether the remote service is reachable and ready.
func (c *Client) Health(ctx context.Context) error {
	if c.endpoint == "" {
		return errors.New("remotetier: endpoint not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("remotetier: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remotetier: unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10)) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remotetier: health status %d", resp.StatusCode)
	}
	return nil
}

func remoteError(status int, body []byte) error {
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := firstNonEmpty(payload.Message, payload.Error); msg != "" {
			return fmt.Errorf("remotetier: status %d: %s", status, msg)
		}
	}
	return fmt.Errorf("remotetier: status %d: %s", status, strings.TrimSpace(string(body)))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ Processor = (*Client)(nil)
