// Package cloudstore persists pipeline results to a remote object store and
// returns a durable reference URL for each uploaded artifact.
package cloudstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"
)

// Uploader stores artifacts remotely; implemented by Client and fakes.
type Uploader interface {
	Upload(ctx context.Context, logicalPath string, content []byte) (string, error)
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

// WithFolder sets the folder prefix for all logical paths.
func WithFolder(folder string) Option {
	return func(c *Client) {
		c.folder = strings.Trim(folder, "/")
	}
}

// Client is an HTTP client for the raw upload endpoint of the object store.
type Client struct {
	endpoint   string
	apiKey     string
	folder     string
	httpClient *http.Client
}

// NewClient constructs an upload client for the given endpoint and API key.
func NewClient(endpoint, apiKey string, opts ...Option) *Client {
	client := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	PublicID  string `json:"public_id"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload stores content under the logical path (prefixed with the configured
// folder) and returns the durable reference URL reported by the store.
func (c *Client) Upload(ctx context.Context, logicalPath string, content []byte) (string, error) {
	if c.endpoint == "" {
		return "", errors.New("cloudstore: endpoint not configured")
	}
	if len(content) == 0 {
		return "", errors.New("cloudstore: empty content")
	}
	logicalPath = strings.Trim(logicalPath, "/")
	if logicalPath == "" {
		return "", errors.New("cloudstore: logical path required")
	}
	if c.folder != "" {
		logicalPath = path.Join(c.folder, logicalPath)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", path.Base(logicalPath))
	if err != nil {
		return "", fmt.Errorf("cloudstore: building form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("cloudstore: building form: %w", err)
	}
	if err := form.WriteField("public_id", logicalPath); err != nil {
		return "", fmt.Errorf("cloudstore: building form: %w", err)
	}
	if err := form.WriteField("resource_type", "raw"); err != nil {
		return "", fmt.Errorf("cloudstore: building form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("cloudstore: building form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/raw/upload", &body)
	if err != nil {
		return "", fmt.Errorf("cloudstore: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudstore: request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("cloudstore: reading response: %w", err)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("cloudstore: decoding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := parsed.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(string(payload))
		}
		return "", fmt.Errorf("cloudstore: status %d: %s", resp.StatusCode, msg)
	}

	reference := parsed.SecureURL
	if reference == "" {
		reference = parsed.URL
	}
	if reference == "" {
		return "", errors.New("cloudstore: upload succeeded but no reference returned")
	}
	return reference, nil
}

var _ Uploader = (*Client)(nil)
