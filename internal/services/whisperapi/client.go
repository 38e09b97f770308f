// Package whisperapi talks to an OpenAI-compatible audio transcription
// endpoint and returns the transcript text with word-level timestamps.
package whisperapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lyrebird/internal/subtitles"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "whisper-1"
)

// Transcript is the normalized transcription result.
type Transcript struct {
	Text     string
	Language string
	Duration float64
	Words    []subtitles.Word
}

// Transcriber converts an audio file into a transcript; implemented by
// Client and by test fakes.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (Transcript, error)
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithModel overrides the transcription model.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// Client is an HTTP transcription client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a transcription client for the given API key.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type verboseResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Words    []subtitles.Word `json:"words"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Transcribe uploads the audio file and requests a verbose transcription
// with word-level timestamp granularity.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (Transcript, error) {
	var transcript Transcript

	if c.apiKey == "" {
		return transcript, errors.New("whisperapi: api key required")
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return transcript, fmt.Errorf("whisperapi: opening audio: %w", err)
	}
	defer file.Close()

	pipeReader, pipeWriter := io.Pipe()
	form := multipart.NewWriter(pipeWriter)
	go func() {
		pipeWriter.CloseWithError(writeForm(form, file, filepath.Base(audioPath), c.model))
	}()

	url := c.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pipeReader)
	if err != nil {
		return transcript, fmt.Errorf("whisperapi: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transcript, fmt.Errorf("whisperapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return transcript, fmt.Errorf("whisperapi: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return transcript, apiError(resp.StatusCode, body)
	}

	var payload verboseResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return transcript, fmt.Errorf("whisperapi: decoding response: %w", err)
	}
	if strings.TrimSpace(payload.Text) == "" {
		return transcript, errors.New("whisperapi: empty transcript")
	}

	transcript.Text = strings.TrimSpace(payload.Text)
	transcript.Language = payload.Language
	transcript.Duration = payload.Duration
	transcript.Words = payload.Words
	return transcript, nil
}

func writeForm(form *multipart.Writer, file io.Reader, filename, model string) error {
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := form.WriteField("model", model); err != nil {
		return err
	}
	if err := form.WriteField("response_format", "verbose_json"); err != nil {
		return err
	}
	if err := form.WriteField("timestamp_granularities[]", "word"); err != nil {
		return err
	}
	return form.Close()
}

func apiError(status int, body []byte) error {
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return fmt.Errorf("whisperapi: status %d: %s", status, payload.Error.Message)
	}
	return fmt.Errorf("whisperapi: status %d: %s", status, strings.TrimSpace(string(body)))
}

var _ Transcriber = (*Client)(nil)
