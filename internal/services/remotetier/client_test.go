package remotetier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProcessSubmitsJobAndParsesResult(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq processRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"text": "hello world",
			"language": "en",
			"model": "large-v3",
			"words": [{"word": "hello", "start": 0.1, "end": 0.8}]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "tok-123", WithModelPreference("large-v3"))
	result, err := client.Process(context.Background(), 7, "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if gotPath != "/v1/transcriptions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotReq.JobID != 7 || gotReq.SourceReference != "https://example.com/watch?v=abc" || gotReq.ModelPreference != "large-v3" {
		t.Errorf("request = %+v", gotReq)
	}
	if result.Text != "hello world" || result.Language != "en" || len(result.Words) != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestProcessSurfacesErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": "queue_full", "message": "no remote capacity"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	_, err := client.Process(context.Background(), 1, "ref")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 503") || !strings.Contains(err.Error(), "no remote capacity") {
		t.Fatalf("err = %v", err)
	}
}

func TestProcessRejectsEmptyTranscript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "  ", "language": "en"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	if _, err := client.Process(context.Background(), 1, "ref"); err == nil || !strings.Contains(err.Error(), "empty transcript") {
		t.Fatalf("err = %v", err)
	}
}

func TestProcessRequiresEndpoint(t *testing.T) {
	client := NewClient("", "tok")
	if _, err := client.Process(context.Background(), 1, "ref"); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
	if err := client.Health(context.Background()); err == nil {
		t.Fatal("expected health error for missing endpoint")
	}
}

func TestHealth(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(status)
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}

	status = http.StatusBadGateway
	if err := client.Health(context.Background()); err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v", err)
	}
}
