package cloudstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUploadSendsMultipartAndReturnsReference(t *testing.T) {
	var gotAuth, gotPublicID, gotResourceType, gotFilename string
	var gotContent []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/raw/upload" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotPublicID = r.FormValue("public_id")
		gotResourceType = r.FormValue("resource_type")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		gotFilename = header.Filename
		gotContent, _ = io.ReadAll(file)
		w.Write([]byte(`{"secure_url": "https://cdn.example.com/transcripts/42/results.json", "public_id": "transcripts/42/results.json"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-1", WithFolder("/transcripts/"))
	ref, err := client.Upload(context.Background(), "42/results.json", []byte(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if ref != "https://cdn.example.com/transcripts/42/results.json" {
		t.Errorf("reference = %q", ref)
	}
	if gotAuth != "Bearer key-1" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotPublicID != "transcripts/42/results.json" {
		t.Errorf("public_id = %q", gotPublicID)
	}
	if gotResourceType != "raw" {
		t.Errorf("resource_type = %q", gotResourceType)
	}
	if gotFilename != "results.json" {
		t.Errorf("filename = %q", gotFilename)
	}
	if string(gotContent) != `{"text":"hi"}` {
		t.Errorf("content = %q", gotContent)
	}
}

func TestUploadFallsBackToPlainURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url": "http://cdn.example.com/a.json"}`))
	}))
	defer server.Close()

	ref, err := NewClient(server.URL, "key").Upload(context.Background(), "a.json", []byte("x"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ref != "http://cdn.example.com/a.json" {
		t.Errorf("reference = %q", ref)
	}
}

func TestUploadSurfacesStoreError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "Invalid API key"}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "bad").Upload(context.Background(), "a.json", []byte("x"))
	if err == nil || !strings.Contains(err.Error(), "Invalid API key") {
		t.Fatalf("err = %v", err)
	}
}

func TestUploadValidatesInput(t *testing.T) {
	client := NewClient("https://store.example.com", "key")
	if _, err := client.Upload(context.Background(), "a.json", nil); err == nil {
		t.Error("expected error for empty content")
	}
	if _, err := client.Upload(context.Background(), "///", []byte("x")); err == nil {
		t.Error("expected error for empty logical path")
	}
	if _, err := NewClient("", "key").Upload(context.Background(), "a.json", []byte("x")); err == nil {
		t.Error("expected error for missing endpoint")
	}
}
