package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"lyrebird/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("Work directory", dir)
	if !result.Passed {
		t.Errorf("accessible directory failed: %s", result.Detail)
	}

	result = CheckDirectoryAccess("Work directory", dir+"/missing")
	if result.Passed {
		t.Error("missing directory passed")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Errorf("one-byte floor failed: %s", result.Detail)
	}
	if result := CheckFreeSpace("space", dir, 1<<62); result.Passed {
		t.Error("absurd floor passed")
	}
}

func TestCheckTranscriberCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if result := CheckTranscriberCredentials(cfg); !result.Passed {
		t.Errorf("configured key failed: %s", result.Detail)
	}
	cfg.Transcriber.APIKey = ""
	if result := CheckTranscriberCredentials(cfg); result.Passed {
		t.Error("missing key passed")
	}
}

func TestCheckRemoteTier(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithRemoteTier(healthy.URL, "token"))
	if result := CheckRemoteTier(context.Background(), cfg); !result.Passed {
		t.Errorf("healthy remote failed: %s", result.Detail)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	cfg.Remote.Endpoint = down.URL
	if result := CheckRemoteTier(context.Background(), cfg); result.Passed {
		t.Error("unhealthy remote passed")
	}
}

func TestRunAllCoversConfiguredChecks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := RunAll(context.Background(), cfg)
	if len(results) < 4 {
		t.Fatalf("expected at least 4 results, got %d", len(results))
	}
	names := make(map[string]bool)
	for _, r := range results {
		names[r.Name] = true
	}
	for _, want := range []string{"Work directory", "Log directory", "Transcriber credentials"} {
		if !names[want] {
			t.Errorf("missing check %q", want)
		}
	}
}
