package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lyrebird/internal/logging"
	"lyrebird/internal/services"
	"lyrebird/internal/testsupport"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "xml"})
	if err == nil || !strings.Contains(err.Error(), "xml") {
		t.Fatalf("err = %v, want unsupported format error", err)
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("job completed", logging.Int64(logging.FieldJobID, 42), logging.Error(errors.New("ignored detail")))

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, raw)
	}
	if record["msg"] != "job completed" {
		t.Fatalf("msg = %v", record["msg"])
	}
	if record[logging.FieldJobID] != float64(42) {
		t.Fatalf("job_id = %v", record[logging.FieldJobID])
	}
}

func TestNewConsoleRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("suppressed")
	logger.Warn("visible")

	raw, _ := os.ReadFile(path)
	out := string(raw)
	if strings.Contains(out, "suppressed") {
		t.Fatalf("info record should be filtered at warn level:\n%s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn record missing:\n%s", out)
	}
}

func TestNewFromConfigCreatesLogFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Info("hello")

	raw, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "lyrebird.log"))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(raw), "hello") {
		t.Fatalf("log file content: %s", raw)
	}
}

func TestWithContextAddsJobAndStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := services.WithJobID(context.Background(), 7)
	ctx = services.WithStage(ctx, "download")
	logging.WithContext(ctx, logger).Info("fetching")

	raw, _ := os.ReadFile(path)
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record[logging.FieldJobID] != float64(7) || record[logging.FieldStage] != "download" {
		t.Fatalf("record = %v", record)
	}
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("must not panic", logging.Error(nil))
	component := logging.WithComponent(logger, "queue")
	component.Info("still silent")
}
