package preflight

import (
	"context"
	"strings"
	"time"

	"lyrebird/internal/config"
	"lyrebird/internal/services/remotetier"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
	results = append(results, CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, MinimumWorkSpaceBytes))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	results = append(results, CheckTranscriberCredentials(cfg))

	if cfg.RemoteConfigured() {
		results = append(results, CheckRemoteTier(ctx, cfg))
	}

	return results
}

// CheckTranscriberCredentials verifies the transcription API key is set. The
// key is only validated against the service on first use; a missing key is
// caught here before any job is claimed.
func CheckTranscriberCredentials(cfg *config.Config) Result {
	const name = "Transcriber credentials"
	if strings.TrimSpace(cfg.Transcriber.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	return Result{Name: name, Passed: true, Detail: "API key present"}
}

// CheckRemoteTier verifies the remote failover service answers its health
// endpoint.
func CheckRemoteTier(ctx context.Context, cfg *config.Config) Result {
	const name = "Remote tier"

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := remotetier.NewClient(cfg.Remote.Endpoint, cfg.Remote.Token)
	if err := client.Health(checkCtx); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}
