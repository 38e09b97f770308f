// Package deps reports the availability of the external tools the pipeline
// shells out to (yt-dlp, ffmpeg, ffprobe, demucs, uvx).
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external tool the pipeline relies on. Optional
// requirements degrade a stage instead of blocking startup.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the result of resolving a requirement against PATH.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// Check resolves the requirement against PATH.
func (r Requirement) Check() Status {
	status := Status{Requirement: r}
	status.Command = strings.TrimSpace(r.Command)
	status.Description = strings.TrimSpace(r.Description)

	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	if _, err := exec.LookPath(status.Command); err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true
	return status
}

// CheckBinaries resolves every requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		results[i] = req.Check()
	}
	return results
}
