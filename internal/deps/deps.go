// Package deps reports which external tools and credentials are available.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement is an external binary a stage shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries presenter stages use.
func Requirements() []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: "ffmpeg", Description: "encoding, concat, crop, keying"},
		{Name: "FFprobe", Command: "ffprobe", Description: "media durations and dimensions"},
		{Name: "pdftoppm", Command: "pdftoppm", Description: "slide rasterizing", Optional: true},
		{Name: "yt-dlp", Command: "yt-dlp", Description: "reference clip download", Optional: true},
	}
}

// CheckBinaries evaluates the requirements.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch path, err := exec.LookPath(cmd); {
		case cmd == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		default:
			status.Available = true
			status.Command = path
		}
		results = append(results, status)
	}
	return results
}

// CheckCredentials reports which environment keys are set. Values are never
// included.
func CheckCredentials(keys []string, optional map[string]bool) []Status {
	results := make([]Status, 0, len(keys))
	for _, key := range keys {
		status := Status{Name: key, Command: "env", Optional: optional[key]}
		if strings.TrimSpace(os.Getenv(key)) != "" {
			status.Available = true
		} else {
			status.Detail = "not set"
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the required entries that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
