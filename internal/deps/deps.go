package deps

import (
	"context"
	"strings"
)

// Requirement defines an external binary mkvshrink relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Version     string
	Detail      string
}

// Requirements lists the binaries the encoder needs, honouring configured
// overrides.
func Requirements(ffmpegPath, ffprobePath string) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpegPath, Description: "Encodes video"},
		{Name: "FFprobe", Command: ffprobePath, Description: "Reads input duration and streams"},
	}
}

// CheckBinaries resolves and validates each requirement. An empty Command
// falls back to the default lookup for the tool named by Name.
func CheckBinaries(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		resolved, err := locate(strings.ToLower(req.Name), status.Command, commonLocations)
		if err != nil {
			if status.Command == "" {
				status.Command = strings.ToLower(req.Name)
			}
			status.Detail = err.Error()
			results = append(results, status)
			continue
		}
		status.Command = resolved
		version, err := Validate(ctx, resolved)
		if err != nil {
			status.Detail = err.Error()
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Version = version
		results = append(results, status)
	}
	return results
}
