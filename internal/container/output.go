package container

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gigaclaw/gigaclaw/pkg/models"
)

// The agent process shares its stdout with arbitrary tool and library noise,
// so the structured result is wrapped in literal sentinel markers. Children
// that predate the markers emit the result as their last line instead.
const (
	OutputStartMarker = "---GIGACLAW_OUTPUT_START---"
	OutputEndMarker   = "---GIGACLAW_OUTPUT_END---"
)

// ExtractPayload locates the result payload in accumulated stdout. Stage one
// looks for a correctly ordered sentinel pair and returns the trimmed
// substring strictly between them. Stage two falls back to the last non-empty
// line. The second return is false when neither stage yields anything.
func ExtractPayload(stdout string) (string, bool) {
	start := strings.Index(stdout, OutputStartMarker)
	if start >= 0 {
		rest := stdout[start+len(OutputStartMarker):]
		end := strings.Index(rest, OutputEndMarker)
		if end >= 0 {
			payload := strings.TrimSpace(rest[:end])
			if payload != "" {
				return payload, true
			}
		}
	}

	// Fallback for non-conforming children: last non-empty line.
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return line, true
		}
	}
	return "", false
}

// ParseOutput extracts and decodes a ContainerOutput from raw stdout.
func ParseOutput(stdout string) (*models.ContainerOutput, error) {
	payload, ok := ExtractPayload(stdout)
	if !ok {
		return nil, ErrNoOutput
	}

	var out models.ContainerOutput
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("decode output payload: %w", err)
	}
	if out.Status != models.StatusSuccess && out.Status != models.StatusError {
		return nil, fmt.Errorf("output payload has unknown status %q", out.Status)
	}
	return &out, nil
}
