package detect

import (
	"time"
)

// Profile is an immutable snapshot of which deployment platforms are usable
// in the current environment. It is replaced wholesale on refresh, never
// partially mutated.
type Profile struct {
	Capabilities    map[string][]string    `json:"capabilities"` // platform -> capability tags
	OptimalPlatform string                 `json:"optimal_platform"`
	Probes          map[string]ProbeResult `json:"probes"`
	DetectedAt      time.Time              `json:"detected_at"`
	Version         string                 `json:"detection_version"`
}

// Has reports whether the given platform was detected as usable.
func (p *Profile) Has(platform string) bool {
	_, ok := p.Capabilities[platform]
	return ok
}

// ProbeResult is one probe's outcome. Probes never fail the cascade; a
// timeout or error simply records Detected=false.
type ProbeResult struct {
	Name       string               `json:"name"`
	Priority   int                  `json:"priority"`
	Confidence float64              `json:"confidence"`
	Detected   bool                 `json:"detected"`
	Values     map[string]string    `json:"values,omitempty"`
	Filesystem map[string]FileProbe `json:"filesystem,omitempty"` // platform -> probe result
	ElapsedMS  float64              `json:"elapsed_ms"`
	Error      string               `json:"error,omitempty"`
}

// FileProbe is the outcome of probing one platform's canonical marker file.
type FileProbe struct {
	Found    bool `json:"found"`
	Writable bool `json:"writable"`
}
