// Package phase resolves a feature's status-model rollout phase. The
// phase decides how much the legacy Markdown views are trusted: not at
// all, dual-written, or required to match canonical state.
package phase

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cloud-shuttle/muster/internal/config"
)

// Phase is the rollout stage of the canonical status model for a feature
type Phase int

const (
	// PhaseCanonicalOnly leaves legacy views untouched; only the event
	// log and snapshot are written
	PhaseCanonicalOnly Phase = 0
	// PhaseDualWrite projects canonical state into legacy views; view
	// drift is advisory
	PhaseDualWrite Phase = 1
	// PhaseCutover requires legacy views to match canonical state; view
	// drift is an error
	PhaseCutover Phase = 2
)

func (p Phase) String() string {
	switch p {
	case PhaseCanonicalOnly:
		return "canonical-only"
	case PhaseDualWrite:
		return "dual-write"
	case PhaseCutover:
		return "cutover"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// FromInt validates a raw phase number
func FromInt(n int) (Phase, error) {
	if n < 0 || n > 2 {
		return 0, fmt.Errorf("invalid rollout phase %d (want 0, 1, or 2)", n)
	}
	return Phase(n), nil
}

// EnvOverride is an escape hatch for operators migrating a single command
// invocation ahead of the configured phase
const EnvOverride = "MUSTER_STATUS_PHASE"

// Resolve returns the rollout phase for a feature plus the source the
// decision came from ("env", "config:feature", or "config:default").
// Resolution failure is fatal to callers: phase gating must never guess.
func Resolve(repoRoot, featureSlug string) (Phase, string, error) {
	if v := os.Getenv(EnvOverride); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, "", fmt.Errorf("parsing %s: %w", EnvOverride, err)
		}
		p, err := FromInt(n)
		if err != nil {
			return 0, "", err
		}
		return p, "env", nil
	}

	cfg, err := config.Load(repoRoot)
	if err != nil {
		return 0, "", err
	}
	if fc, ok := cfg.Features[featureSlug]; ok && fc.Phase != nil {
		p, err := FromInt(*fc.Phase)
		if err != nil {
			return 0, "", fmt.Errorf("feature %s: %w", featureSlug, err)
		}
		return p, "config:feature", nil
	}
	p, err := FromInt(cfg.DefaultPhase)
	if err != nil {
		return 0, "", err
	}
	return p, "config:default", nil
}
