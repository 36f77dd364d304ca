package model

import (
	"strings"
)

// Phase is a stage in the canonical clinical development sequence.
type Phase int

// Canonical phase order. The zero value is deliberately not a phase so that
// an unset current phase can never silently resolve to Phase 1.
const (
	PhaseUnknown Phase = iota
	Phase1
	Phase2
	Phase2B
	Phase3
	Registration
	Approved
)

// TerminalPhase is the last regulatory gate a program must pass before it
// reaches the market.
const TerminalPhase = Registration

var phaseNames = map[Phase]string{
	Phase1:       "Phase 1",
	Phase2:       "Phase 2",
	Phase2B:      "Phase 2 B",
	Phase3:       "Phase 3",
	Registration: "Registration",
	Approved:     "Approved",
}

// phaseAliases maps normalized spellings to phases.
var phaseAliases = map[string]Phase{
	"phase1":       Phase1,
	"p1":           Phase1,
	"phase2":       Phase2,
	"p2":           Phase2,
	"phase2b":      Phase2B,
	"p2b":          Phase2B,
	"phase3":       Phase3,
	"p3":           Phase3,
	"registration": Registration,
	"reg":          Registration,
	"filing":       Registration,
	"approved":     Approved,
	"launched":     Approved,
}

// CanonicalPhases returns the fixed phase order.
func CanonicalPhases() []Phase {
	return []Phase{Phase1, Phase2, Phase2B, Phase3, Registration, Approved}
}

// String returns the display name of the phase.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "Unknown"
}

// Valid reports whether p is one of the canonical phases.
func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

// Before reports whether p comes strictly before other in canonical order.
func (p Phase) Before(other Phase) bool {
	return p < other
}

// ParsePhase resolves a phase name. Matching ignores case, spaces, dashes
// and underscores, so "Phase 2 B", "phase_2b" and "P2B" are equivalent.
func ParsePhase(s string) (Phase, error) {
	key := normalizePhase(s)
	if key == "" {
		return PhaseUnknown, &ValidationError{
			Entity: "snapshot",
			Field:  "current_phase",
			Reason: "phase is required",
		}
	}
	if p, ok := phaseAliases[key]; ok {
		return p, nil
	}
	return PhaseUnknown, &ValidationError{
		Entity: "phase",
		Field:  "name",
		Value:  s,
		Reason: "unrecognized phase; expected one of Phase 1, Phase 2, Phase 2 B, Phase 3, Registration, Approved",
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	parsed, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func normalizePhase(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '-', '_', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
