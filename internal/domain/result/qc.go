package result

import (
	"fmt"
	"math"

	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
)

// Range bounds a physically plausible value interval for one property.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the closed interval.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// QCConfig carries the completeness and plausibility rules applied to each
// uploaded record.
type QCConfig struct {
	// RequiredProperties must all be present with a value.
	RequiredProperties []string
	// PlausibleRanges bounds values per property.  Properties without an
	// entry are accepted at any finite value.
	PlausibleRanges map[string]Range
}

// DefaultPlausibleRanges covers the standard ADME property panel.
var DefaultPlausibleRanges = map[string]Range{
	"logp":         {Min: -10, Max: 15},
	"solubility":   {Min: 0, Max: 1e6},
	"permeability": {Min: 0, Max: 1e4},
	"ic50":         {Min: 0, Max: 1e9},
}

// Evaluate applies the QC rules to values and returns the outcome with one
// note per breach.  Evaluation is pure and deterministic.
func Evaluate(values mtypes.PropertyMap, cfg QCConfig) (QCStatus, []string) {
	var notes []string

	for _, name := range cfg.RequiredProperties {
		v, ok := values[name]
		if !ok || v == nil {
			notes = append(notes, fmt.Sprintf("missing required property %q", name))
		}
	}

	for name, v := range values {
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			notes = append(notes, fmt.Sprintf("property %q has a non-finite value", name))
			continue
		}
		if bounds, ok := cfg.PlausibleRanges[name]; ok && !bounds.Contains(*v) {
			notes = append(notes, fmt.Sprintf(
				"property %q value %g outside plausible range [%g, %g]",
				name, *v, bounds.Min, bounds.Max))
		}
	}

	if len(notes) > 0 {
		return QCFailed, notes
	}
	return QCPassed, nil
}
