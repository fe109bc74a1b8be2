package domain

import (
	"slices"
	"time"
)

// Severity classifies outbreak intensity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps free-form severity text to a known level, defaulting
// to low for anything unrecognized.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityModerate, SeverityHigh, SeverityCritical:
		return Severity(s)
	default:
		return SeverityLow
	}
}

// Outbreak record provenance tags.
const (
	OutbreakSourceReasoning = "reasoning"
	OutbreakSourceFallback  = "fallback"
)

// OutbreakRecord tracks one disease observation for a location. Within the
// dedup window at most one record per (location, disease) is current;
// later observations merge into it via Merge.
type OutbreakRecord struct {
	ID         string    `json:"id"`
	Location   string    `json:"location"`
	Disease    string    `json:"disease"`
	ObservedAt time.Time `json:"observed_at"`

	ActiveCases int `json:"active_cases"`
	NewCases    int `json:"new_cases"`
	Recovered   int `json:"recovered"`
	Deaths      int `json:"deaths"`

	Severity         Severity `json:"severity"`
	TransmissionRate float64  `json:"transmission_rate,omitempty"`

	AffectedGroups []string `json:"affected_groups,omitempty"`
	Medicines      []string `json:"medicines,omitempty"`
	Rationale      string   `json:"rationale,omitempty"`

	// Source is OutbreakSourceReasoning or OutbreakSourceFallback.
	Source string `json:"source"`
}

// Merge folds a newer observation for the same (location, disease) into an
// existing record. Counts take the maximum so replayed or concurrent
// observations never double-count; medicine and affected-group lists
// union; severity and transmission rate take the update's value when it
// provides one. The merge is idempotent: merging the same update twice
// yields the same record.
func (r OutbreakRecord) Merge(update OutbreakRecord) OutbreakRecord {
	merged := r

	merged.ActiveCases = max(r.ActiveCases, update.ActiveCases)
	merged.NewCases = max(r.NewCases, update.NewCases)
	merged.Recovered = max(r.Recovered, update.Recovered)
	merged.Deaths = max(r.Deaths, update.Deaths)

	if update.Severity != "" {
		merged.Severity = update.Severity
	}
	if update.TransmissionRate > 0 {
		merged.TransmissionRate = update.TransmissionRate
	}
	if update.Rationale != "" {
		merged.Rationale = update.Rationale
	}
	if update.ObservedAt.After(r.ObservedAt) {
		merged.ObservedAt = update.ObservedAt
	}
	// An authoritative observation upgrades a fallback record for good.
	if update.Source == OutbreakSourceReasoning {
		merged.Source = OutbreakSourceReasoning
	}

	merged.Medicines = unionSorted(r.Medicines, update.Medicines)
	merged.AffectedGroups = unionSorted(r.AffectedGroups, update.AffectedGroups)

	return merged
}

// unionSorted returns the deduplicated sorted union of two string lists.
func unionSorted(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok && s != "" {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok && s != "" {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}
