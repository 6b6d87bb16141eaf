package scrub

import "time"

// auditEngine accumulates the audit trail and computes the aggregate
// confidence and summary. It has no detection logic of its own and never
// touches the text buffer or the replacement map.
type auditEngine struct {
	entries  []AuditEntry
	warnings []Warning
	start    time.Time
}

func newAuditEngine() *auditEngine {
	return &auditEngine{start: time.Now()}
}

// Record appends one entry for a completed detector pass.
// Invariant: MatchCount always equals len(replacements).
func (a *auditEngine) Record(detector, patternOrLabel string, replacements []Replacement, elapsed time.Duration) {
	a.entries = append(a.entries, AuditEntry{
		DetectorName:   detector,
		PatternOrLabel: patternOrLabel,
		MatchCount:     len(replacements),
		Replacements:   replacements,
		Elapsed:        elapsed,
	})
}

// Warn surfaces a recoverable condition to the caller.
func (a *auditEngine) Warn(kind WarningKind, message string) {
	a.warnings = append(a.warnings, Warning{Kind: kind, Message: message})
}

// Finalize computes the whole-result confidence (mean over surviving
// detections, 1.0 when nothing was found: an empty result is a confident
// one) and the human-readable summary.
func (a *auditEngine) Finalize(winners map[string]Detection, redactedChars, originalLength int) (float64, Summary) {
	confidence := 1.0
	if len(winners) > 0 {
		sum := 0.0
		for _, d := range winners {
			sum += d.Confidence
		}
		confidence = sum / float64(len(winners))
	}

	byCategory := make(map[EntityType]int)
	for _, d := range winners {
		byCategory[d.EntityType]++
	}

	density := 0.0
	if originalLength > 0 {
		density = float64(redactedChars) / float64(originalLength)
	}

	return confidence, Summary{
		ByCategory:     byCategory,
		RedactedChars:  redactedChars,
		Density:        density,
		OriginalLength: originalLength,
		Duration:       time.Since(a.start),
	}
}
